package httpapi

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/aleotti/iris/internal/audio"
	"github.com/aleotti/iris/internal/gemini"
	"github.com/aleotti/iris/internal/history"
)

type chatRequest struct {
	ClientID       string  `json:"client_id"`
	Prompt         string  `json:"prompt"`
	Instruction    string  `json:"instruction"`
	UseSearch      bool    `json:"use_search"`
	UseMaps        bool    `json:"use_maps"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	ThinkingBudget int     `json:"thinking_budget"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "missing_prompt", "prompt is required")
		return
	}
	if req.Instruction == "" {
		req.Instruction = s.cfg.SystemInstruction
	}
	if req.ThinkingBudget <= 0 {
		req.ThinkingBudget = s.cfg.ThinkingBudget
	}

	result, err := s.generator.Chat(r.Context(), gemini.ChatRequest{
		Prompt:         req.Prompt,
		Instruction:    req.Instruction,
		UseSearch:      req.UseSearch,
		UseMaps:        req.UseMaps,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ThinkingBudget: req.ThinkingBudget,
	})
	if err != nil {
		s.remoteFailure(w, "chat", err)
		return
	}

	s.saveExchange(r, req.ClientID, "", history.KindChat, req.Prompt, result.Text)
	respondJSON(w, http.StatusOK, result)
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count"`
}

type imagePayload struct {
	Base64   string `json:"base64"`
	MIMEType string `json:"mime_type"`
}

func (s *Server) handleGenerateImages(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "missing_prompt", "prompt is required")
		return
	}

	images, err := s.generator.GenerateImage(r.Context(), req.Prompt, req.Count)
	if err != nil {
		s.remoteFailure(w, "image_generation", err)
		return
	}

	payloads := make([]imagePayload, 0, len(images))
	for _, img := range images {
		payloads = append(payloads, imagePayload{
			Base64:   base64.StdEncoding.EncodeToString(img.Data),
			MIMEType: img.MIMEType,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"images": payloads})
}

type imageEditRequest struct {
	Prompt      string `json:"prompt"`
	ImageBase64 string `json:"image_base64"`
	MIMEType    string `json:"mime_type"`
}

func (s *Server) handleEditImage(w http.ResponseWriter, r *http.Request) {
	var req imageEditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" || req.ImageBase64 == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "prompt and image_base64 are required")
		return
	}
	source, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_image", "image_base64 is not valid base64")
		return
	}
	if req.MIMEType == "" {
		req.MIMEType = "image/png"
	}

	edited, err := s.generator.EditImage(r.Context(), req.Prompt, source, req.MIMEType)
	if err != nil {
		s.remoteFailure(w, "image_edit", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"image": imagePayload{
		Base64:   base64.StdEncoding.EncodeToString(edited.Data),
		MIMEType: edited.MIMEType,
	}})
}

type speechRequest struct {
	ClientID string `json:"client_id"`
	Text     string `json:"text"`
	Voice    string `json:"voice"`
}

// handleSpeech synthesizes speech and returns a playable WAV body.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}
	voice := s.voices.Resolve(req.Voice, s.cfg.DefaultVoice)

	result, err := s.generator.Speak(r.Context(), req.Text, voice.Name)
	if err != nil {
		s.remoteFailure(w, "speech", err)
		return
	}

	wav, err := audio.EncodeWAVPCM16LE(result.PCM, result.SampleRate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}

	s.saveExchange(r, req.ClientID, "", history.KindSpeech, req.Text, voice.Name)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

type transcribeRequest struct {
	ClientID    string `json:"client_id"`
	AudioBase64 string `json:"audio_base64"`
	MIMEType    string `json:"mime_type"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.AudioBase64 == "" {
		respondError(w, http.StatusBadRequest, "missing_audio", "audio_base64 is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", "audio_base64 is not valid base64")
		return
	}
	if req.MIMEType == "" {
		req.MIMEType = "audio/wav"
	}

	text, err := s.generator.Transcribe(r.Context(), data, req.MIMEType)
	if err != nil {
		s.remoteFailure(w, "transcription", err)
		return
	}

	s.saveExchange(r, req.ClientID, "", history.KindTranscription, "", text)
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

type analyzeRequest struct {
	ClientID    string `json:"client_id"`
	Prompt      string `json:"prompt"`
	VideoBase64 string `json:"video_base64"`
	MIMEType    string `json:"mime_type"`
}

func (s *Server) handleAnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.VideoBase64 == "" {
		respondError(w, http.StatusBadRequest, "missing_video", "video_base64 is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.VideoBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_video", "video_base64 is not valid base64")
		return
	}
	if req.MIMEType == "" {
		req.MIMEType = "video/mp4"
	}

	text, err := s.generator.AnalyzeVideo(r.Context(), req.Prompt, data, req.MIMEType)
	if err != nil {
		s.remoteFailure(w, "video_analysis", err)
		return
	}

	s.saveExchange(r, req.ClientID, "", history.KindAnalysis, req.Prompt, text)
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// remoteFailure maps an upstream error onto the wire and counts it.
func (s *Server) remoteFailure(w http.ResponseWriter, operation string, err error) {
	s.metrics.RemoteErrors.WithLabelValues(operation).Inc()
	if errors.Is(err, gemini.ErrRemoteRequestFailed) {
		respondError(w, http.StatusBadGateway, "remote_request_failed", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (s *Server) saveExchange(r *http.Request, clientID, sessionID, kind, prompt, response string) {
	if s.history == nil {
		return
	}
	if strings.TrimSpace(clientID) == "" {
		clientID = "anonymous"
	}
	err := s.history.SaveExchange(r.Context(), history.ExchangeRecord{
		ClientID:  clientID,
		SessionID: sessionID,
		Kind:      kind,
		Prompt:    prompt,
		Response:  response,
	})
	if err != nil {
		log.Printf("history save failed: %v", err)
	}
}
