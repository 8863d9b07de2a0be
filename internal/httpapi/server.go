// Package httpapi exposes the gateway's HTTP surface: JSON generation
// endpoints, the live session registry, and the realtime websocket bridge.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aleotti/iris/internal/config"
	"github.com/aleotti/iris/internal/gemini"
	"github.com/aleotti/iris/internal/history"
	"github.com/aleotti/iris/internal/jobs"
	"github.com/aleotti/iris/internal/live"
	"github.com/aleotti/iris/internal/observability"
	"github.com/aleotti/iris/internal/session"
	"github.com/aleotti/iris/internal/voices"
)

// Generator is the remote capability surface the handlers call into.
// *gemini.Client satisfies it; tests substitute a stub.
type Generator interface {
	Chat(ctx context.Context, req gemini.ChatRequest) (*gemini.ChatResult, error)
	GenerateImage(ctx context.Context, prompt string, count int) ([]gemini.ImageResult, error)
	EditImage(ctx context.Context, prompt string, image []byte, mimeType string) (*gemini.ImageResult, error)
	Speak(ctx context.Context, text, voice string) (*gemini.SpeechResult, error)
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	AnalyzeVideo(ctx context.Context, prompt string, video []byte, mimeType string) (string, error)
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	generator Generator
	dialer    live.Dialer
	voices    *voices.Catalog
	history   history.Store
	jobs      *jobs.Manager
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, generator Generator, dialer live.Dialer, catalog *voices.Catalog, store history.Store, jobManager *jobs.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		generator: generator,
		dialer:    dialer,
		voices:    catalog,
		history:   store,
		jobs:      jobManager,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin, so other sites cannot drive a user's mic session
				// if the gateway is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/debug/latency", s.handleLatencySnapshot)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/history", s.handleHistory)

	r.Post("/v1/images/generations", s.handleGenerateImages)
	r.Post("/v1/images/edits", s.handleEditImage)

	r.Post("/v1/videos/generations", s.handleCreateVideoJob)
	r.Get("/v1/videos/generations/{id}", s.handleGetVideoJob)
	r.Post("/v1/videos/generations/{id}/cancel", s.handleCancelVideoJob)
	r.Post("/v1/videos/analyses", s.handleAnalyzeVideo)

	r.Post("/v1/speech", s.handleSpeech)
	r.Post("/v1/transcriptions", s.handleTranscribe)

	r.Get("/v1/voices", s.handleListVoices)

	r.Post("/v1/live/session", s.handleCreateSession)
	r.Post("/v1/live/session/{id}/end", s.handleEndSession)
	r.Get("/v1/live/ws", s.handleLiveWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleLatencySnapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Latency.Snapshot())
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"voices":  s.voices.List(),
		"default": s.cfg.DefaultVoice,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "missing_client_id", "query parameter client_id is required")
		return
	}
	records, err := s.history.Recent(r.Context(), clientID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"exchanges": records})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
