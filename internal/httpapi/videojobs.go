package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aleotti/iris/internal/jobs"
)

type videoJobRequest struct {
	Prompt string `json:"prompt"`
}

type videoJobResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	VideoBase64 string `json:"video_base64,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}

func videoJobView(job jobs.Job) videoJobResponse {
	resp := videoJobResponse{
		ID:     job.ID,
		Status: string(job.Status),
		Error:  job.Error,
	}
	if job.Status == jobs.StatusSucceeded {
		resp.VideoBase64 = base64.StdEncoding.EncodeToString(job.Video)
		resp.MIMEType = job.MIMEType
	}
	return resp
}

func (s *Server) handleCreateVideoJob(w http.ResponseWriter, r *http.Request) {
	var req videoJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "missing_prompt", "prompt is required")
		return
	}

	job := s.jobs.Submit(req.Prompt)
	respondJSON(w, http.StatusAccepted, videoJobView(job))
}

func (s *Server) handleGetVideoJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Get(id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "job_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, videoJobView(job))
}

func (s *Server) handleCancelVideoJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "job_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	job, err := s.jobs.Get(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, videoJobView(job))
}
