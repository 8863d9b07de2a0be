package session

import "time"

// CreateRequest defines payload for creating a new live session.
type CreateRequest struct {
	ClientID    string `json:"client_id"`
	Voice       string `json:"voice"`
	Instruction string `json:"instruction"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	ClientID        string    `json:"client_id"`
	Status          Status    `json:"status"`
	Voice           string    `json:"voice"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
