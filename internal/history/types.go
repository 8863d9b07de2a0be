package history

import (
	"context"
	"time"
)

// ExchangeRecord stores one completed request/response exchange.
type ExchangeRecord struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Exchange kinds.
const (
	KindChat          = "chat"
	KindSpeech        = "speech"
	KindTranscription = "transcription"
	KindAnalysis      = "analysis"
)

// Store persists and retrieves exchange history.
type Store interface {
	SaveExchange(ctx context.Context, record ExchangeRecord) error
	Recent(ctx context.Context, clientID string, limit int) ([]ExchangeRecord, error)
	Close() error
}
