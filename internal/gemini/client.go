// Package gemini wraps the hosted Gemini API. Every remote capability of the
// gateway (chat, image, video, speech, transcription, live audio) is a thin
// call into this package; all model inference happens remotely.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/aleotti/iris/internal/reliability"
)

// ErrRemoteRequestFailed is the taxonomy code for any generation or analysis
// call that errored or came back empty.
var ErrRemoteRequestFailed = errors.New("remote request failed")

// Models names the remote model for each capability.
type Models struct {
	Chat       string
	Image      string
	ImageEdit  string
	Video      string
	Speech     string
	Transcribe string
	Live       string
}

// Config carries the credential and model selection for a Client.
type Config struct {
	APIKey string
	Models Models
}

// Client is the shared handle for all remote calls.
type Client struct {
	api    *genai.Client
	models Models
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &Client{api: api, models: cfg.Models}, nil
}

const (
	retryAttempts = 3
	retryBase     = 500 * time.Millisecond
	retryCap      = 4 * time.Second
)

// withRetry runs one remote call, retrying transient failures with capped
// exponential backoff.
func withRetry[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, retryBase, retryCap)):
			}
		}
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return reliability.IsRetryableHTTPStatus(apiErr.Code)
	}
	return false
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteRequestFailed, op, err)
}

func emptyResultErr(op string) error {
	return fmt.Errorf("%w: %s: empty result", ErrRemoteRequestFailed, op)
}
