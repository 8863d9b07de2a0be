// Package jobs tracks asynchronous video generation jobs. A job wraps one
// remote operation and polls it until it finishes, fails, or exceeds the
// configured deadline.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aleotti/iris/internal/gemini"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is a snapshot of one generation. Video and MIMEType are populated only
// once Status is StatusSucceeded.
type Job struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Video    []byte `json:"-"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Generator is the remote side of a video job.
type Generator interface {
	StartVideo(ctx context.Context, prompt string) (*gemini.VideoOperation, error)
	PollVideo(ctx context.Context, op *gemini.VideoOperation) (*gemini.VideoOperation, error)
	DownloadVideo(ctx context.Context, op *gemini.VideoOperation) ([]byte, string, error)
}

type Config struct {
	PollInterval time.Duration
	Deadline     time.Duration
}

// Manager owns all in-flight and finished jobs for the process lifetime.
// Finished jobs stay queryable until shutdown.
type Manager struct {
	gen Generator
	cfg Config

	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc

	onTransition func(status Status)
}

func NewManager(gen Generator, cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 10 * time.Minute
	}
	return &Manager{
		gen:     gen,
		cfg:     cfg,
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// SetTransitionHook registers a callback invoked on every status change.
// Must be called before the first Submit.
func (m *Manager) SetTransitionHook(fn func(status Status)) {
	m.onTransition = fn
}

// Submit registers a new job and starts driving it in the background.
func (m *Manager) Submit(prompt string) Job {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Prompt:    strings.TrimSpace(prompt),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Deadline)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.cancels[job.ID] = cancel
	m.mu.Unlock()
	m.notify(StatusPending)

	go m.run(ctx, cancel, job.ID, job.Prompt)
	return *job
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// Cancel aborts a pending or running job. Finished jobs are left untouched.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	cancel := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == StatusSucceeded || job.Status == StatusFailed || job.Status == StatusCancelled {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Close aborts every in-flight job.
func (m *Manager) Close() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.cancels))
	for _, c := range m.cancels {
		cancels = append(cancels, c)
	}
	m.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, id, prompt string) {
	defer cancel()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, id)
		m.mu.Unlock()
	}()

	op, err := m.gen.StartVideo(ctx, prompt)
	if err != nil {
		m.finish(ctx, id, err)
		return
	}
	m.transition(id, StatusRunning, "")

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			m.finish(ctx, id, ctx.Err())
			return
		case <-ticker.C:
		}
		op, err = m.gen.PollVideo(ctx, op)
		if err != nil {
			m.finish(ctx, id, err)
			return
		}
	}

	video, mime, err := m.gen.DownloadVideo(ctx, op)
	if err != nil {
		m.finish(ctx, id, err)
		return
	}

	m.mu.Lock()
	if job, ok := m.jobs[id]; ok {
		job.Status = StatusSucceeded
		job.Video = video
		job.MIMEType = mime
		job.UpdatedAt = time.Now()
	}
	m.mu.Unlock()
	m.notify(StatusSucceeded)
}

func (m *Manager) finish(ctx context.Context, id string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		m.transition(id, StatusCancelled, "cancelled")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		m.transition(id, StatusFailed, fmt.Sprintf("generation did not finish within %s", m.cfg.Deadline))
	default:
		m.transition(id, StatusFailed, err.Error())
	}
}

func (m *Manager) transition(id string, status Status, errMsg string) {
	m.mu.Lock()
	if job, ok := m.jobs[id]; ok {
		job.Status = status
		job.Error = errMsg
		job.UpdatedAt = time.Now()
	}
	m.mu.Unlock()
	m.notify(status)
}

func (m *Manager) notify(status Status) {
	if m.onTransition != nil {
		m.onTransition(status)
	}
}
