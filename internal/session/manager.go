// Package session tracks live voice session records for the gateway: one
// record per realtime conversation, at most one active per client.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID                string    `json:"session_id"`
	ClientID          string    `json:"client_id"`
	Status            Status    `json:"status"`
	Voice             string    `json:"voice"`
	Instruction       string    `json:"instruction,omitempty"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// Manager is the in-memory session registry. A janitor expires records whose
// client stopped talking to the gateway without ending them.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByClient   map[string]string
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	onEvict           func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByClient:   make(map[string]string),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetEvictHook observes sessions ended implicitly because their client
// created a replacement.
func (m *Manager) SetEvictHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = hook
}

// Create registers a new active session. A client holds at most one active
// session: any previous one for the same client is ended first.
func (m *Manager) Create(clientID, voice, instruction string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		Voice:          voice,
		Instruction:    instruction,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	var evicted *Session

	m.mu.Lock()
	if clientID != "" {
		if prevID, ok := m.sessionByClient[clientID]; ok {
			if prev, ok := m.sessions[prevID]; ok && prev.Status == StatusActive {
				prev.Status = StatusEnded
				prev.LastActivityAt = now
				evicted = clone(prev)
			}
		}
		m.sessionByClient[clientID] = s.ID
	}
	m.sessions[s.ID] = s
	hook := m.onEvict
	m.mu.Unlock()

	if evicted != nil && hook != nil {
		hook(evicted)
	}
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Interrupt records one barge-in occurrence.
func (m *Manager) Interrupt(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.InterruptionCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	if s.ClientID != "" && m.sessionByClient[s.ClientID] == s.ID {
		delete(m.sessionByClient, s.ClientID)
	}
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		if s.ClientID != "" && m.sessionByClient[s.ClientID] == s.ID {
			delete(m.sessionByClient, s.ClientID)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
