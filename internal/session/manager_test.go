package session

import (
	"context"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("c1", "Aoede", "")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ClientID != "c1" || got.Voice != "Aoede" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
}

func TestManagerSecondSessionEvictsFirst(t *testing.T) {
	m := NewManager(time.Minute)
	var evicted []string
	m.SetEvictHook(func(s *Session) { evicted = append(evicted, s.ID) })

	first := m.Create("c1", "Aoede", "")
	second := m.Create("c1", "Kore", "")

	got, err := m.Get(first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("first session status = %q, want ended", got.Status)
	}
	if len(evicted) != 1 || evicted[0] != first.ID {
		t.Fatalf("evicted = %v, want [%s]", evicted, first.ID)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", m.ActiveCount())
	}
	if second.Voice != "Kore" {
		t.Fatalf("second voice = %q", second.Voice)
	}
}

func TestManagerInterruptIncrementsCount(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("c1", "Aoede", "")
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.InterruptionCount != 2 {
		t.Fatalf("InterruptionCount = %d, want 2", got.InterruptionCount)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("c1", "Aoede", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", got.Status, StatusEnded)
	}
}
