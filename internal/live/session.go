// Package live owns the lifecycle of one bidirectional realtime audio
// conversation: it acquires the input capture pipeline, streams frames to the
// remote endpoint, sequences playback of streamed response audio, and reacts
// to server-signaled interruption (barge-in).
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aleotti/iris/internal/audio"
)

// State is the explicit session state machine.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config is the per-session configuration sent upstream at connect time.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
}

// Session manages exactly one live audio exchange. It is created per connect
// request and is not reusable: after it returns to StateIdle the event
// channel is closed and a fresh Session must be built to reconnect.
//
// The capture pipeline and the upstream connection are owned exclusively by
// the Session and are released exactly once on every exit path (user stop,
// remote close, transport error).
type Session struct {
	cfg     Config
	dialer  Dialer
	capture CapturePipeline
	clock   Clock
	sched   *Scheduler

	mu       sync.Mutex
	state    State
	finished bool
	upstream Upstream
	timers   map[string]*time.Timer

	evMu     sync.Mutex
	evClosed bool
	events   chan Event
}

// NewSession builds an idle session. clock may be nil for the system clock.
func NewSession(cfg Config, dialer Dialer, capture CapturePipeline, clock Clock) *Session {
	if clock == nil {
		clock = SystemClock()
	}
	return &Session{
		cfg:     cfg,
		dialer:  dialer,
		capture: capture,
		clock:   clock,
		sched:   NewScheduler(clock),
		state:   StateIdle,
		timers:  make(map[string]*time.Timer),
		events:  make(chan Event, 256),
	}
}

// Events returns the ordered event stream. The channel is closed once the
// session has fully torn down.
func (s *Session) Events() <-chan Event { return s.events }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveSegments reports the number of scheduled-but-unfinished segments.
func (s *Session) ActiveSegments() int { return s.sched.ActiveCount() }

// Start drives Idle -> Connecting -> Active. On any failure the session is
// back in Idle with the capture pipeline released before the error returns.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.capture.Start(ctx, s.onFrame); err != nil {
		s.failStart()
		return err
	}

	upstream, err := s.dialer.Dial(ctx, UpstreamConfig{
		Model:             s.cfg.Model,
		Voice:             s.cfg.Voice,
		SystemInstruction: s.cfg.SystemInstruction,
		InputSampleRate:   s.cfg.InputSampleRate,
		OutputSampleRate:  s.cfg.OutputSampleRate,
	})
	if err != nil {
		_ = s.capture.Stop()
		s.failStart()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.mu.Lock()
	s.upstream = upstream
	s.state = StateActive
	s.mu.Unlock()
	s.sched.Open()

	s.emit(ReadyEvent{})
	go s.receiveLoop(upstream)
	return nil
}

// Stop ends the session on user request. Safe to call at any time, and more
// than once; teardown happens at most once.
func (s *Session) Stop() {
	s.shutdown(ReasonUserStop, nil)
}

func (s *Session) failStart() {
	s.mu.Lock()
	s.state = StateIdle
	s.finished = true
	s.mu.Unlock()
	s.closeEvents()
}

// onFrame handles one captured input frame. Frames produced before the
// session is Active are dropped; there is no backlog by contract.
func (s *Session) onFrame(f Frame) {
	s.mu.Lock()
	active := s.state == StateActive
	upstream := s.upstream
	s.mu.Unlock()
	if !active || upstream == nil {
		return
	}

	if err := upstream.SendAudio(f.PCM, f.SampleRate); err != nil {
		s.shutdown(ReasonTransport, fmt.Errorf("%w: send frame: %w", ErrTransport, err))
		return
	}
	s.emit(LevelEvent{Level: audio.Level(f.PCM)})
}

func (s *Session) receiveLoop(upstream Upstream) {
	for {
		ev, err := upstream.Receive()
		if err != nil {
			s.shutdown(ReasonTransport, fmt.Errorf("%w: %w", ErrTransport, err))
			return
		}
		switch {
		case ev.Closed:
			s.shutdown(ReasonRemoteClose, nil)
			return
		case ev.Interrupted:
			s.handleInterrupt()
		case ev.TurnComplete:
			s.emit(TurnCompleteEvent{})
		case len(ev.Audio) > 0:
			s.scheduleChunk(ev.Audio, ev.SampleRate)
		}
	}
}

func (s *Session) scheduleChunk(pcm []byte, sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = s.cfg.OutputSampleRate
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	seg := s.sched.Schedule(pcm, sampleRate)
	delay := seg.Start.Sub(s.clock.Now()) + seg.Duration
	if delay < 0 {
		delay = 0
	}
	s.timers[seg.ID] = time.AfterFunc(delay, func() { s.completeSegment(seg.ID) })
	s.mu.Unlock()

	s.emit(SegmentScheduledEvent{Segment: seg})
}

func (s *Session) completeSegment(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()
	s.sched.Complete(id)
}

// handleInterrupt models barge-in: every scheduled segment stops immediately,
// the active set is cleared and the cursor collapses to "now" so the next
// chunk plays without waiting out the stale response.
func (s *Session) handleInterrupt() {
	stopped := s.sched.Interrupt()

	s.mu.Lock()
	for _, seg := range stopped {
		if t, ok := s.timers[seg.ID]; ok {
			t.Stop()
			delete(s.timers, seg.ID)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(stopped))
	for _, seg := range stopped {
		ids = append(ids, seg.ID)
		s.emit(SegmentStoppedEvent{SegmentID: seg.ID})
	}
	s.emit(InterruptedEvent{Stopped: ids})
}

// shutdown performs the single teardown pass: stop capture, close the
// upstream, cancel completion timers, purge scheduled segments, and only then
// surface the close event. First caller wins; later calls are no-ops.
func (s *Session) shutdown(reason CloseReason, err error) {
	s.mu.Lock()
	if s.state == StateClosing || s.finished {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	upstream := s.upstream
	timers := s.timers
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	_ = s.capture.Stop()
	if upstream != nil {
		_ = upstream.Close()
	}
	for _, t := range timers {
		t.Stop()
	}
	s.sched.Interrupt()

	s.mu.Lock()
	s.state = StateIdle
	s.finished = true
	s.mu.Unlock()

	s.emit(ClosedEvent{Reason: reason, Err: err})
	s.closeEvents()
}

func (s *Session) emit(ev Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Keep the session loops non-blocking; a consumer that stops
		// draining loses presentational events, not correctness.
	}
}

func (s *Session) closeEvents() {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	s.evClosed = true
	close(s.events)
}
