package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aleotti/iris/internal/live"
	"github.com/aleotti/iris/internal/observability"
	"github.com/aleotti/iris/internal/protocol"
	"github.com/aleotti/iris/internal/reliability"
	"github.com/aleotti/iris/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		req.ClientID = "anonymous"
	}
	voice := s.voices.Resolve(req.Voice, s.cfg.DefaultVoice)
	if strings.TrimSpace(req.Instruction) == "" {
		req.Instruction = s.cfg.SystemInstruction
	}

	sess := s.sessions.Create(req.ClientID, voice.Name, req.Instruction)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		ClientID:        sess.ClientID,
		Status:          sess.Status,
		Voice:           sess.Voice,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

// handleLiveWS bridges one websocket connection onto one live.Session: client
// audio frames feed the capture side, session events stream back as protocol
// messages. The websocket is the client's capture pipeline; closing it is a
// user stop.
func (s *Server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	rec, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if rec.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", "session is no longer active")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	capture := &wsCapture{}
	liveSess := live.NewSession(live.Config{
		Model:             s.cfg.LiveModel,
		Voice:             rec.Voice,
		SystemInstruction: rec.Instruction,
		InputSampleRate:   s.cfg.LiveInputSampleRate,
		OutputSampleRate:  s.cfg.LiveOutputSampleRate,
	}, s.dialer, capture, nil)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	dialStart := time.Now()
	if err := liveSess.Start(ctx); err != nil {
		_ = s.writeMessage(conn, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      startErrorCode(err),
			Retryable: true,
			Detail:    err.Error(),
		})
		s.endSessionRecord(sessionID)
		return
	}
	s.metrics.Latency.Observe(observability.StageConnect, float64(time.Since(dialStart).Milliseconds()))

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pumpEvents(conn, sessionID, rec.Voice, liveSess)
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", "invalid").Inc()
			continue
		}

		switch msg := parsed.(type) {
		case protocol.ClientAudioFrame:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientAudioFrame)).Inc()
			pcm, err := base64.StdEncoding.DecodeString(msg.PCM16Base64)
			if err != nil {
				continue
			}
			_ = s.sessions.Touch(sessionID)
			capture.push(live.Frame{PCM: pcm, SampleRate: msg.SampleRate})
		case protocol.ClientControl:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientControl)).Inc()
			if msg.Action == protocol.ActionStop {
				liveSess.Stop()
			}
		}
	}

	// Client went away or asked to stop; either way the session ends now.
	liveSess.Stop()
	<-pumpDone
	s.endSessionRecord(sessionID)
}

// pumpEvents is the sole websocket writer: it drains the session event stream
// in order and translates each event onto the wire.
func (s *Server) pumpEvents(conn *websocket.Conn, sessionID, voice string, liveSess *live.Session) {
	var readyAt time.Time
	firstAudioSeen := false

	for ev := range liveSess.Events() {
		switch e := ev.(type) {
		case live.ReadyEvent:
			readyAt = time.Now()
			s.send(conn, protocol.SessionReady{
				Type:             protocol.TypeSessionReady,
				SessionID:        sessionID,
				Voice:            voice,
				InputSampleRate:  s.cfg.LiveInputSampleRate,
				OutputSampleRate: s.cfg.LiveOutputSampleRate,
			})
		case live.SegmentScheduledEvent:
			if !firstAudioSeen && !readyAt.IsZero() {
				firstAudioSeen = true
				lat := time.Since(readyAt)
				s.metrics.ObserveFirstAudioLatency(lat)
				if s.cfg.FirstAudioSLO > 0 && lat > s.cfg.FirstAudioSLO {
					log.Printf("session %s: first audio after %s (target %s)", sessionID, lat, s.cfg.FirstAudioSLO)
				}
			}
			seg := e.Segment
			startMS := int64(0)
			if !readyAt.IsZero() {
				startMS = seg.Start.Sub(readyAt).Milliseconds()
			}
			s.send(conn, protocol.AssistantSegment{
				Type:        protocol.TypeAssistantSegment,
				SessionID:   sessionID,
				SegmentID:   seg.ID,
				Seq:         seg.Seq,
				StartMS:     startMS,
				DurationMS:  seg.Duration.Milliseconds(),
				AudioBase64: base64.StdEncoding.EncodeToString(seg.PCM),
				SampleRate:  seg.SampleRate,
			})
		case live.SegmentStoppedEvent:
			s.send(conn, protocol.SegmentStopped{
				Type:      protocol.TypeSegmentStopped,
				SessionID: sessionID,
				SegmentID: e.SegmentID,
			})
		case live.LevelEvent:
			s.send(conn, protocol.InputLevel{
				Type:      protocol.TypeInputLevel,
				SessionID: sessionID,
				Level:     e.Level,
			})
		case live.TurnCompleteEvent:
			s.send(conn, protocol.TurnComplete{
				Type:      protocol.TypeTurnComplete,
				SessionID: sessionID,
			})
		case live.InterruptedEvent:
			_ = s.sessions.Interrupt(sessionID)
			s.metrics.SessionEvents.WithLabelValues("interrupted").Inc()
			s.send(conn, protocol.Interrupted{
				Type:      protocol.TypeInterrupted,
				SessionID: sessionID,
			})
		case live.ClosedEvent:
			if e.Err != nil {
				s.send(conn, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      "transport_error",
					Retryable: reliability.IsRetryableCloseReason(string(e.Reason)),
					Detail:    e.Err.Error(),
				})
			}
			s.send(conn, protocol.SessionClosed{
				Type:      protocol.TypeSessionClosed,
				SessionID: sessionID,
				Reason:    string(e.Reason),
			})
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg any) {
	if err := s.writeMessage(conn, msg); err != nil {
		return
	}
	if t, ok := messageTypeOf(msg); ok {
		s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	}
}

func (s *Server) writeMessage(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func (s *Server) endSessionRecord(sessionID string) {
	if _, err := s.sessions.End(sessionID); err == nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, live.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, live.ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, live.ErrConnectionFailed):
		return "connection_failed"
	default:
		return "transport_error"
	}
}

// wsCapture adapts inbound websocket audio frames to the session's capture
// pipeline contract. The client owns the real microphone; frames arriving
// before Start or after Stop are dropped.
type wsCapture struct {
	mu   sync.Mutex
	emit func(live.Frame)
}

func (c *wsCapture) Start(_ context.Context, emit func(live.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit = emit
	return nil
}

func (c *wsCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit = nil
	return nil
}

func (c *wsCapture) push(f live.Frame) {
	c.mu.Lock()
	emit := c.emit
	c.mu.Unlock()
	if emit != nil {
		emit(f)
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioFrame:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionReady:
		return m.Type, true
	case protocol.AssistantSegment:
		return m.Type, true
	case protocol.SegmentStopped:
		return m.Type, true
	case protocol.InputLevel:
		return m.Type, true
	case protocol.TurnComplete:
		return m.Type, true
	case protocol.Interrupted:
		return m.Type, true
	case protocol.SessionClosed:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
