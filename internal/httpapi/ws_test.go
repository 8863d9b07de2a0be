package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aleotti/iris/internal/live"
	"github.com/aleotti/iris/internal/protocol"
)

func createLiveSession(t *testing.T, baseURL string) string {
	t.Helper()
	res := postJSON(t, baseURL+"/v1/live/session", map[string]string{"client_id": "ws-client"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", res.StatusCode)
	}
	var created map[string]any
	decodeBody(t, res, &created)
	id, _ := created["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session_id")
	}
	return id
}

func dialWS(t *testing.T, baseURL, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/live/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads server messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ws read error while waiting for %q: %v", want, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("ws frame is not JSON: %v", err)
		}
		if msg["type"] == string(want) {
			return msg
		}
	}
	t.Fatalf("no %q message arrived", want)
	return nil
}

func sendAudioFrame(t *testing.T, conn *websocket.Conn, sessionID string, pcm []byte) {
	t.Helper()
	err := conn.WriteJSON(protocol.ClientAudioFrame{
		Type:        protocol.TypeClientAudioFrame,
		SessionID:   sessionID,
		Seq:         1,
		PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  16000,
	})
	if err != nil {
		t.Fatalf("write audio frame: %v", err)
	}
}

func TestLiveWSConversationFlow(t *testing.T) {
	upstream := live.NewMockUpstream()
	dialer := &live.MockDialer{Upstream: upstream}
	_, ts := newTestServer(t, &stubGenerator{}, dialer)

	sessionID := createLiveSession(t, ts.URL)
	conn := dialWS(t, ts.URL, sessionID)

	ready := readUntil(t, conn, protocol.TypeSessionReady)
	if ready["voice"] != "Aoede" {
		t.Fatalf("ready voice = %v", ready["voice"])
	}

	// Client microphone audio flows through to the upstream connection.
	sendAudioFrame(t, conn, sessionID, make([]byte, 640))
	readUntil(t, conn, protocol.TypeInputLevel)
	if upstream.SentFrames() != 1 {
		t.Fatalf("upstream frames = %d, want 1", upstream.SentFrames())
	}

	// Assistant audio comes back as a scheduled segment.
	upstream.Deliver(live.UpstreamEvent{Audio: make([]byte, 9600), SampleRate: 24000})
	seg := readUntil(t, conn, protocol.TypeAssistantSegment)
	if seg["segment_id"] == "" || seg["duration_ms"].(float64) != 200 {
		t.Fatalf("unexpected segment: %+v", seg)
	}

	// Barge-in flushes playback.
	upstream.Deliver(live.UpstreamEvent{Interrupted: true})
	readUntil(t, conn, protocol.TypeInterrupted)

	// User stop tears the session down and reports the reason.
	err := conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    protocol.ActionStop,
	})
	if err != nil {
		t.Fatalf("write control: %v", err)
	}
	closed := readUntil(t, conn, protocol.TypeSessionClosed)
	if closed["reason"] != "user_stop" {
		t.Fatalf("close reason = %v, want user_stop", closed["reason"])
	}
}

func TestLiveWSRemoteClose(t *testing.T) {
	upstream := live.NewMockUpstream()
	dialer := &live.MockDialer{Upstream: upstream}
	_, ts := newTestServer(t, &stubGenerator{}, dialer)

	sessionID := createLiveSession(t, ts.URL)
	conn := dialWS(t, ts.URL, sessionID)
	readUntil(t, conn, protocol.TypeSessionReady)

	upstream.Deliver(live.UpstreamEvent{Closed: true})
	closed := readUntil(t, conn, protocol.TypeSessionClosed)
	if closed["reason"] != "remote_close" {
		t.Fatalf("close reason = %v, want remote_close", closed["reason"])
	}
}

func TestLiveWSTransportErrorReportsRetryable(t *testing.T) {
	upstream := live.NewMockUpstream()
	dialer := &live.MockDialer{Upstream: upstream}
	_, ts := newTestServer(t, &stubGenerator{}, dialer)

	sessionID := createLiveSession(t, ts.URL)
	conn := dialWS(t, ts.URL, sessionID)
	readUntil(t, conn, protocol.TypeSessionReady)

	upstream.Fail(errors.New("stream reset"))
	errEvent := readUntil(t, conn, protocol.TypeErrorEvent)
	if errEvent["retryable"] != true {
		t.Fatalf("transport error should be retryable: %+v", errEvent)
	}
	closed := readUntil(t, conn, protocol.TypeSessionClosed)
	if closed["reason"] != "transport_error" {
		t.Fatalf("close reason = %v, want transport_error", closed["reason"])
	}
}

func TestLiveWSDialFailure(t *testing.T) {
	dialer := &live.MockDialer{Err: errors.New("connection refused")}
	_, ts := newTestServer(t, &stubGenerator{}, dialer)

	sessionID := createLiveSession(t, ts.URL)
	conn := dialWS(t, ts.URL, sessionID)

	errEvent := readUntil(t, conn, protocol.TypeErrorEvent)
	if errEvent["code"] != "connection_failed" {
		t.Fatalf("error code = %v, want connection_failed", errEvent["code"])
	}
}

func TestLiveWSUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/live/ws?session_id=missing"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial should fail for unknown session")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake rejection, got %+v", res)
	}
}
