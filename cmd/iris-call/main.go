// iris-call is a terminal voice client for an iris gateway: it streams the
// local microphone to a live session and plays assistant audio back through
// the speakers, flushing immediately on barge-in.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aleotti/iris/internal/device"
	"github.com/aleotti/iris/internal/live"
	"github.com/aleotti/iris/internal/protocol"
	"github.com/aleotti/iris/internal/session"
)

const (
	inputSampleRate  = 16000
	outputSampleRate = 24000
)

func main() {
	gateway := flag.String("gateway", "http://localhost:8080", "iris gateway base URL")
	clientID := flag.String("client", "iris-call", "client identifier")
	voice := flag.String("voice", "", "voice name (gateway default when empty)")
	instruction := flag.String("instruction", "", "system instruction override")
	flag.Parse()

	if err := run(*gateway, *clientID, *voice, *instruction); err != nil {
		log.Fatalf("iris-call: %v", err)
	}
}

func run(gateway, clientID, voice, instruction string) error {
	created, err := createSession(gateway, clientID, voice, instruction)
	if err != nil {
		return err
	}
	log.Printf("session %s (voice %s)", created.SessionID, created.Voice)

	wsURL, err := websocketURL(gateway, created.SessionID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	speaker, err := device.NewSpeaker(outputSampleRate)
	if err != nil {
		return err
	}
	defer speaker.Close()

	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	seq := 0
	var seqMu sync.Mutex
	mic := device.NewMic(inputSampleRate)
	err = mic.Start(context.Background(), func(f live.Frame) {
		seqMu.Lock()
		seq++
		n := seq
		seqMu.Unlock()
		_ = writeJSON(protocol.ClientAudioFrame{
			Type:        protocol.TypeClientAudioFrame,
			SessionID:   created.SessionID,
			Seq:         n,
			PCM16Base64: base64.StdEncoding.EncodeToString(f.PCM),
			SampleRate:  f.SampleRate,
		})
	})
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	defer mic.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		receiveLoop(conn, speaker)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-sigCh:
		log.Printf("stopping session")
		_ = writeJSON(protocol.ClientControl{
			Type:      protocol.TypeClientControl,
			SessionID: created.SessionID,
			Action:    protocol.ActionStop,
		})
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}
	}
	return nil
}

func receiveLoop(conn *websocket.Conn, speaker *device.Speaker) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		parsed, err := protocol.ParseServerMessage(data)
		if err != nil {
			continue
		}
		switch msg := parsed.(type) {
		case protocol.SessionReady:
			log.Printf("connected; start talking")
		case protocol.AssistantSegment:
			pcm, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
			if err != nil {
				continue
			}
			speaker.Write(pcm)
		case protocol.Interrupted:
			speaker.Flush()
		case protocol.ErrorEvent:
			log.Printf("gateway error [%s]: %s (retryable=%v)", msg.Code, msg.Detail, msg.Retryable)
		case protocol.SessionClosed:
			log.Printf("session closed: %s", msg.Reason)
			return
		}
	}
}

func createSession(gateway, clientID, voice, instruction string) (*session.CreateResponse, error) {
	body, err := json.Marshal(session.CreateRequest{
		ClientID:    clientID,
		Voice:       voice,
		Instruction: instruction,
	})
	if err != nil {
		return nil, err
	}
	res, err := http.Post(strings.TrimRight(gateway, "/")+"/v1/live/session", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create session: unexpected status %d", res.StatusCode)
	}
	var created session.CreateResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	return &created, nil
}

func websocketURL(gateway, sessionID string) (string, error) {
	u, err := url.Parse(gateway)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("gateway URL must be http(s)")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/live/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
