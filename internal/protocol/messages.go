package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Client -> gateway.
	TypeClientAudioFrame MessageType = "client_audio_frame"
	TypeClientControl    MessageType = "client_control"

	// Gateway -> client.
	TypeSessionReady     MessageType = "session_ready"
	TypeAssistantSegment MessageType = "assistant_audio_segment"
	TypeSegmentStopped   MessageType = "segment_stopped"
	TypeInputLevel       MessageType = "input_level"
	TypeTurnComplete     MessageType = "turn_complete"
	TypeInterrupted      MessageType = "interrupted"
	TypeSessionClosed    MessageType = "session_closed"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted in a ClientControl message.
const (
	ActionStop = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAudioFrame carries one captured microphone frame, PCM16LE mono.
type ClientAudioFrame struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// SessionReady acknowledges that the upstream live connection is open and the
// session has entered its active state.
type SessionReady struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	Voice            string      `json:"voice"`
	InputSampleRate  int         `json:"input_sample_rate"`
	OutputSampleRate int         `json:"output_sample_rate"`
}

// AssistantSegment is one scheduled unit of assistant audio. StartMS is the
// segment's start offset on the session playback timeline; segments from one
// uninterrupted response are back-to-back by construction.
type AssistantSegment struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	SegmentID   string      `json:"segment_id"`
	Seq         int         `json:"seq"`
	StartMS     int64       `json:"start_ms"`
	DurationMS  int64       `json:"duration_ms"`
	AudioBase64 string      `json:"audio_base64"`
	SampleRate  int         `json:"sample_rate"`
}

// SegmentStopped tells the client a scheduled segment was force-stopped.
type SegmentStopped struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	SegmentID string      `json:"segment_id"`
}

// InputLevel reports mean absolute amplitude of the latest captured frame,
// normalized to [0,1]. Presentational only.
type InputLevel struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Level     float64     `json:"level"`
}

type TurnComplete struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// Interrupted signals barge-in: the client must flush its playback buffer
// immediately rather than at a segment boundary.
type Interrupted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type SessionClosed struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates a message received from a client.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioFrame:
		var msg ClientAudioFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_frame")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseServerMessage decodes a gateway message on the client side.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSessionReady:
		var msg SessionReady
		return msg, json.Unmarshal(raw, &msg)
	case TypeAssistantSegment:
		var msg AssistantSegment
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SegmentID == "" || msg.AudioBase64 == "" {
			return nil, errors.New("invalid assistant_audio_segment")
		}
		return msg, nil
	case TypeSegmentStopped:
		var msg SegmentStopped
		return msg, json.Unmarshal(raw, &msg)
	case TypeInputLevel:
		var msg InputLevel
		return msg, json.Unmarshal(raw, &msg)
	case TypeTurnComplete:
		var msg TurnComplete
		return msg, json.Unmarshal(raw, &msg)
	case TypeInterrupted:
		var msg Interrupted
		return msg, json.Unmarshal(raw, &msg)
	case TypeSessionClosed:
		var msg SessionClosed
		return msg, json.Unmarshal(raw, &msg)
	case TypeErrorEvent:
		var msg ErrorEvent
		return msg, json.Unmarshal(raw, &msg)
	default:
		return nil, ErrUnsupportedType
	}
}
