package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"

	"github.com/aleotti/iris/internal/live"
)

// LiveDialer opens bidirectional audio sessions against the hosted live
// endpoint. It satisfies live.Dialer.
type LiveDialer struct {
	client *Client
}

// NewLiveDialer wraps an existing Client for live connections.
func NewLiveDialer(c *Client) *LiveDialer {
	return &LiveDialer{client: c}
}

func (d *LiveDialer) Dial(ctx context.Context, cfg live.UpstreamConfig) (live.Upstream, error) {
	model := cfg.Model
	if model == "" {
		model = d.client.models.Live
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		connectCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		connectCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}

	sess, err := d.client.api.Live.Connect(ctx, model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}
	return &liveUpstream{sess: sess, outRate: cfg.OutputSampleRate}, nil
}

// liveUpstream adapts one open live session to the live.Upstream contract.
type liveUpstream struct {
	sess    *genai.Session
	outRate int
}

func (u *liveUpstream) SendAudio(pcm []byte, sampleRate int) error {
	err := u.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     pcm,
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		},
	})
	if err != nil {
		return fmt.Errorf("send realtime audio: %w", err)
	}
	return nil
}

// Receive blocks for the next server message and collapses it into an
// upstream event. Messages carrying nothing of interest are skipped so the
// caller only sees meaningful events.
func (u *liveUpstream) Receive() (live.UpstreamEvent, error) {
	for {
		msg, err := u.sess.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return live.UpstreamEvent{Closed: true}, nil
			}
			return live.UpstreamEvent{}, err
		}
		if msg.ServerContent == nil {
			continue
		}

		sc := msg.ServerContent
		if sc.Interrupted {
			return live.UpstreamEvent{Interrupted: true}, nil
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return live.UpstreamEvent{
						Audio:      part.InlineData.Data,
						SampleRate: u.outRate,
					}, nil
				}
			}
		}
		if sc.TurnComplete {
			return live.UpstreamEvent{TurnComplete: true}, nil
		}
	}
}

func (u *liveUpstream) Close() error {
	return u.sess.Close()
}
