package gemini

import (
	"context"

	"google.golang.org/genai"
)

// SpeechResult carries synthesized speech as raw PCM.
type SpeechResult struct {
	PCM        []byte
	SampleRate int
}

// ttsSampleRate is the fixed output rate of the speech models.
const ttsSampleRate = 24000

// Speak synthesizes text into speech using the named prebuilt voice.
func (c *Client) Speak(ctx context.Context, text, voice string) (*SpeechResult, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, c.models.Speech, genai.Text(text), cfg)
	})
	if err != nil {
		return nil, remoteErr("speech synthesis", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &SpeechResult{PCM: part.InlineData.Data, SampleRate: ttsSampleRate}, nil
			}
		}
	}
	return nil, emptyResultErr("speech synthesis")
}
