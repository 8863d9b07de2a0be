package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

const (
	transcribePrompt = "Transcribe this audio verbatim. Output only the transcript."

	defaultAnalysisPrompt = "Describe what happens in this video."
)

// Transcribe converts recorded audio into text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return c.describeMedia(ctx, transcribePrompt, audio, mimeType, "transcription")
}

// AnalyzeVideo answers a free-form question about a video. An empty prompt
// asks for a general description.
func (c *Client) AnalyzeVideo(ctx context.Context, prompt string, video []byte, mimeType string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultAnalysisPrompt
	}
	return c.describeMedia(ctx, prompt, video, mimeType, "video analysis")
}

func (c *Client) describeMedia(ctx context.Context, prompt string, media []byte, mimeType, op string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(media, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, c.models.Transcribe, contents, nil)
	})
	if err != nil {
		return "", remoteErr(op, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", emptyResultErr(op)
	}
	return text, nil
}
