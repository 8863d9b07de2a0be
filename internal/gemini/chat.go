package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// ChatRequest is one text-generation call with optional tool augmentation.
type ChatRequest struct {
	Prompt      string
	Instruction string

	// UseSearch attaches the web search tool; UseMaps attaches map
	// grounding, optionally anchored to a location.
	UseSearch bool
	UseMaps   bool
	Latitude  float64
	Longitude float64

	// ThinkingBudget > 0 grants the model an extended reasoning budget
	// (tokens).
	ThinkingBudget int
}

// Citation is one grounding source attached to a generated answer.
type Citation struct {
	Title  string `json:"title"`
	URI    string `json:"uri"`
	Source string `json:"source"` // "web" or "maps"
}

type ChatResult struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// Chat performs one synchronous text generation call.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.Instruction) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
	}
	if req.UseSearch {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if req.UseMaps {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
		if req.Latitude != 0 || req.Longitude != 0 {
			cfg.ToolConfig = &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{Latitude: genai.Ptr(req.Latitude), Longitude: genai.Ptr(req.Longitude)},
				},
			}
		}
	}
	if req.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(req.ThinkingBudget)),
		}
	}

	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, c.models.Chat, genai.Text(req.Prompt), cfg)
	})
	if err != nil {
		return nil, remoteErr("chat", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, emptyResultErr("chat")
	}

	return &ChatResult{
		Text:      text,
		Citations: extractCitations(resp),
	}, nil
}

func extractCitations(resp *genai.GenerateContentResponse) []Citation {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []Citation
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		switch {
		case chunk.Web != nil:
			out = append(out, Citation{Title: chunk.Web.Title, URI: chunk.Web.URI, Source: "web"})
		case chunk.Maps != nil:
			out = append(out, Citation{Title: chunk.Maps.Title, URI: chunk.Maps.URI, Source: "maps"})
		}
	}
	return out
}
