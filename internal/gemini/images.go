package gemini

import (
	"context"

	"google.golang.org/genai"
)

// ImageResult is one generated or edited image.
type ImageResult struct {
	Data     []byte
	MIMEType string
}

// GenerateImage renders count images from a text prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string, count int) ([]ImageResult, error) {
	if count <= 0 {
		count = 1
	}
	resp, err := withRetry(ctx, func() (*genai.GenerateImagesResponse, error) {
		return c.api.Models.GenerateImages(ctx, c.models.Image, prompt, &genai.GenerateImagesConfig{
			NumberOfImages: int32(count),
		})
	})
	if err != nil {
		return nil, remoteErr("image generation", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, emptyResultErr("image generation")
	}

	out := make([]ImageResult, 0, len(resp.GeneratedImages))
	for _, img := range resp.GeneratedImages {
		if img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		out = append(out, ImageResult{Data: img.Image.ImageBytes, MIMEType: img.Image.MIMEType})
	}
	if len(out) == 0 {
		return nil, emptyResultErr("image generation")
	}
	return out, nil
}

// EditImage applies a text instruction to a source image and returns the
// edited version.
func (c *Client) EditImage(ctx context.Context, prompt string, image []byte, mimeType string) (*ImageResult, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := withRetry(ctx, func() (*genai.GenerateContentResponse, error) {
		return c.api.Models.GenerateContent(ctx, c.models.ImageEdit, contents, nil)
	})
	if err != nil {
		return nil, remoteErr("image edit", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &ImageResult{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}
	return nil, emptyResultErr("image edit")
}
