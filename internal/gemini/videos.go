package gemini

import (
	"context"

	"google.golang.org/genai"
)

// VideoOperation is the remote handle for an in-flight video generation.
type VideoOperation struct {
	op   *genai.GenerateVideosOperation
	Done bool
}

// StartVideo begins a video generation and returns the remote operation
// handle. Generation runs asynchronously; poll with PollVideo.
func (c *Client) StartVideo(ctx context.Context, prompt string) (*VideoOperation, error) {
	op, err := withRetry(ctx, func() (*genai.GenerateVideosOperation, error) {
		return c.api.Models.GenerateVideos(ctx, c.models.Video, prompt, nil, nil)
	})
	if err != nil {
		return nil, remoteErr("video generation", err)
	}
	return &VideoOperation{op: op, Done: op.Done}, nil
}

// PollVideo refreshes the operation state. The returned handle replaces the
// input one.
func (c *Client) PollVideo(ctx context.Context, vo *VideoOperation) (*VideoOperation, error) {
	op, err := withRetry(ctx, func() (*genai.GenerateVideosOperation, error) {
		return c.api.Operations.GetVideosOperation(ctx, vo.op, nil)
	})
	if err != nil {
		return nil, remoteErr("video poll", err)
	}
	return &VideoOperation{op: op, Done: op.Done}, nil
}

// DownloadVideo fetches the bytes of a finished generation.
func (c *Client) DownloadVideo(ctx context.Context, vo *VideoOperation) ([]byte, string, error) {
	if vo.op.Response == nil || len(vo.op.Response.GeneratedVideos) == 0 {
		return nil, "", emptyResultErr("video download")
	}
	video := vo.op.Response.GeneratedVideos[0].Video
	if video == nil {
		return nil, "", emptyResultErr("video download")
	}
	if len(video.VideoBytes) == 0 {
		data, err := c.api.Files.Download(ctx, video, nil)
		if err != nil {
			return nil, "", remoteErr("video download", err)
		}
		video.VideoBytes = data
	}
	mime := video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return video.VideoBytes, mime, nil
}
