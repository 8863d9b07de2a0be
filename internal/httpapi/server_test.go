package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aleotti/iris/internal/config"
	"github.com/aleotti/iris/internal/gemini"
	"github.com/aleotti/iris/internal/history"
	"github.com/aleotti/iris/internal/jobs"
	"github.com/aleotti/iris/internal/live"
	"github.com/aleotti/iris/internal/observability"
	"github.com/aleotti/iris/internal/session"
	"github.com/aleotti/iris/internal/voices"
)

var metricsSeq atomic.Int64

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("iris_test_%d_%d", time.Now().UnixNano(), metricsSeq.Add(1)))
}

// stubGenerator is a canned Generator for handler tests.
type stubGenerator struct {
	chatResult *gemini.ChatResult
	chatErr    error
	lastChat   gemini.ChatRequest

	images    []gemini.ImageResult
	imagesErr error

	edited  *gemini.ImageResult
	editErr error

	speech    *gemini.SpeechResult
	speechErr error
	lastVoice string

	transcript    string
	transcribeErr error

	analysis   string
	analyzeErr error
}

func (g *stubGenerator) Chat(_ context.Context, req gemini.ChatRequest) (*gemini.ChatResult, error) {
	g.lastChat = req
	return g.chatResult, g.chatErr
}

func (g *stubGenerator) GenerateImage(_ context.Context, _ string, _ int) ([]gemini.ImageResult, error) {
	return g.images, g.imagesErr
}

func (g *stubGenerator) EditImage(_ context.Context, _ string, _ []byte, _ string) (*gemini.ImageResult, error) {
	return g.edited, g.editErr
}

func (g *stubGenerator) Speak(_ context.Context, _ string, voice string) (*gemini.SpeechResult, error) {
	g.lastVoice = voice
	return g.speech, g.speechErr
}

func (g *stubGenerator) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return g.transcript, g.transcribeErr
}

func (g *stubGenerator) AnalyzeVideo(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	return g.analysis, g.analyzeErr
}

// doneVideoGen finishes every video job on the first poll.
type doneVideoGen struct{}

func (doneVideoGen) StartVideo(context.Context, string) (*gemini.VideoOperation, error) {
	return &gemini.VideoOperation{Done: true}, nil
}

func (doneVideoGen) PollVideo(_ context.Context, op *gemini.VideoOperation) (*gemini.VideoOperation, error) {
	return op, nil
}

func (doneVideoGen) DownloadVideo(context.Context, *gemini.VideoOperation) ([]byte, string, error) {
	return []byte("clip"), "video/mp4", nil
}

func newTestServer(t *testing.T, gen Generator, dialer live.Dialer) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		DefaultVoice:             "Aoede",
		LiveModel:                "live-model",
		LiveInputSampleRate:      16000,
		LiveOutputSampleRate:     24000,
		AllowAnyOrigin:           true,
	}
	catalog, err := voices.Load("")
	if err != nil {
		t.Fatalf("voices.Load() error = %v", err)
	}
	jobManager := jobs.NewManager(doneVideoGen{}, jobs.Config{
		PollInterval: 5 * time.Millisecond,
		Deadline:     time.Second,
	})
	t.Cleanup(jobManager.Close)

	srv := New(cfg, session.NewManager(cfg.SessionInactivityTimeout), gen, dialer, catalog, history.NewInMemoryStore(), jobManager, testMetrics())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateAndEndSession(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/live/session", map[string]string{"client_id": "c1"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var created map[string]any
	decodeBody(t, res, &created)
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	if created["voice"] != "Aoede" {
		t.Fatalf("default voice = %v, want Aoede", created["voice"])
	}

	endRes := postJSON(t, ts.URL+"/v1/live/session/"+sessionID+"/end", nil)
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}
}

func TestChatEndpoint(t *testing.T) {
	gen := &stubGenerator{chatResult: &gemini.ChatResult{
		Text:      "The Eiffel Tower is 330m tall.",
		Citations: []gemini.Citation{{Title: "eiffel", URI: "https://example.com", Source: "web"}},
	}}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/chat", map[string]any{
		"prompt":     "how tall is the eiffel tower",
		"use_search": true,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out gemini.ChatResult
	decodeBody(t, res, &out)
	if out.Text == "" || len(out.Citations) != 1 {
		t.Fatalf("unexpected chat result: %+v", out)
	}
	if !gen.lastChat.UseSearch {
		t.Fatalf("use_search flag not forwarded")
	}
}

func TestChatMissingPrompt(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/chat", map[string]string{"prompt": "  "})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestChatRemoteFailure(t *testing.T) {
	gen := &stubGenerator{chatErr: fmt.Errorf("%w: chat: boom", gemini.ErrRemoteRequestFailed)}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/chat", map[string]string{"prompt": "hello"})
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadGateway)
	}
	var out map[string]string
	decodeBody(t, res, &out)
	if out["code"] != "remote_request_failed" {
		t.Fatalf("code = %q", out["code"])
	}
}

func TestGenerateImagesEndpoint(t *testing.T) {
	gen := &stubGenerator{images: []gemini.ImageResult{{Data: []byte("png-bytes"), MIMEType: "image/png"}}}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/images/generations", map[string]any{"prompt": "a fox", "count": 1})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out struct {
		Images []imagePayload `json:"images"`
	}
	decodeBody(t, res, &out)
	if len(out.Images) != 1 || out.Images[0].MIMEType != "image/png" {
		t.Fatalf("unexpected images: %+v", out)
	}
	data, err := base64.StdEncoding.DecodeString(out.Images[0].Base64)
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("image payload roundtrip failed: %v %q", err, data)
	}
}

func TestEditImageEndpoint(t *testing.T) {
	gen := &stubGenerator{edited: &gemini.ImageResult{Data: []byte("edited"), MIMEType: "image/png"}}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/images/edits", map[string]string{
		"prompt":       "add a hat",
		"image_base64": base64.StdEncoding.EncodeToString([]byte("original")),
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out struct {
		Image imagePayload `json:"image"`
	}
	decodeBody(t, res, &out)
	if out.Image.Base64 == "" {
		t.Fatalf("missing edited image payload")
	}
}

func TestSpeechEndpointReturnsWAV(t *testing.T) {
	gen := &stubGenerator{speech: &gemini.SpeechResult{PCM: []byte{0, 0, 0, 0}, SampleRate: 24000}}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/speech", map[string]string{"text": "hello", "voice": "kore"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q", ct)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) < 44 || string(body[:4]) != "RIFF" {
		t.Fatalf("body is not a WAV stream (%d bytes)", len(body))
	}
	if gen.lastVoice != "Kore" {
		t.Fatalf("voice = %q, want resolved catalog name Kore", gen.lastVoice)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	gen := &stubGenerator{transcript: "hello world"}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/transcriptions", map[string]string{
		"audio_base64": base64.StdEncoding.EncodeToString([]byte("pcm")),
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out map[string]string
	decodeBody(t, res, &out)
	if out["text"] != "hello world" {
		t.Fatalf("text = %q", out["text"])
	}
}

func TestAnalyzeVideoEndpoint(t *testing.T) {
	gen := &stubGenerator{analysis: "a dog chases a ball"}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/videos/analyses", map[string]string{
		"video_base64": base64.StdEncoding.EncodeToString([]byte("mp4")),
		"prompt":       "what happens",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var out map[string]string
	decodeBody(t, res, &out)
	if out["text"] != "a dog chases a ball" {
		t.Fatalf("text = %q", out["text"])
	}
}

func TestVideoJobLifecycle(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/videos/generations", map[string]string{"prompt": "sunset timelapse"})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
	var created videoJobResponse
	decodeBody(t, res, &created)
	if created.ID == "" {
		t.Fatalf("missing job id")
	}

	deadline := time.Now().Add(2 * time.Second)
	var job videoJobResponse
	for time.Now().Before(deadline) {
		getRes, err := http.Get(ts.URL + "/v1/videos/generations/" + created.ID)
		if err != nil {
			t.Fatalf("GET job error = %v", err)
		}
		decodeBody(t, getRes, &job)
		if job.Status == string(jobs.StatusSucceeded) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != string(jobs.StatusSucceeded) {
		t.Fatalf("job status = %q, want succeeded", job.Status)
	}
	clip, err := base64.StdEncoding.DecodeString(job.VideoBase64)
	if err != nil || string(clip) != "clip" {
		t.Fatalf("video payload roundtrip failed: %v %q", err, clip)
	}
}

func TestGetUnknownVideoJob(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	res, err := http.Get(ts.URL + "/v1/videos/generations/does-not-exist")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestListVoices(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	res, err := http.Get(ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	var out struct {
		Voices  []voices.Voice `json:"voices"`
		Default string         `json:"default"`
	}
	decodeBody(t, res, &out)
	if len(out.Voices) == 0 || out.Default != "Aoede" {
		t.Fatalf("unexpected voices response: %+v", out)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	gen := &stubGenerator{chatResult: &gemini.ChatResult{Text: "hi"}}
	_, ts := newTestServer(t, gen, &live.MockDialer{})

	res := postJSON(t, ts.URL+"/v1/chat", map[string]string{"client_id": "c9", "prompt": "hello"})
	res.Body.Close()

	histRes, err := http.Get(ts.URL + "/v1/history?client_id=c9")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	var out struct {
		Exchanges []history.ExchangeRecord `json:"exchanges"`
	}
	decodeBody(t, histRes, &out)
	if len(out.Exchanges) != 1 || out.Exchanges[0].Kind != history.KindChat {
		t.Fatalf("unexpected history: %+v", out.Exchanges)
	}
}

func TestHealthAndReady(t *testing.T) {
	_, ts := newTestServer(t, &stubGenerator{}, &live.MockDialer{})

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, res.StatusCode)
		}
	}
}
