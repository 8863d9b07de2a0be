package live

import (
	"context"
	"errors"
	"time"
)

// Session error taxonomy. Start and teardown report exactly one of these
// (possibly wrapped); any of them leaves the session back in StateIdle with
// all resources released.
var (
	ErrPermissionDenied  = errors.New("audio capture permission denied")
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
	ErrConnectionFailed  = errors.New("live connection failed")
	ErrTransport         = errors.New("live transport error")

	ErrSessionFinished = errors.New("session already finished")
	ErrNotIdle         = errors.New("session is not idle")
)

// Clock abstracts time for the playback scheduler so ordering invariants can
// be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Frame is one captured input audio frame, PCM16LE mono.
type Frame struct {
	PCM        []byte
	SampleRate int
}

// CapturePipeline produces microphone frames for the duration of a session.
// Start acquires the device and begins delivering frames through emit; it
// returns ErrPermissionDenied or ErrDeviceUnavailable when the device cannot
// be acquired. Stop releases the device. The session guarantees Stop is
// called exactly once for every successful Start, on every exit path.
type CapturePipeline interface {
	Start(ctx context.Context, emit func(Frame)) error
	Stop() error
}

// UpstreamEvent is one inbound message from the remote live endpoint.
// At most one of the fields is meaningful per event.
type UpstreamEvent struct {
	Audio        []byte
	SampleRate   int
	Interrupted  bool
	TurnComplete bool
	Closed       bool
}

// Upstream is one open bidirectional connection to the remote endpoint.
// Receive blocks until the next inbound event and returns events strictly in
// arrival order.
type Upstream interface {
	SendAudio(pcm []byte, sampleRate int) error
	Receive() (UpstreamEvent, error)
	Close() error
}

// UpstreamConfig is the one-time session configuration sent at connect.
type UpstreamConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
}

// Dialer opens upstream connections. Dial failures are reported to the
// session caller wrapped in ErrConnectionFailed.
type Dialer interface {
	Dial(ctx context.Context, cfg UpstreamConfig) (Upstream, error)
}
