package live

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ManualClock is a settable Clock for deterministic scheduling tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockCapture is an in-process CapturePipeline.
type MockCapture struct {
	// StartErr, when set, makes Start fail without acquiring anything.
	StartErr error

	mu         sync.Mutex
	startCalls int
	stopCalls  int
	emit       func(Frame)
}

func (c *MockCapture) Start(_ context.Context, emit func(Frame)) error {
	if c.StartErr != nil {
		return c.StartErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startCalls++
	c.emit = emit
	return nil
}

func (c *MockCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
	return nil
}

// EmitFrame simulates one microphone frame arriving from the device.
func (c *MockCapture) EmitFrame(f Frame) {
	c.mu.Lock()
	emit := c.emit
	c.mu.Unlock()
	if emit != nil {
		emit(f)
	}
}

func (c *MockCapture) StartCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startCalls
}

func (c *MockCapture) StopCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCalls
}

type upstreamItem struct {
	ev  UpstreamEvent
	err error
}

// MockUpstream is a scriptable Upstream: tests enqueue inbound events and
// inspect outbound frames.
type MockUpstream struct {
	// SendErr, when set, fails every SendAudio call.
	SendErr error

	ch chan upstreamItem

	mu         sync.Mutex
	sent       []Frame
	closeCalls int
}

func NewMockUpstream() *MockUpstream {
	return &MockUpstream{ch: make(chan upstreamItem, 64)}
}

// Deliver enqueues one inbound event for Receive.
func (u *MockUpstream) Deliver(ev UpstreamEvent) {
	u.ch <- upstreamItem{ev: ev}
}

// Fail enqueues a receive error, simulating a dropped transport.
func (u *MockUpstream) Fail(err error) {
	u.ch <- upstreamItem{err: err}
}

func (u *MockUpstream) SendAudio(pcm []byte, sampleRate int) error {
	if u.SendErr != nil {
		return u.SendErr
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sent = append(u.sent, Frame{PCM: pcm, SampleRate: sampleRate})
	return nil
}

func (u *MockUpstream) Receive() (UpstreamEvent, error) {
	item, ok := <-u.ch
	if !ok {
		return UpstreamEvent{}, errors.New("upstream connection closed")
	}
	return item.ev, item.err
}

func (u *MockUpstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closeCalls++
	if u.closeCalls == 1 {
		close(u.ch)
	}
	return nil
}

func (u *MockUpstream) CloseCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closeCalls
}

func (u *MockUpstream) SentFrames() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.sent)
}

// MockDialer hands out a fixed upstream or a fixed error.
type MockDialer struct {
	Upstream Upstream
	Err      error

	// OnDial runs before Dial returns, with the session still connecting.
	OnDial func()

	mu        sync.Mutex
	dialCalls int
	gotCfg    UpstreamConfig
}

func (d *MockDialer) Dial(_ context.Context, cfg UpstreamConfig) (Upstream, error) {
	d.mu.Lock()
	d.dialCalls++
	d.gotCfg = cfg
	d.mu.Unlock()
	if d.OnDial != nil {
		d.OnDial()
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Upstream, nil
}

func (d *MockDialer) DialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCalls
}

func (d *MockDialer) Config() UpstreamConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gotCfg
}
