// Package device provides local microphone capture and speaker playback for
// the command line voice client. The gateway itself never touches audio
// hardware; browsers and the CLI own their devices.
package device

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/aleotti/iris/internal/live"
)

// Mic captures PCM16LE mono frames from the default input device. It
// satisfies live.CapturePipeline.
type Mic struct {
	sampleRate int

	mu     sync.Mutex
	audio  *malgo.AllocatedContext
	device *malgo.Device
}

func NewMic(sampleRate int) *Mic {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Mic{sampleRate: sampleRate}
}

func (m *Mic) Start(_ context.Context, emit func(live.Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return fmt.Errorf("%w: capture already running", live.ErrDeviceUnavailable)
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	audio, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return classifyDeviceErr("init audio context", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(m.sampleRate)
	devCfg.PeriodSizeInMilliseconds = 20

	rate := m.sampleRate
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// The callback buffer is reused by malgo; copy before emitting.
			pcm := append([]byte(nil), input...)
			emit(live.Frame{PCM: pcm, SampleRate: rate})
		},
	}

	device, err := malgo.InitDevice(audio.Context, devCfg, callbacks)
	if err != nil {
		_ = audio.Uninit()
		return classifyDeviceErr("open microphone", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = audio.Uninit()
		return classifyDeviceErr("start microphone", err)
	}

	m.audio = audio
	m.device = device
	return nil
}

func (m *Mic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.audio != nil {
		_ = m.audio.Uninit()
		m.audio = nil
	}
	return nil
}

// classifyDeviceErr folds platform error strings into the session taxonomy.
func classifyDeviceErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %s: %v", live.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %v", live.ErrDeviceUnavailable, op, err)
}
