package device

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Speaker plays PCM16LE mono audio through the default output device. Write
// appends audio to the playback buffer; Flush discards everything queued,
// which is how barge-in sounds instantaneous.
type Speaker struct {
	audio *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

func NewSpeaker(sampleRate int) (*Speaker, error) {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		// 100ms buffer keeps response latency low at the cost of glitch
		// headroom on slow machines.
		BufferSize: sampleRate / 10 * 2,
	}
	audio, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &Speaker{audio: audio}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write queues pcm for playback, starting the player lazily on first audio.
func (s *Speaker) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.audio.NewPlayer(readerFunc(s.pull))
		s.player.Play()
	}
	s.cond.Signal()
}

// pull feeds the oto player. It blocks until audio is queued or the speaker
// closes, then hands back silence so oto drains cleanly.
func (s *Speaker) pull(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards all queued audio and stops the current player so the next
// Write starts from silence.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	wasPlaying := s.playing
	s.player = nil
	s.playing = false
	s.mu.Unlock()

	if player != nil && wasPlaying {
		player.Pause()
		player.Reset()
		player.Close()
	}
}

func (s *Speaker) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
