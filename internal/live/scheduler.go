package live

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aleotti/iris/internal/audio"
)

// Segment is one decoded unit of assistant audio placed on the playback
// timeline.
type Segment struct {
	ID         string
	Seq        int
	Start      time.Time
	Duration   time.Duration
	PCM        []byte
	SampleRate int
}

// Scheduler sequences assistant audio chunks for gapless in-order playback.
//
// The cursor is monotonically non-decreasing: chunk n starts at
// max(cursor, now) and advances the cursor by its decoded duration, so chunks
// play back-to-back when the network keeps up and a late chunk is clamped to
// "now" (the resulting audible gap is accepted, never resynced). The only
// cursor reset is Interrupt, which collapses it to "now".
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	opened bool
	cursor time.Time
	seq    int
	active map[string]Segment
}

func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		clock:  clock,
		active: make(map[string]Segment),
	}
}

// Open resets the playback timeline to "now". Called once at connection open.
func (s *Scheduler) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	s.cursor = s.clock.Now()
	s.seq = 0
	s.active = make(map[string]Segment)
}

// Schedule places one decoded chunk on the timeline and returns its segment.
func (s *Scheduler) Schedule(pcm []byte, sampleRate int) Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.opened || s.cursor.Before(now) {
		s.cursor = now
	}

	seg := Segment{
		ID:         uuid.NewString(),
		Seq:        s.seq,
		Start:      s.cursor,
		Duration:   audio.Duration(pcm, sampleRate),
		PCM:        pcm,
		SampleRate: sampleRate,
	}
	s.seq++
	s.cursor = s.cursor.Add(seg.Duration)
	s.active[seg.ID] = seg
	return seg
}

// Complete removes a segment that finished playing naturally. Returns false
// when the segment was already stopped by an interruption.
func (s *Scheduler) Complete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	return true
}

// Interrupt force-stops every scheduled-but-unfinished segment, clears the
// active set and collapses the cursor to "now". Returns the stopped segments
// in schedule order.
func (s *Scheduler) Interrupt() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := make([]Segment, 0, len(s.active))
	for _, seg := range s.active {
		stopped = append(stopped, seg)
	}
	sortSegments(stopped)
	s.active = make(map[string]Segment)
	s.cursor = s.clock.Now()
	return stopped
}

// ActiveCount reports how many scheduled segments have not finished.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next playback start time.
func (s *Scheduler) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func sortSegments(segs []Segment) {
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j].Seq < segs[j-1].Seq; j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}
}
