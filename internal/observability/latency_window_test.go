package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(4)
	for _, ms := range []float64{100, 200, 300, 400} {
		w.Observe(StageFirstAudio, ms)
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageFirstAudio || s.Samples != 4 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	if s.LastMS != 400 || s.AvgMS != 250 {
		t.Fatalf("last/avg = %v/%v", s.LastMS, s.AvgMS)
	}
	if s.P50MS < 200 || s.P50MS > 300 {
		t.Fatalf("p50 = %v", s.P50MS)
	}
}

func TestLatencyWindowRingOverwrite(t *testing.T) {
	w := NewLatencyWindow(2)
	w.Observe(StageConnect, 10)
	w.Observe(StageConnect, 20)
	w.Observe(StageConnect, 30)

	snap := w.Snapshot()
	s := snap.Stages[0]
	if s.Samples != 2 || s.AvgMS != 25 {
		t.Fatalf("ring window stats: %+v", s)
	}
}

func TestLatencyWindowIgnoresInvalid(t *testing.T) {
	w := NewLatencyWindow(4)
	w.Observe("", 5)
	w.Observe(StageConnect, -1)
	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("stages = %d, want 0", got)
	}
}
