package live

// CloseReason records which of the three stop triggers ended a session.
type CloseReason string

const (
	ReasonUserStop    CloseReason = "user_stop"
	ReasonRemoteClose CloseReason = "remote_close"
	ReasonTransport   CloseReason = "transport_error"
)

// Event is one observable session occurrence, delivered strictly in the
// order it was produced. The event channel is closed after ClosedEvent.
type Event interface {
	liveEvent()
}

// ReadyEvent is emitted once when the session reaches StateActive.
type ReadyEvent struct{}

// SegmentScheduledEvent carries one assistant audio segment and its place on
// the playback timeline.
type SegmentScheduledEvent struct {
	Segment Segment
}

// SegmentStoppedEvent reports a segment force-stopped by an interruption.
type SegmentStoppedEvent struct {
	SegmentID string
}

// LevelEvent reports the loudness of the latest captured frame.
type LevelEvent struct {
	Level float64
}

// TurnCompleteEvent marks the end of one assistant response.
type TurnCompleteEvent struct{}

// InterruptedEvent signals barge-in; playback must flush immediately.
type InterruptedEvent struct {
	Stopped []string
}

// ClosedEvent is the final event of a session. Err is non-nil only for
// ReasonTransport.
type ClosedEvent struct {
	Reason CloseReason
	Err    error
}

func (ReadyEvent) liveEvent()            {}
func (SegmentScheduledEvent) liveEvent() {}
func (SegmentStoppedEvent) liveEvent()   {}
func (LevelEvent) liveEvent()            {}
func (TurnCompleteEvent) liveEvent()     {}
func (InterruptedEvent) liveEvent()      {}
func (ClosedEvent) liveEvent()           {}
