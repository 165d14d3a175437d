package worker

// EventKind identifies what a session event reports.
type EventKind int

const (
	// EventStarted is sent once when a session begins working.
	EventStarted EventKind = iota
	// EventUnitCompleted is sent after each chunk is converted and
	// its artifact written.
	EventUnitCompleted
	// EventUnitFailed is sent when a chunk exhausts its retry budget
	// and is marked permanently failed.
	EventUnitFailed
	// EventAwaitingCheckpoint is sent when a session pauses at a
	// checkpoint boundary.
	EventAwaitingCheckpoint
	// EventCheckpointCleared is sent when a session resumes after a
	// checkpoint confirmation.
	EventCheckpointCleared
	// EventDone is sent when a session finishes its assignment.
	EventDone
	// EventFatal is sent when a session aborts. The remaining
	// assignment is left for a later resumed run.
	EventFatal
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventUnitCompleted:
		return "unit completed"
	case EventUnitFailed:
		return "unit failed"
	case EventAwaitingCheckpoint:
		return "awaiting checkpoint"
	case EventCheckpointCleared:
		return "checkpoint cleared"
	case EventDone:
		return "done"
	case EventFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of a session's counters. Values
// are copies; the receiving side never shares memory with the session.
type Stats struct {
	Assigned        int // chunks in this session's assignment
	Completed       int // chunks converted by this session so far
	Failed          int // chunks this session marked permanently failed
	TotalRequests   int // successful requests across the whole session
	SinceCheckpoint int // successful requests since the last checkpoint
}

// Event is a progress report from one session to the coordinator.
// Sessions never touch shared progress state directly; everything
// flows through events.
type Event struct {
	WorkerID int
	Kind     EventKind
	Index    int // chunk index for unit events, -1 otherwise
	Err      error
	Stats    Stats
}
