// Package budget tracks how many requests a session has issued since
// its last verification checkpoint, so the session can pause for the
// operator before the remote service enforces its hard quota.
package budget

// DefaultThreshold is the default number of requests a session may
// issue before pausing for verification. It sits deliberately below
// the observed hard quota to leave margin for network jitter; the
// trigger is a fixed count rather than anything inferred from response
// timing, because the remote's limit is count-based and time-based
// heuristics under- and over-react unpredictably.
const DefaultThreshold = 55

// Budget counts requests against the checkpoint threshold. A Budget is
// owned by exactly one worker session and mutated only from that
// session's send loop, so it carries no locking.
type Budget struct {
	threshold       int
	sinceCheckpoint int
	total           int
}

// New returns a Budget with the given checkpoint threshold. A
// non-positive threshold falls back to DefaultThreshold.
func New(threshold int) *Budget {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Budget{threshold: threshold}
}

// RecordSuccess counts one successful request against both the
// checkpoint counter and the lifetime total.
func (b *Budget) RecordSuccess() {
	b.sinceCheckpoint++
	b.total++
}

// ShouldCheckpoint reports whether the session has reached its
// checkpoint threshold and must pause for verification before issuing
// further requests.
func (b *Budget) ShouldCheckpoint() bool {
	return b.sinceCheckpoint >= b.threshold
}

// RecordCheckpointCompleted resets the checkpoint counter after the
// operator has completed the verification. The lifetime total is
// never reset.
func (b *Budget) RecordCheckpointCompleted() {
	b.sinceCheckpoint = 0
}

// SinceCheckpoint returns the number of successful requests since the
// last completed checkpoint.
func (b *Budget) SinceCheckpoint() int { return b.sinceCheckpoint }

// Total returns the lifetime number of successful requests.
func (b *Budget) Total() int { return b.total }

// Threshold returns the configured checkpoint threshold.
func (b *Budget) Threshold() int { return b.threshold }
