package logic

import "time"

// Escalation measures how long the controller has gone without any usable
// reading. It tracks a single unbroken failure streak.
type Escalation struct {
	since   time.Time
	pending bool
}

// NewEscalation returns a tracker in the none state.
func NewEscalation() *Escalation {
	return &Escalation{}
}

// OnSuccess ends the current failure streak, if any.
func (e *Escalation) OnSuccess(now time.Time) {
	e.pending = false
	e.since = time.Time{}
}

// OnFailure records a failure at now and returns how long the streak has lasted.
// The first failure of a streak returns zero.
func (e *Escalation) OnFailure(now time.Time) time.Duration {
	if !e.pending {
		e.pending = true
		e.since = now
		return 0
	}
	elapsed := now.Sub(e.since)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Pending reports the start of the current streak.
func (e *Escalation) Pending() (time.Time, bool) {
	return e.since, e.pending
}

// Exceeded reports whether an outage of elapsed reaches limit. The boundary is inclusive.
func Exceeded(elapsed, limit time.Duration) bool {
	return elapsed >= limit
}
