// Package status provides a thread-safe view of the controller's state.
// The control loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/fridge-controller/internal/logic"
)

// Config contains controller configuration for display.
type Config struct {
	ThresholdC   float64
	DeltaC       float64
	PollInterval time.Duration
	CacheTTL     time.Duration
	OutageLimit  time.Duration
	Location     string
	Device       string
	HTTPAddr     string
}

// Counts accumulates tick outcomes since start.
type Counts struct {
	Ticks           int
	TurnOn          int
	TurnOff         int
	Idle            int
	SafeMode        int
	FetchFailures   int
	CommandFailures int
}

// Tick is what the control loop reports after each iteration.
type Tick struct {
	At          time.Time
	Mode        logic.Mode
	Action      logic.Action
	Reading     logic.Reading
	HasReading  bool
	FromCache   bool
	FetchFailed bool
	// OutageSince is zero when there is no ongoing outage.
	OutageSince time.Time
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Mode       logic.Mode
	LastAction logic.Action
	LastTick   time.Time

	Reading    logic.Reading
	HasReading bool
	FromCache  bool

	OutageSince time.Time

	PowerKnown bool
	PowerOn    bool

	// ConsecutiveCommandFailures resets on the next successful command.
	ConsecutiveCommandFailures int

	Counts          Counts
	StartTime       time.Time
	Now             time.Time
	EventsConnected bool
	Config          Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// ReadingAge is how old the last reading is, or 0 without one.
func (s Snapshot) ReadingAge() time.Duration {
	if !s.HasReading {
		return 0
	}
	return s.Reading.Age(s.Now)
}

// Outage is how long fetches have been failing, or 0.
func (s Snapshot) Outage() time.Duration {
	if s.OutageSince.IsZero() {
		return 0
	}
	return s.Now.Sub(s.OutageSince)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker in STARTING mode.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Mode:      logic.ModeStarting,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records one loop iteration.
func (t *Tracker) Update(tick Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	s.Mode = tick.Mode
	s.LastAction = tick.Action
	s.LastTick = tick.At
	if tick.HasReading {
		s.Reading = tick.Reading
		s.HasReading = true
	}
	s.FromCache = tick.FromCache
	s.OutageSince = tick.OutageSince

	s.Counts.Ticks++
	switch tick.Action {
	case logic.ActionTurnOn:
		s.Counts.TurnOn++
	case logic.ActionTurnOff:
		s.Counts.TurnOff++
	case logic.ActionIdle:
		s.Counts.Idle++
	}
	if tick.Mode == logic.ModeSafe {
		s.Counts.SafeMode++
	}
	if tick.FetchFailed {
		s.Counts.FetchFailures++
	}
}

// SetMode records a mode without counting a tick (used during boot).
func (t *Tracker) SetMode(m logic.Mode) {
	t.mu.Lock()
	t.snap.Mode = m
	t.mu.Unlock()
}

// RecordCommand records the outcome of a device command.
// on is the requested state; it becomes the known power state on success.
func (t *Tracker) RecordCommand(on bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.snap.ConsecutiveCommandFailures++
		t.snap.Counts.CommandFailures++
		return
	}
	t.snap.ConsecutiveCommandFailures = 0
	t.snap.PowerKnown = true
	t.snap.PowerOn = on
}

// SetEventsConnected sets the event sink connection status.
func (t *Tracker) SetEventsConnected(connected bool) {
	t.mu.Lock()
	t.snap.EventsConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
