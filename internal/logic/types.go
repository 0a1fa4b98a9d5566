// Package logic contains the pure decision logic of the fridge controller.
// This package has NO external dependencies (no network, MQTT, GPIO, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Action is the outcome of a decision for a single tick.
type Action string

const (
	ActionTurnOn  Action = "TURN_ON"
	ActionTurnOff Action = "TURN_OFF"
	ActionIdle    Action = "IDLE"
)

// Mode is the control loop state after a tick.
type Mode string

const (
	ModeStarting     Mode = "STARTING"
	ModeNormal       Mode = "NORMAL"
	ModeUsingCache   Mode = "USING_CACHE"
	ModeAwaitingData Mode = "AWAITING_DATA"
	ModeSafe         Mode = "SAFE_MODE"
)

// Reading is an outdoor temperature obtained by a successful fetch.
type Reading struct {
	TempC float64
	At    time.Time
}

// Age returns how old the reading is at now. A reading stamped in the
// future of now (clock stepped backwards) has age zero.
func (r Reading) Age(now time.Time) time.Duration {
	age := now.Sub(r.At)
	if age < 0 {
		return 0
	}
	return age
}

// Thresholds configures the hysteresis band.
type Thresholds struct {
	// Upper bound: at or above it the appliance runs.
	ThresholdC float64
	// Band width below the threshold where nothing changes.
	DeltaC float64
}

// LowerC returns the temperature at or below which the appliance stops.
func (t Thresholds) LowerC() float64 {
	return t.ThresholdC - t.DeltaC
}
