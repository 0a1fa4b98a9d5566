package logic

// Decide maps a temperature to an action using a hysteresis band.
//
// At or above threshold the appliance is turned on, at or below
// threshold-delta it is turned off, and strictly inside the band the
// current state is left alone. delta must be positive; that is checked
// when the configuration is loaded, not here.
func Decide(tempC, thresholdC, deltaC float64) Action {
	switch {
	case tempC >= thresholdC:
		return ActionTurnOn
	case tempC <= thresholdC-deltaC:
		return ActionTurnOff
	default:
		return ActionIdle
	}
}

// Decide is a convenience wrapper around the package-level Decide.
func (t Thresholds) Decide(tempC float64) Action {
	return Decide(tempC, t.ThresholdC, t.DeltaC)
}
