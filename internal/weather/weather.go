// Package weather provides outdoor temperature readings with an abstraction for testing.
// The real implementation queries OpenWeatherMap over HTTP.
// The fake implementation returns scripted values.
package weather

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the configured location cannot be resolved.
	// Repeated occurrences point at a configuration bug, not an outage.
	ErrNotFound = errors.New("weather: location not found")

	// ErrTransient covers connectivity problems, timeouts and server errors.
	ErrTransient = errors.New("weather: transient failure")
)

// Source fetches the current outdoor temperature.
type Source interface {
	// Fetch returns the temperature in degrees Celsius.
	// Errors wrap ErrNotFound or ErrTransient.
	Fetch(ctx context.Context) (float64, error)
}
