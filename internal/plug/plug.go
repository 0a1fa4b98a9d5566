// Package plug switches the appliance's power outlet, with hardware abstraction.
// MQTTPlug drives a Tasmota-style smart plug over MQTT.
// GPIORelay drives a relay wired to a Linux GPIO line.
// Fake allows testing without hardware.
package plug

import (
	"context"
	"errors"
)

// ErrConnection means the device could not be reached or its handle went stale.
var ErrConnection = errors.New("plug: connection error")

// Device is a single binary power outlet.
type Device interface {
	// Initialize (re)establishes the connection, replacing any stale handle.
	Initialize(ctx context.Context) error

	// PowerState reports whether the outlet is currently on.
	PowerState(ctx context.Context) (bool, error)

	// SetPower switches the outlet on or off.
	SetPower(ctx context.Context, on bool) error

	// Close releases the connection.
	Close() error
}

// StateString formats a power state for logs and payloads.
func StateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
