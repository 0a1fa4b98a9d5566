//go:build !linux

package plug

import (
	"context"
	"errors"
	"fmt"
)

var errGPIOUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// GPIORelay is not available on non-Linux platforms.
type GPIORelay struct{}

// NewGPIORelay returns a relay whose operations all fail.
func NewGPIORelay(chipName string, offset int, activeLow bool) *GPIORelay {
	return &GPIORelay{}
}

// Initialize always fails on non-Linux platforms.
func (r *GPIORelay) Initialize(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrConnection, errGPIOUnsupported)
}

// PowerState is not implemented on non-Linux platforms.
func (r *GPIORelay) PowerState(ctx context.Context) (bool, error) {
	return false, errGPIOUnsupported
}

// SetPower is not implemented on non-Linux platforms.
func (r *GPIORelay) SetPower(ctx context.Context, on bool) error {
	return errGPIOUnsupported
}

// Close is a no-op on non-Linux platforms.
func (r *GPIORelay) Close() error {
	return nil
}
