//go:build linux

package plug

import (
	"context"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIORelay drives a relay module from a Linux GPIO character device line.
type GPIORelay struct {
	chipName  string
	offset    int
	activeLow bool

	chip *gpiocdev.Chip
	line *gpiocdev.Line

	// last is the logical value last driven, restored when the line is re-requested.
	last int
}

// NewGPIORelay creates a relay on the given chip (e.g. "gpiochip0") and BCM line.
// With activeLow, a logical ON drives the line low, as most opto-isolated
// relay boards expect. The line is not requested until Initialize.
func NewGPIORelay(chipName string, offset int, activeLow bool) *GPIORelay {
	return &GPIORelay{chipName: chipName, offset: offset, activeLow: activeLow}
}

// Initialize (re)opens the chip and requests the line as an output.
// A previously requested line is released first.
func (r *GPIORelay) Initialize(ctx context.Context) error {
	r.release()

	chip, err := gpiocdev.NewChip(r.chipName)
	if err != nil {
		return fmt.Errorf("%w: open gpio chip %s: %v", ErrConnection, r.chipName, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(r.last), gpiocdev.WithConsumer("fridge-controller")}
	if r.activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(r.offset, opts...)
	if err != nil {
		chip.Close()
		return fmt.Errorf("%w: request relay line %d: %v", ErrConnection, r.offset, err)
	}

	r.chip = chip
	r.line = line
	return nil
}

// PowerState reads back the logical line value.
func (r *GPIORelay) PowerState(ctx context.Context) (bool, error) {
	if r.line == nil {
		return false, fmt.Errorf("%w: relay line %d not initialized", ErrConnection, r.offset)
	}
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("%w: read relay line %d: %v", ErrConnection, r.offset, err)
	}
	return v == 1, nil
}

// SetPower drives the relay.
func (r *GPIORelay) SetPower(ctx context.Context, on bool) error {
	if r.line == nil {
		return fmt.Errorf("%w: relay line %d not initialized", ErrConnection, r.offset)
	}
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("%w: drive relay line %d: %v", ErrConnection, r.offset, err)
	}
	r.last = v
	return nil
}

// Close drives the relay off and releases GPIO resources.
// The line is reconfigured as an input so the board boots in a known state.
func (r *GPIORelay) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch relay off: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay line: %w", err))
		}
	}
	if err := r.release(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (r *GPIORelay) release() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
		r.line = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("release errors: %v", errs)
	}
	return nil
}
