package plug

import (
	"context"
	"sync"
)

// Fake is a test double that records calls and returns scripted errors.
type Fake struct {
	mu sync.Mutex

	// On is the current simulated outlet state.
	On bool

	// InitCalls counts Initialize invocations.
	InitCalls int

	// StateCalls counts PowerState invocations.
	StateCalls int

	// SetCalls records every SetPower argument that reached the outlet.
	SetCalls []bool

	// InitErrors, StateErrors and SetErrors are consumed one per call of the
	// matching method; a nil entry means success. Once drained, calls succeed.
	InitErrors  []error
	StateErrors []error
	SetErrors   []error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFake creates a Fake whose outlet starts in state on.
func NewFake(on bool) *Fake {
	return &Fake{On: on}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// Initialize records the call.
func (f *Fake) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitCalls++
	return popErr(&f.InitErrors)
}

// PowerState returns the simulated state.
func (f *Fake) PowerState(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StateCalls++
	if err := popErr(&f.StateErrors); err != nil {
		return false, err
	}
	return f.On, nil
}

// SetPower records the switch and updates the simulated state.
func (f *Fake) SetPower(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.SetErrors); err != nil {
		return err
	}
	f.SetCalls = append(f.SetCalls, on)
	f.On = on
	return nil
}

// Close marks the device as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Count returns how many times SetPower(on) reached the outlet.
func (f *Fake) Count(on bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.SetCalls {
		if v == on {
			n++
		}
	}
	return n
}
