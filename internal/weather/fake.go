package weather

import (
	"context"
	"errors"
	"sync"
)

// Result is one scripted Fetch outcome.
type Result struct {
	TempC float64
	Err   error
}

// Fake is a test double that returns scripted readings.
type Fake struct {
	mu sync.Mutex

	// Results are consumed one per Fetch call. When exhausted, the last one repeats.
	Results []Result

	index int

	// Calls counts Fetch invocations.
	Calls int
}

// NewFake creates a Fake with the given results.
func NewFake(results ...Result) *Fake {
	return &Fake{Results: results}
}

// Fetch returns the next scripted result.
func (f *Fake) Fetch(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	if len(f.Results) == 0 {
		return 0, errors.New("no results configured")
	}

	r := f.Results[f.index]
	if f.index < len(f.Results)-1 {
		f.index++
	}
	return r.TempC, r.Err
}

// Reset rewinds the script and clears the call count.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Calls = 0
	f.mu.Unlock()
}
