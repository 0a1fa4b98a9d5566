// Package retry runs calls to unreliable collaborators with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/fridge-controller/internal/logger"
)

// maxShift caps the number of doublings.
const maxShift = 30

// Policy configures attempts and the wait between them.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration
}

// Validate reports a configuration error in the policy.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Base < 0 || p.MinWait < 0 || p.MaxWait < 0 {
		return errors.New("backoff durations must not be negative")
	}
	if p.MinWait > p.MaxWait {
		return fmt.Errorf("min wait %v exceeds max wait %v", p.MinWait, p.MaxWait)
	}
	return nil
}

// Backoff returns the wait after the given number of failed attempts
// (1 for the wait before attempt 2): clamp(Base * 2^(failures-1), MinWait, MaxWait).
func (p Policy) Backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := p.Base
	for i := 1; i < failures && i <= maxShift; i++ {
		if d > p.MaxWait/2 {
			d = p.MaxWait
			break
		}
		d *= 2
	}
	if d < p.MinWait {
		d = p.MinWait
	}
	if d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper. It returns ctx.Err() if the wait is interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type options struct {
	beforeRetry func(ctx context.Context) error
	onAttempt   func(attempt int, err error)
	log         *logger.Logger
	sleep       Sleeper
}

// Option customises a single Do call.
type Option func(*options)

// WithBeforeRetry runs hook before every retry, never before the first attempt.
// A failing hook counts as a failed attempt.
func WithBeforeRetry(hook func(ctx context.Context) error) Option {
	return func(o *options) { o.beforeRetry = hook }
}

// WithLogger sets the logger for attempt records.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSleep replaces the backoff sleeper.
func WithSleep(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithAttemptHook is called after every attempt with its outcome.
func WithAttemptHook(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onAttempt = fn }
}

// Do calls fn until it succeeds or the policy's attempts are exhausted.
// op names the call in logs and errors. On exhaustion the returned error is an
// *ExhaustedError wrapping the last failure. Cancelling ctx interrupts backoff waits.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := p.Backoff(attempt - 1)
			if err := o.sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("%s: interrupted after %d attempts: %w", op, attempt-1, err)
			}
		}

		o.log.Infow("attempt_start", "op", op, "attempt", attempt, "max_attempts", attempts)

		res, err := runAttempt(ctx, attempt, fn, o.beforeRetry)
		if o.onAttempt != nil {
			o.onAttempt(attempt, err)
		}
		if err == nil {
			o.log.Infow("attempt_succeeded", "op", op, "attempt", attempt)
			return res, nil
		}
		lastErr = err

		if attempt < attempts {
			o.log.Warnw("attempt_failed", "op", op, "attempt", attempt, "next_wait", p.Backoff(attempt).String(), "err", err)
		}
	}

	o.log.Errorw("attempts_exhausted", "op", op, "attempts", attempts, "err", lastErr)
	return zero, &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, attempt int, fn func(ctx context.Context) (T, error), beforeRetry func(ctx context.Context) error) (T, error) {
	if attempt > 1 && beforeRetry != nil {
		if err := beforeRetry(ctx); err != nil {
			var zero T
			return zero, fmt.Errorf("reset before retry: %w", err)
		}
	}
	return fn(ctx)
}

// Run is Do for calls that return only an error.
func Run(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}
