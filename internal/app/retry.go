package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/antlu/drops-farmer/internal/config"
	"github.com/antlu/drops-farmer/internal/twitch"
)

// RetryPolicy configures Retry. MaxAttempts of zero retries without bound;
// MaxDelay of zero keeps the delay fixed, otherwise it doubles up to MaxDelay.
type RetryPolicy struct {
	Delay       time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func RetryPolicyFrom(t config.Tuning) RetryPolicy {
	return RetryPolicy{Delay: t.RetryDelay, MaxDelay: t.RetryMaxDelay, MaxAttempts: t.RetryMaxAttempts}
}

// WithMaxAttempts returns a copy of p bounded to n attempts.
func (p RetryPolicy) WithMaxAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

func (p RetryPolicy) nextDelay(current time.Duration) time.Duration {
	if p.MaxDelay <= 0 {
		return p.Delay
	}
	return min(current*2, p.MaxDelay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// structural marks a response that no longer has the expected shape as
// permanent. Asking again returns the same shape.
func structural(err error) error {
	if errors.Is(err, twitch.ErrMissingField) {
		return Permanent(err)
	}
	return err
}

func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Retry runs op until it succeeds, returns a permanent error, exhausts the
// policy's attempts, or ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, logger *log.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := p.Delay

	for attempt := 1; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if IsPermanent(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return zero, fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		if logger != nil {
			logger.Printf("%s failed (attempt %d), retrying in %s: %v", name, attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay = p.nextDelay(delay)
	}
}

// RetryDo is Retry for operations without a result.
func RetryDo(ctx context.Context, p RetryPolicy, logger *log.Logger, name string, op func(context.Context) error) error {
	_, err := Retry(ctx, p, logger, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
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
