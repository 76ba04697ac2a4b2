// Package retry runs an operation against an ordered list of mirrors with a
// bounded number of attempts per mirror and linear backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamcutter/addonforge/internal/logger"
)

var ErrExhausted = errors.New("all attempts exhausted")

type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay is the wait before the n-th attempt overall, counting from 0 across
// all mirrors.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 || p.BaseBackoff <= 0 {
		return 0
	}
	return time.Duration(n) * p.BaseBackoff
}

// PermanentError stops the sequence without trying further attempts or
// mirrors.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Outcome struct {
	Mirror   string
	Attempts int
}

type Runner struct {
	Policy  Policy
	Sleep   Sleeper
	Cleanup func() error
}

// Mirrors calls fn for each mirror in order, up to Policy.MaxAttempts times
// each, until one call succeeds. Cleanup runs before every attempt so a
// retry never sees partial state from the one before it.
func (r Runner) Mirrors(ctx context.Context, mirrors []string, fn func(ctx context.Context, mirror string) error) (Outcome, error) {
	log := logger.Logger()

	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	if len(mirrors) == 0 {
		return Outcome{}, fmt.Errorf("%w: no mirrors configured", ErrExhausted)
	}

	var last error
	n := 0
	for _, mirror := range mirrors {
		for attempt := 1; attempt <= r.Policy.attempts(); attempt++ {
			if r.Cleanup != nil {
				if err := r.Cleanup(); err != nil {
					return Outcome{Mirror: mirror, Attempts: n}, fmt.Errorf("cleaning up before attempt: %w", err)
				}
			}

			if d := r.Policy.Delay(n); d > 0 {
				log.Infof("waiting %s before attempt %d/%d on %s", d, attempt, r.Policy.attempts(), mirror)
			}
			if err := sleep(ctx, r.Policy.Delay(n)); err != nil {
				return Outcome{Mirror: mirror, Attempts: n}, err
			}
			n++

			err := fn(ctx, mirror)
			if err == nil {
				return Outcome{Mirror: mirror, Attempts: n}, nil
			}

			var perm *PermanentError
			if errors.As(err, &perm) {
				return Outcome{Mirror: mirror, Attempts: n}, perm.Err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{Mirror: mirror, Attempts: n}, ctxErr
			}

			last = err
			log.Warnf("attempt %d/%d on %s failed: %v", attempt, r.Policy.attempts(), mirror, err)
		}
	}

	return Outcome{Attempts: n}, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, n, last)
}

// Do retries fn under the policy with no mirror fallback.
func (r Runner) Do(ctx context.Context, fn func(ctx context.Context) error) (Outcome, error) {
	return r.Mirrors(ctx, []string{""}, func(ctx context.Context, _ string) error {
		return fn(ctx)
	})
}
