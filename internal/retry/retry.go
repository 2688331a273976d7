// Package retry runs an operation with a bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

const (
	DefaultFactor = 2.0
)

// Retry configures an exponential backoff. Zero delays fall back to the
// backoff package defaults (100ms initial, 10s cap); a zero MaxAttempts
// retries until ctx ends.
type Retry struct {
	InitialDelay time.Duration
	MaximumDelay time.Duration
	Factor       float64
	MaxAttempts  int
}

// Do invokes f until it returns retry=false, MaxAttempts is reached, or ctx
// ends. The last error from f is returned when attempts run out.
func (r Retry) Do(ctx context.Context, f func(attempt int) (retry bool, err error)) error {
	b := r.backoff()
	for attempt := 1; ; attempt++ {
		retry, err := f(attempt)
		if !retry {
			return err
		}
		if r.MaxAttempts > 0 && attempt >= r.MaxAttempts {
			return err
		}

		delay := b.Duration()
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < delay {
				delay = left
			}
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (r Retry) backoff() *backoff.Backoff {
	factor := r.Factor
	if factor < 1 {
		factor = DefaultFactor
	}
	return &backoff.Backoff{
		Min:    r.InitialDelay,
		Max:    r.MaximumDelay,
		Factor: factor,
	}
}

// Sleep waits for d or until ctx is done.
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
