package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/log"
)

// DefaultRetrier waits 200ms, doubling each time, for up to 5 attempts with
// 20% jitter
func DefaultRetrier() *Retrier {
	return &Retrier{
		Base:     DefaultRetryBase,
		Factor:   DefaultRetryFactor,
		Attempts: DefaultRetryAttempts,
		Jitter:   DefaultRetryJitter,
	}
}

// Backoff returns the delay before retry n, counted from zero
func (r *Retrier) Backoff(n int) time.Duration {
	d := float64(r.Base) * math.Pow(r.Factor, float64(n))
	if r.Jitter > 0 {
		random := r.random
		if random == nil {
			random = rand.Float64
		}
		d *= 1 + r.Jitter*(2*random()-1)
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns an error that is not a retryable
// execution error, or the attempts run out. Exhaustion returns
// common.ErrExecutionFatal
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	if r.Attempts <= 0 {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errInvalidAttempts)
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var err error
	for attempt := 0; attempt < r.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrExecution) || errors.Is(err, common.ErrExecutionFatal) {
			return err
		}
		if attempt == r.Attempts-1 {
			break
		}
		delay := r.Backoff(attempt)
		log.Warnf(log.Execution, "attempt %d of %d failed, retrying in %s: %v", attempt+1, r.Attempts, delay, err)
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%w %w: %w", common.ErrInterrupted, serr, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", common.ErrExecutionFatal, r.Attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
