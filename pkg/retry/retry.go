// Package retry implements the managed-transaction retry loop of spec §4.8:
// exponential backoff with jitter, gated by the error classifier in
// pkg/boltcore. The jitter/backoff arithmetic follows the teacher's
// math/rand usage in pkg/auth/auth.go (token-salt generation) generalized
// from a one-shot random draw to a repeated sleep computation.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/orneryd/bolt-core/pkg/boltcore"
)

// Config tunes the backoff schedule. Zero value is invalid; use
// DefaultConfig.
type Config struct {
	InitialDelay time.Duration
	Multiplier   float64
	Jitter       float64
	MaxRetryTime time.Duration
}

// DefaultConfig mirrors the real driver's retry defaults: 1s initial delay,
// doubling, ±20% jitter, 30s overall budget.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		MaxRetryTime: 30 * time.Second,
	}
}

// TransientSubCoder is implemented by errors that carry the server's
// transient-error subcode (e.g. "Transaction.Terminated"), consulted by
// boltcore.IsRetriable for the non-retriable transient exceptions.
type TransientSubCoder interface {
	TransientSubCode() string
}

// Work is a unit of work the retry loop executes; it returns the result
// value as `any` since transaction functions are generic over their return
// type from the session coordinator's point of view.
type Work func(ctx context.Context) (any, error)

// Run executes work, retrying on retriable errors with exponential backoff
// and jitter until it succeeds, a non-retriable error is returned, or
// MaxRetryTime has elapsed since the first attempt (spec §4.8: "Abort after
// maxRetryTime has elapsed and at least one retry was attempted").
func Run(ctx context.Context, cfg Config, work Work) (any, error) {
	start := time.Now()
	delay := cfg.InitialDelay
	var observed []error
	attempt := 0

	for {
		result, err := work(ctx)
		if err == nil {
			return result, nil
		}
		attempt++

		subCode := ""
		var tsc TransientSubCoder
		if errors.As(err, &tsc) {
			subCode = tsc.TransientSubCode()
		}
		code := boltcore.CodeOf(err)
		if !boltcore.IsRetriable(code, subCode) {
			return nil, err
		}

		observed = append(observed, err)

		if attempt > 1 && time.Since(start) >= cfg.MaxRetryTime {
			final := boltcore.Newf(code, "retry budget of %s exhausted after %d attempt(s)", cfg.MaxRetryTime, attempt)
			final.Cause = observed
			return nil, final
		}

		sleep := jitteredSleep(delay, cfg.Jitter)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}
}

// jitteredSleep computes `delay - jitter*delay + 2*jitter*delay*rand01`
// exactly as spec §4.8 specifies.
func jitteredSleep(delay time.Duration, jitter float64) time.Duration {
	d := float64(delay)
	r := rand.Float64()
	sleep := d - jitter*d + 2*jitter*d*r
	if sleep < 0 {
		sleep = 0
	}
	return time.Duration(sleep)
}
