package collector

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"StockLens/internal/config"
)

var errEmptyResult = errors.New("provider returned no data")

// RetryPolicy bounds remote calls: MaxAttempts tries separated by a fixed Delay.
// A positive Deadline caps the whole sequence including pauses.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Deadline    time.Duration

	notify func(err error, wait time.Duration)
}

// DefaultRetryPolicy is three attempts two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

// NewRetryPolicy builds a policy from the fetch config. Unset fields keep
// the defaults.
func NewRetryPolicy(cfg config.Fetch) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		p.Delay = cfg.RetryDelay
	}
	p.Deadline = cfg.Deadline
	return p
}

// Do calls op until it returns nil or the attempt budget runs out, and
// reports how many attempts were made. Errors wrapped with backoff.Permanent
// stop the loop at once. Pauses end early when ctx is done.
func (p RetryPolicy) Do(ctx context.Context, log zerolog.Logger, op func(ctx context.Context) error) (int, error) {
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(retries)),
		ctx,
	)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return op(ctx)
	}, b, func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", p.MaxAttempts).
			Dur("retry_in", wait).
			Msg("Provider call failed, retrying")
		if p.notify != nil {
			p.notify(err, wait)
		}
	})
	return attempts, err
}
