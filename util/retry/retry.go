// Package retry implements a backoff retry helper for errors whose Code
// reports Retryable(). With the default options the first retry waits one
// second and each later wait doubles, up to 30 s. No other package in
// this module calls Do, so sync and gossip I/O errors are not retried
// through it.
package retry

import (
	"context"
	"time"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/ulogger"
)

// Do runs fn until it succeeds, ctx is cancelled, or the retry count (when
// not InfiniteRetry) is exhausted. Only errors whose Code reports
// Retryable() are retried; anything else is returned immediately.
func Do(ctx context.Context, logger ulogger.Logger, fn func() error, opts ...Options) error {
	o := NewSetOptions(opts...)

	backoff := o.BackoffDurationType
	var lastErr error

	for attempt := 0; o.InfiniteRetry || attempt <= o.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			if o.ExponentialBackoff {
				backoff = time.Duration(float64(backoff) * o.BackoffFactor)
			} else {
				backoff = backoff * time.Duration(o.BackoffMultiplier)
			}

			if backoff > o.MaxBackoff {
				backoff = o.MaxBackoff
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var typed *errors.Error
		if !errors.As(lastErr, &typed) || !typed.Code.Retryable() {
			return lastErr
		}

		logger.Warnf("%sattempt %d failed, retrying in %s: %v", o.Message, attempt+1, backoff, lastErr)
	}

	return lastErr
}
