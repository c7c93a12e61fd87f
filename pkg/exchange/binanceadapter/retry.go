package binanceadapter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// retryPolicy returns the backoff schedule applied to idempotent REST
// calls: instrument info, balance, price lookups, and order cancellation.
// Order placement is deliberately excluded: a retried placement after an
// ambiguous network failure risks a duplicate order on the venue, and the
// engine already treats a placement error as final (it rolls back the
// other leg), so the collaborator must not paper over it.
func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithContext(b, ctx)
}

// withRetry runs op under an exponential backoff schedule, retrying any
// error op returns until the schedule is exhausted or ctx is done.
func withRetry(ctx context.Context, label string, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && attempt > 1 {
			logrus.WithFields(logrus.Fields{"call": label, "attempt": attempt, "error": err}).
				Warn("retrying binance REST call after failure")
		}
		return err
	}
	return backoff.Retry(wrapped, retryPolicy(ctx))
}

// withRetryValue is withRetry for calls that return a value alongside an
// error.
func withRetryValue[T any](ctx context.Context, label string, op func() (T, error)) (T, error) {
	var result T
	err := withRetry(ctx, label, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
