package utils

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// CallPolicy bounds one collaborator call: each attempt gets Timeout and a
// transient failure is retried once after Delay.
type CallPolicy struct {
	Timeout time.Duration
	Delay   time.Duration
	// Transient decides whether an error is worth the single retry. Timeouts
	// are always transient.
	Transient func(error) bool
}

// CallWithRetry runs op at most twice.
func CallWithRetry[T any](ctx context.Context, p CallPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		res, err := op(callCtx)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return res, err
		}
		if p.Transient != nil && p.Transient(err) {
			return res, err
		}
		return res, backoff.Permanent(err)
	}
	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(2),
	)
}
