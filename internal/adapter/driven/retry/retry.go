// Package retry wraps provider calls with a per-attempt deadline and a small
// bounded number of retries with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// Policy bounds every call made to a CI provider.
type Policy struct {
	Timeout    time.Duration // Deadline for a single attempt.
	MaxRetries uint64        // Retries after the first attempt.

	// NewBackOff builds the delay schedule for one call. Tests inject
	// backoff.ZeroBackOff to run without sleeping.
	NewBackOff func() backoff.BackOff
}

// DefaultPolicy returns a policy with exponential backoff starting at 500ms.
func DefaultPolicy(timeout time.Duration, maxRetries uint64) Policy {
	return Policy{
		Timeout:    timeout,
		MaxRetries: maxRetries,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the retry
// budget is spent. Each attempt gets its own deadline derived from ctx.
// Only transient failures are retried: a *model.ProviderError that reports
// a network error, rate limiting or a server error, or an attempt deadline.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	newBackOff := p.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), p.MaxRetries), ctx)

	attempt := 0
	operation := func() error {
		attempt++

		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		slog.Debug("retrying provider call",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotify(operation, b, notify)
}

func isTransient(err error) bool {
	var perr *model.ProviderError
	if errors.As(err, &perr) {
		return perr.IsTransient()
	}

	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr)
}
