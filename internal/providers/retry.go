package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"context"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig tunes the exponential backoff RetryDo applies around a
// provider HTTP call.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig matches what every provider in this package uses
// absent an override: three retries, doubling from half a second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
	}
}

// RetryDo runs fn with exponential backoff, giving up immediately on
// non-retryable HTTP errors (4xx other than 429) via backoff.Permanent.
// When ctx carries a RetryHook (see WithRetryHook), it fires before each
// retried attempt so a caller — the agent runner, relaying to a channel —
// can update a "retrying..." placeholder.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff(func(b *backoff.ExponentialBackOff) {
		b.InitialInterval = cfg.InitialInterval
		b.MaxInterval = cfg.MaxInterval
		b.Multiplier = cfg.Multiplier
	})

	maxAttempts := cfg.MaxRetries + 1
	attempt := 0
	hook := RetryHookFromContext(ctx)

	operation := func() (T, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	notify := func(err error, _ time.Duration) {
		if hook != nil {
			hook(attempt, maxAttempts, err)
		}
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(maxAttempts)), backoff.WithNotify(notify))
}

// RetryHook is called before each retried attempt of a provider call.
type RetryHook func(attempt, maxAttempts int, err error)

type retryHookContextKey struct{}

// WithRetryHook attaches hook to ctx for RetryDo to invoke on retry.
func WithRetryHook(ctx context.Context, hook RetryHook) context.Context {
	return context.WithValue(ctx, retryHookContextKey{}, hook)
}

// RetryHookFromContext returns the hook attached by WithRetryHook, or nil.
func RetryHookFromContext(ctx context.Context) RetryHook {
	hook, _ := ctx.Value(retryHookContextKey{}).(RetryHook)
	return hook
}

// HTTPError wraps a non-2xx provider response.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Retryable reports whether this status code is worth retrying: rate
// limits and server errors, not client errors.
func (e *HTTPError) Retryable() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	return e.Status >= 500
}

// ParseRetryAfter parses the Retry-After header, which the HTTP spec
// allows as either a delay in seconds or an HTTP-date.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
