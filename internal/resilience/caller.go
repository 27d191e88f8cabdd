// Package resilience wraps calls to external dependencies with rate-limit
// aware retries.
//
// A failure carrying a [RateLimitError] waits the provider's retry delay plus
// a fixed buffer (or a default when no delay is given) and retries without
// spending the attempt budget. Any other failure backs off exponentially
// (1s, 2s, 4s, ...) until the attempt budget is spent. Every wait honors the
// caller's context, so a cycle deadline bounds otherwise unlimited
// rate-limit waits.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxAttempts      = 3
	DefaultRateLimitBuffer  = 1500 * time.Millisecond
	DefaultRateLimitBackoff = 5 * time.Second
)

// Caller holds the retry policy shared by every external call.
type Caller struct {
	clock             clockwork.Clock
	logger            *slog.Logger
	metrics           *observability.Metrics
	maxAttempts       int
	maxRateLimitWaits int
	rateLimitBuffer   time.Duration
	rateLimitDefault  time.Duration
}

// Option configures a Caller.
type Option func(*Caller)

// WithClock sets the time source used for waits.
func WithClock(c clockwork.Clock) Option { return func(rc *Caller) { rc.clock = c } }

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l *slog.Logger) Option { return func(rc *Caller) { rc.logger = l } }

// WithMetrics records retries and exhausted calls.
func WithMetrics(m *observability.Metrics) Option { return func(rc *Caller) { rc.metrics = m } }

// WithMaxAttempts sets the budget for non-rate-limit failures.
func WithMaxAttempts(n int) Option {
	return func(rc *Caller) {
		if n > 0 {
			rc.maxAttempts = n
		}
	}
}

// WithMaxRateLimitWaits caps consecutive rate-limit waits. Zero means unlimited.
func WithMaxRateLimitWaits(n int) Option {
	return func(rc *Caller) {
		if n >= 0 {
			rc.maxRateLimitWaits = n
		}
	}
}

// New creates a Caller with the default policy: three attempts, 1.5s
// rate-limit buffer, 5s rate-limit default, unlimited rate-limit waits.
func New(opts ...Option) *Caller {
	c := &Caller{
		clock:            clockwork.NewRealClock(),
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts:      DefaultMaxAttempts,
		rateLimitBuffer:  DefaultRateLimitBuffer,
		rateLimitDefault: DefaultRateLimitBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrRateLimitWaitsExceeded is returned when the configured rate-limit wait
// cap is reached.
var ErrRateLimitWaitsExceeded = errors.New("rate-limit waits exceeded")

// Do runs op under c's retry policy. The operation name labels logs and metrics.
func Do[T any](ctx context.Context, c *Caller, operation string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0
	rateLimitWaits := 0

	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", operation, err)
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			rateLimitWaits++
			if c.maxRateLimitWaits > 0 && rateLimitWaits > c.maxRateLimitWaits {
				c.exhausted(operation)
				return zero, fmt.Errorf("%s: %w: %w", operation, ErrRateLimitWaitsExceeded, err)
			}
			wait := c.rateLimitDefault
			if delay, ok := rl.Delay(); ok {
				wait = delay + c.rateLimitBuffer
			}
			c.logger.Warn("rate limited, waiting before retry",
				"operation", operation,
				"wait", wait,
				"rate_limit_waits", rateLimitWaits,
			)
			c.retried(operation, "rate_limit")
			if serr := c.sleep(ctx, wait); serr != nil {
				return zero, fmt.Errorf("%s: %w: %w", operation, serr, err)
			}
			continue
		}

		attempt++
		if attempt >= c.maxAttempts {
			c.exhausted(operation)
			return zero, fmt.Errorf("%s: %d attempts failed: %w", operation, attempt, err)
		}
		wait := time.Duration(1<<(attempt-1)) * time.Second
		c.logger.Warn("call failed, backing off",
			"operation", operation,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		c.retried(operation, "backoff")
		if serr := c.sleep(ctx, wait); serr != nil {
			return zero, fmt.Errorf("%s: %w: %w", operation, serr, err)
		}
	}
}

func (c *Caller) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (c *Caller) retried(operation, kind string) {
	if c.metrics != nil {
		c.metrics.ExternalRetries.WithLabelValues(operation, kind).Inc()
	}
}

func (c *Caller) exhausted(operation string) {
	if c.metrics != nil {
		c.metrics.ExternalFailures.WithLabelValues(operation).Inc()
	}
}
