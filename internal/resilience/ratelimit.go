package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// retryInRe matches provider messages such as "Please retry in 37.91s.".
	retryInRe = regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`)

	// retryDelayRe matches structured details such as "retry_delay { seconds: 37 }".
	retryDelayRe = regexp.MustCompile(`retry_delay\s*\{\s*seconds:\s*([0-9]+)`)
)

// MaxRetryAfter caps a provider-supplied retry delay.
const MaxRetryAfter = time.Hour

// RateLimitError marks a failure caused by provider throttling. DelayKnown
// is set when the provider gave an explicit delay, which may be zero.
type RateLimitError struct {
	RetryAfter time.Duration
	DelayKnown bool
	Err        error
}

func (e *RateLimitError) Error() string {
	if d, ok := e.Delay(); ok {
		return fmt.Sprintf("rate limited (retry after %s): %v", d, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

// Delay returns the provider's retry delay clamped to [0, MaxRetryAfter].
// ok is false when no delay was given. A positive RetryAfter counts as
// given even without DelayKnown.
func (e *RateLimitError) Delay() (time.Duration, bool) {
	if !e.DelayKnown && e.RetryAfter <= 0 {
		return 0, false
	}
	return min(max(e.RetryAfter, 0), MaxRetryAfter), true
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err carries a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// FromMessage classifies an opaque provider error by its text. Errors that
// mention an explicit retry delay, an HTTP 429, or a quota are wrapped in a
// RateLimitError; anything else is returned unchanged.
func FromMessage(err error) error {
	if err == nil || IsRateLimit(err) {
		return err
	}
	msg := err.Error()

	if m := retryInRe.FindStringSubmatch(msg); m != nil {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
			return &RateLimitError{RetryAfter: seconds(secs), DelayKnown: true, Err: err}
		}
	}
	if m := retryDelayRe.FindStringSubmatch(msg); m != nil {
		if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
			return &RateLimitError{RetryAfter: seconds(secs), DelayKnown: true, Err: err}
		}
	}
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "quota") {
		return &RateLimitError{Err: err}
	}
	return err
}

// FromResponse returns a RateLimitError for a 429 response, honoring the
// Retry-After header in either delta-seconds or HTTP-date form. Other
// statuses yield nil.
func FromResponse(resp *http.Response, now time.Time, cause error) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	if cause == nil {
		cause = fmt.Errorf("status %d", resp.StatusCode)
	}
	after, known := parseRetryAfter(resp.Header.Get("Retry-After"), now)
	return &RateLimitError{RetryAfter: after, DelayKnown: known, Err: cause}
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return seconds(secs), true
	}
	if at, err := http.ParseTime(v); err == nil {
		if !at.After(now) {
			return 0, true
		}
		return min(at.Sub(now), MaxRetryAfter), true
	}
	return 0, false
}

// seconds converts s to a Duration, clamping at MaxRetryAfter so huge values
// cannot overflow.
func seconds(s float64) time.Duration {
	if s >= MaxRetryAfter.Seconds() {
		return MaxRetryAfter
	}
	return time.Duration(s * float64(time.Second))
}
