package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/llmbridge/internal/metrics"
	"github.com/dshills/llmbridge/pkg/types"
)

// maxBackoffShift caps the exponent so BaseDelay << shift cannot overflow.
const maxBackoffShift = 30

// RetryPolicy configures rate-limit handling around provider calls. Only
// rate-limit shaped failures are retried; anything else fails immediately.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff before the first retry; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the backoff before jitter. Zero means no cap; the
	// backoff still saturates instead of overflowing.
	MaxDelay time.Duration

	// MaxJitter bounds the random delay added to every backoff.
	MaxJitter time.Duration

	// PreDelayMin and PreDelayMax bound the random wait before the first
	// attempt, which spreads bursts of concurrent callers.
	PreDelayMin time.Duration
	PreDelayMax time.Duration

	// RateLimitCodes are upstream status codes treated as rate limiting.
	RateLimitCodes []int

	// RateLimitMarkers are case-insensitive substrings of an error message
	// treated as rate limiting.
	RateLimitMarkers []string
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       3,
		BaseDelay:        time.Second,
		MaxDelay:         time.Minute,
		MaxJitter:        500 * time.Millisecond,
		PreDelayMin:      100 * time.Millisecond,
		PreDelayMax:      300 * time.Millisecond,
		RateLimitCodes:   []int{429, 529},
		RateLimitMarkers: []string{"overloaded", "rate limit"},
	}
}

// IsRateLimited reports whether err looks like throttling under this policy.
func (p RetryPolicy) IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrRateLimited) {
		return true
	}

	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		for _, code := range p.RateLimitCodes {
			if coded.StatusCode() == code {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range p.RateLimitMarkers {
		if marker != "" && strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before retrying after the given 1-based attempt,
// without jitter. It never exceeds MaxDelay when one is set and never
// overflows.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := p.BaseDelay
	if d > 0 && d > time.Duration(math.MaxInt64>>shift) {
		d = time.Duration(math.MaxInt64)
	} else {
		d <<= shift
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// addSaturating adds two non-negative durations, saturating at the largest
// representable duration.
func addSaturating(a, b time.Duration) time.Duration {
	if b > 0 && a > time.Duration(math.MaxInt64)-b {
		return time.Duration(math.MaxInt64)
	}
	return a + b
}

// RetryDecision is the outcome of a failed attempt.
type RetryDecision struct {
	// Retry is true when the caller should wait Delay and try again.
	Retry bool
	Delay time.Duration

	// Err is the error to return when Retry is false.
	Err error
}

// Decide classifies the failure of a 1-based attempt. It has no side effects.
func Decide(err error, attempt int, policy RetryPolicy, jitter time.Duration) RetryDecision {
	if !policy.IsRateLimited(err) {
		return RetryDecision{Err: err}
	}
	if attempt > policy.MaxRetries {
		exhausted := errors.Wrapf(err, "rate limited after %d attempts", attempt)
		return RetryDecision{Err: errors.Mark(exhausted, types.ErrRetryExhausted)}
	}
	return RetryDecision{Retry: true, Delay: addSaturating(policy.Backoff(attempt), jitter)}
}

// jitterSource is a mutex-guarded random source.
type jitterSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newJitterSource(rng *rand.Rand) *jitterSource {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &jitterSource{rng: rng}
}

// between returns a duration uniform in [lo, hi], or lo when hi <= lo.
func (j *jitterSource) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return lo + time.Duration(j.rng.Int64N(int64(hi-lo)+1))
}

// below returns a duration uniform in [0, limit), or 0 when limit <= 0.
func (j *jitterSource) below(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rng.Int64N(int64(limit)))
}

// retrier carries what withRateLimit needs from the calling operation.
type retrier struct {
	jitter  *jitterSource
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// withRateLimit runs fn, retrying rate-limit failures with exponential
// backoff. The first attempt is preceded by a short random wait.
func withRateLimit[T any](ctx context.Context, r retrier, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := sleep(ctx, r.jitter.between(policy.PreDelayMin, policy.PreDelayMax)); err != nil {
		return zero, err
	}

	span := trace.SpanFromContext(ctx)
	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		decision := Decide(err, attempt, policy, r.jitter.below(policy.MaxJitter))
		if !decision.Retry {
			return zero, decision.Err
		}

		r.metrics.Retry(op)
		span.AddEvent("rate limited", trace.WithAttributes(
			attribute.Int("llm.attempt", attempt),
			attribute.Int64("llm.backoff_ms", decision.Delay.Milliseconds()),
		))
		r.logger.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("backoff", decision.Delay).
			Msg("rate limited, backing off")

		if err := sleep(ctx, decision.Delay); err != nil {
			return zero, err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
