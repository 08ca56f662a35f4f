package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/types"
)

// Policy defines the retry behavior for send attempts.
type Policy struct {
	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int
	// DelayMin and DelayMax bound the uniformly random pause between
	// attempts. Deliberately a flat band rather than exponential backoff:
	// the pauses imitate a human pausing, not a service backing off.
	DelayMin time.Duration
	DelayMax time.Duration
	// RateLimitMargin is added past the advertised reset time before
	// resuming, so the limit is comfortably expired.
	RateLimitMargin time.Duration
	// RateLimitFallback is the flat wait when the limit payload carried no
	// reset timestamp.
	RateLimitFallback time.Duration
	// OnRetry is invoked before each delayed re-attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy mirrors the behavior a patient human shows against the
// remote app: three tries, one to three seconds apart, and a long walk away
// when rate limited.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:       3,
		DelayMin:          1 * time.Second,
		DelayMax:          3 * time.Second,
		RateLimitMargin:   90 * time.Minute,
		RateLimitFallback: time.Hour,
	}
}

// Retryer runs functions under a Policy.
type Retryer interface {
	Do(ctx context.Context, fn func() error) error
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

type jitterRetryer struct {
	policy *Policy
	logger *zap.Logger

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RetryerOption configures a Retryer.
type RetryerOption func(*jitterRetryer)

// WithClock overrides the time source and sleeper.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) RetryerOption {
	return func(r *jitterRetryer) {
		r.now = now
		r.sleep = sleep
	}
}

// NewRetryer creates a Retryer for the given policy.
func NewRetryer(policy *Policy, logger *zap.Logger, opts ...RetryerOption) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.DelayMin <= 0 {
		policy.DelayMin = 1 * time.Second
	}
	if policy.DelayMax < policy.DelayMin {
		policy.DelayMax = policy.DelayMin
	}
	if policy.RateLimitFallback <= 0 {
		policy.RateLimitFallback = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &jitterRetryer{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do implements Retryer.Do.
func (r *jitterRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult implements Retryer.DoWithResult.
//
// Rate-limited errors leave the normal loop: the retryer sleeps until the
// advertised reset time plus the margin (or the fallback when no reset is
// known), runs fn exactly once more, and returns that outcome whatever the
// remaining budget.
func (r *jitterRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var result any
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.jitteredDelay()

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			if err := r.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry canceled: %w", err)
			}
		}

		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		if e := types.AsError(lastErr); e != nil && e.Code == types.ErrRateLimited {
			return r.resumeAfterRateLimit(ctx, e, fn)
		}

		if !types.IsRetryable(lastErr) {
			r.logger.Debug("error not retryable", zap.Error(lastErr))
			return nil, lastErr
		}
	}

	r.logger.Warn("attempt budget exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)

	return nil, fmt.Errorf("failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

// resumeAfterRateLimit waits the limit out and grants one final attempt.
func (r *jitterRetryer) resumeAfterRateLimit(ctx context.Context, e *types.Error, fn func() (any, error)) (any, error) {
	wait := r.RateLimitWait(e)

	r.logger.Warn("rate limited, scheduling resumption",
		zap.Time("reset_at", e.ResetAt),
		zap.Duration("wait", wait),
	)

	if err := r.sleep(ctx, wait); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	result, err := fn()
	if err != nil {
		return nil, fmt.Errorf("retry after rate limit: %w", err)
	}
	return result, nil
}

// RateLimitWait computes how long to sleep for a rate-limited error.
func (r *jitterRetryer) RateLimitWait(e *types.Error) time.Duration {
	if e.ResetAt.IsZero() {
		return r.policy.RateLimitFallback
	}
	wait := e.ResetAt.Sub(r.now()) + r.policy.RateLimitMargin
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (r *jitterRetryer) jitteredDelay() time.Duration {
	if r.policy.DelayMax <= r.policy.DelayMin {
		return r.policy.DelayMin
	}
	return r.policy.DelayMin + time.Duration(rand.Int63n(int64(r.policy.DelayMax-r.policy.DelayMin)))
}

// DoWithResultTyped runs fn under the retryer with a typed result.
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	res, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected result type %T", res)
	}
	return v, nil
}

// ParseResetAt extracts the reset timestamp from a rate-limit payload. The
// remote app nests a JSON document inside the error message string:
//
//	{"error": {"message": "{\"resetsAt\": 1700000000}"}}
//
// Both the outer envelope and a bare inner document are accepted.
func ParseResetAt(payload string) (time.Time, bool) {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	inner := payload
	if err := json.Unmarshal([]byte(payload), &envelope); err == nil && envelope.Error.Message != "" {
		inner = envelope.Error.Message
	}

	var detail struct {
		ResetsAt int64 `json:"resetsAt"`
	}
	if err := json.Unmarshal([]byte(inner), &detail); err != nil || detail.ResetsAt == 0 {
		return time.Time{}, false
	}
	return time.Unix(detail.ResetsAt, 0), true
}
