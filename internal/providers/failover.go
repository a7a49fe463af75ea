package providers

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Attempt describes one upstream call made by the failover client.
// Observers receive one Attempt per call, success or failure, so
// attempt-level cost stays observable even when the request eventually
// succeeds after retries.
type Attempt struct {
	Provider string
	Number   int // 1-based across both providers
	Result   *Result
	Err      error
	Duration time.Duration
}

// AttemptObserver is notified after every upstream attempt.
type AttemptObserver func(a Attempt)

// FailoverConfig tunes the retry and fallback behavior.
type FailoverConfig struct {
	// MaxAttempts bounds calls against the primary provider
	MaxAttempts int

	// BaseDelay is the first backoff delay; it doubles per attempt
	// up to MaxDelay, with random jitter added on top
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// CallTimeout is the hard per-call deadline, independent of the
	// provider's own behavior
	CallTimeout time.Duration
}

// DefaultFailoverConfig returns the standard retry policy
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		CallTimeout: 60 * time.Second,
	}
}

// Failover drives generation through a primary provider with retries
// and a single secondary fallback. The attempt sequence is an explicit
// loop (attempting primary 1..N, then secondary once), so tests can
// drive it attempt-by-attempt without timing dependence.
type Failover struct {
	primary   Provider
	secondary Provider // may be nil
	cfg       FailoverConfig

	// sleep and jitter are injectable for tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// NewFailover creates a failover client over a primary and an optional
// secondary provider
func NewFailover(primary, secondary Provider, cfg FailoverConfig) *Failover {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}

	return &Failover{
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
		sleep:     sleepCtx,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// Generate runs the attempt sequence until a result is produced or all
// attempts are exhausted. It returns the result, the name of the
// provider that produced it, and the total number of attempts made.
func (f *Failover) Generate(ctx context.Context, req Request, obs AttemptObserver) (*Result, string, int, error) {
	attempts := 0
	var lastErr error

	for n := 1; n <= f.cfg.MaxAttempts; n++ {
		if n > 1 {
			if err := f.sleep(ctx, f.backoff(n-1)); err != nil {
				return nil, "", attempts, err
			}
		}

		attempts++
		res, err := f.call(ctx, f.primary, req, attempts, obs)
		if err == nil {
			return res, f.primary.Name(), attempts, nil
		}
		lastErr = err

		if !IsTransient(err) {
			// Malformed input, auth failure, policy rejection: no
			// amount of retrying will help
			return nil, "", attempts, err
		}
	}

	if f.secondary != nil {
		attempts++
		res, err := f.call(ctx, f.secondary, req, attempts, obs)
		if err == nil {
			return res, f.secondary.Name(), attempts, nil
		}
		lastErr = err
	}

	return nil, "", attempts, fmt.Errorf("all providers exhausted after %d attempts: %w", attempts, lastErr)
}

// call executes one provider attempt under the hard per-call timeout
// and reports it to the observer
func (f *Failover) call(ctx context.Context, p Provider, req Request, number int, obs AttemptObserver) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.Generate(callCtx, req)
	duration := time.Since(start)

	if obs != nil {
		obs(Attempt{
			Provider: p.Name(),
			Number:   number,
			Result:   res,
			Err:      err,
			Duration: duration,
		})
	}

	return res, err
}

// backoff computes the delay before the (attempt+1)-th primary call:
// base doubling per attempt, capped, plus jitter up to half the delay
// to avoid retry storms across concurrently retrying requests
func (f *Failover) backoff(attempt int) time.Duration {
	delay := f.cfg.BaseDelay << uint(attempt-1)
	if delay > f.cfg.MaxDelay {
		delay = f.cfg.MaxDelay
	}
	return delay + f.jitter(delay/2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
