package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/briangreenhill/csmkit/fault"
)

// RetryConfig bounds the retry loop in attempts and wall-clock time.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration // pause before the second attempt
	MaxDelay    time.Duration
	MaxElapsed  time.Duration // total budget, 0 means unbounded
	Multiplier  float64
	Jitter      float64 // fraction of the delay, 0..1
}

// DefaultRetryConfig returns the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		MaxElapsed:  30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Retry runs op up to MaxAttempts times with backoff between attempts.
// Only retryable failures are retried; everything else propagates
// immediately. The elapsed budget and the caller's context both cut
// the loop short.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	start := time.Now()
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if !fault.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.MaxElapsed > 0 && time.Since(start) >= cfg.MaxElapsed {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(cfg, attempt)):
		}
	}
	return err
}

// backoff computes the pause after the given 1-based attempt:
// Delay * Multiplier^(attempt-1), capped at MaxDelay, plus jitter.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.Delay)
	for i := 1; i < attempt; i++ {
		d *= cfg.Multiplier
		if cfg.MaxDelay > 0 && d >= float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
			break
		}
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Execute is the standard composition: caller -> breaker -> retry ->
// operation. The breaker sees one outcome per call no matter how many
// attempts the retry loop burned.
func Execute(ctx context.Context, b *Breaker, cfg RetryConfig, op func(context.Context) error) error {
	return b.Execute(ctx, func(ctx context.Context) error {
		return Retry(ctx, cfg, op)
	})
}
