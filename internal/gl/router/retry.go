package router

import (
	"context"
	"time"
)

// Config bounds the retry loop for transient failures.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches the engine's contract: three attempts, 100ms base,
// doubling each time.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

func (c Config) backoff(attempt int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Do runs fn up to MaxAttempts times, sleeping between attempts, as long as
// the failure classifies as transient. Permanent failures return immediately
// with the attempt count reached so far.
func (c Config) Do(ctx context.Context, fn func(context.Context) error, onRetry func(attempt int, err error)) (attempts int, err error) {
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if Classify(err) == Permanent {
			return attempt, err
		}
		if attempt == c.MaxAttempts {
			return attempt, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
	return c.MaxAttempts, err
}
