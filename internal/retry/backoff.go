// Package retry implements exponential backoff with jitter for
// transient failures, used where the relay talks to collaborators that
// may not be up yet (the database at boot).
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxRetries int           // Maximum number of retry attempts (default: 3)
	BaseDelay  time.Duration // Base delay between retries (default: 1s)
	MaxDelay   time.Duration // Maximum delay between retries (default: 30s)
	Multiplier float64       // Exponential backoff multiplier (default: 2.0)
	Jitter     bool          // Add random jitter to prevent thundering herd (default: true)
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// ConnectConfig returns a retry configuration for startup connections,
// where the dependency may take tens of seconds to come up.
func ConnectConfig() Config {
	return Config{
		MaxRetries: 6,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do executes operation with exponential backoff, returning the last
// error once retries are exhausted or the context ends.
func (c Config) Do(ctx context.Context, name string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				log.Info().Str("op", name).Int("attempts", attempt+1).Msg("operation succeeded after retry")
			}
			return nil
		}

		if attempt >= c.MaxRetries {
			break
		}

		delay := c.delay(attempt)
		log.Warn().Err(lastErr).Str("op", name).
			Int("attempt", attempt+1).Dur("next_retry_in", delay).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (c Config) delay(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		// Up to 25% random spread keeps simultaneous restarts apart.
		d += d * 0.25 * rand.Float64()
	}
	return time.Duration(d)
}
