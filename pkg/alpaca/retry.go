package alpaca

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 5)
	MaxRetries int

	// InitialDelay is the initial backoff delay (default: 1 second)
	InitialDelay time.Duration

	// MaxDelay is the maximum backoff delay (default: 30 seconds)
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2.0 for exponential)
	Multiplier float64
}

// DefaultRetryConfig returns sensible defaults for connecting to a mount
// that may still be booting.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryWithBackoff executes fn with exponential backoff until it succeeds,
// the retries are exhausted or ctx is done.
//
// Only connection setup goes through here. Motion commands are never
// retried: a failed slew is reported to the caller as a fault.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, log zerolog.Logger, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		// delay = min(InitialDelay * Multiplier^attempt, MaxDelay)
		nextDelay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if nextDelay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		} else {
			delay = nextDelay
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("alpaca request failed")
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// ConnectWithRetry connects to the mount, unparking it if needed.
func (c *Client) ConnectWithRetry(ctx context.Context, cfg RetryConfig, log zerolog.Logger) error {
	if err := RetryWithBackoff(ctx, cfg, log, func() error { return c.Connect(ctx) }); err != nil {
		return err
	}

	parked, err := c.AtPark(ctx)
	if err != nil {
		// Not every driver implements parking
		log.Debug().Err(err).Msg("park state unavailable")
		return nil
	}
	if parked {
		log.Info().Msg("unparking mount")
		return c.Unpark(ctx)
	}
	return nil
}
