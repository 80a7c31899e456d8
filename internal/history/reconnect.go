package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skytrack/pkg/config"
)

// ConnectWithRetry opens the store with exponential backoff.
// This provides resilience against a database that is still starting up.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected store or the last error once retries are exhausted
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, log zerolog.Logger) (*Store, error) {
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		log.Debug().Int("attempt", attempt).Str("driver", cfg.Driver).Msg("Connecting to history database")

		store, err := Open(cfg)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("History database connected")
			return store, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			log.Error().Err(err).Int("attempts", attempt).Msg("Failed to connect to history database")
			return nil, err
		}

		log.Warn().Err(err).Dur("retry_in", delay).Msg("History database connection failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// HealthCheck reports whether the store answers a trivial query.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := s.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return err
	}
	return nil
}
