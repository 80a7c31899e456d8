package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skytrack/internal/history"
	"github.com/unklstewy/skytrack/internal/mount"
	"github.com/unklstewy/skytrack/pkg/alpaca"
	"github.com/unklstewy/skytrack/pkg/config"
)

// connectMount returns the driver for cfg and a function that releases it.
func connectMount(ctx context.Context, cfg config.TelescopeConfig, log zerolog.Logger) (mount.Driver, func(), error) {
	if cfg.Simulate {
		log.Warn().Msg("Using mount simulator, no hardware will move")
		return mount.NewSimulator(2 * time.Second), func() {}, nil
	}

	client := alpaca.NewClient(cfg)
	retry := alpaca.DefaultRetryConfig()
	if cfg.ConnectRetries > 0 {
		retry.MaxRetries = cfg.ConnectRetries
	}

	log.Info().Str("url", cfg.BaseURL).Int("device", cfg.DeviceNumber).Msg("Connecting to telescope")
	if err := client.ConnectWithRetry(ctx, retry, log); err != nil {
		return nil, nil, fmt.Errorf("connect telescope: %w", err)
	}

	disconnect := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			log.Warn().Err(err).Msg("Telescope disconnect failed")
		}
	}
	return mount.NewAlpacaDriver(client, cfg), disconnect, nil
}

// pruneHistory deletes old activity events every hour until ctx is done.
func pruneHistory(ctx context.Context, store *history.Store, log zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Cleanup(ctx, historyRetention)
			if err != nil {
				log.Warn().Err(err).Msg("History cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("Pruned activity history")
			}
		}
	}
}
