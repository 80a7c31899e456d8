// skytrack server
// Owns the telescope mount and serves the control REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skytrack/internal/activity"
	"github.com/unklstewy/skytrack/internal/api"
	"github.com/unklstewy/skytrack/internal/auth"
	"github.com/unklstewy/skytrack/internal/history"
	"github.com/unklstewy/skytrack/internal/logging"
	"github.com/unklstewy/skytrack/internal/mount"
	"github.com/unklstewy/skytrack/internal/target"
	"github.com/unklstewy/skytrack/internal/telescope"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/resolver"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
	simulate   = flag.Bool("simulate", false, "Use the in-process mount simulator")
)

// historyRetention is how long stored activity events are kept.
const historyRetention = 30 * 24 * time.Hour

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *simulate {
		cfg.Telescope.Simulate = true
	}

	log := logging.New("skytrack-server", cfg.Logging.Level, cfg.Logging.JSON)

	if err := serve(context.Background(), cfg, log); err != nil {
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

// serve runs the server until ctx ends or SIGINT/SIGTERM arrives.
func serve(parent context.Context, cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	driver, disconnect, err := connectMount(ctx, cfg.Telescope, log)
	if err != nil {
		return err
	}
	defer disconnect()

	var workers []func()
	wait := func() {
		for _, w := range workers {
			w()
		}
	}

	// Activity history
	var (
		store    *history.Store
		observer activity.Observer
	)
	if cfg.Database.Enabled {
		store, err = history.ConnectWithRetry(ctx, cfg.Database, 5, time.Second, log)
		if err != nil {
			return fmt.Errorf("history database: %w", err)
		}
		defer store.Close()

		if err := store.InitSchema(ctx); err != nil {
			return err
		}

		recorder := history.NewRecorder(store, 1024, log)
		observer = recorder
		log.Info().Str("session", recorder.Session()).Str("driver", cfg.Database.Driver).Msg("Recording activity history")

		recCtx, cancelRec := context.WithCancel(context.Background())
		recDone := make(chan struct{})
		go func() {
			defer close(recDone)
			recorder.Run(recCtx)
		}()
		workers = append(workers, func() {
			cancelRec()
			<-recDone
		})

		go pruneHistory(ctx, store, log)
	}

	// Mount actor
	mount.RegisterMetrics()
	actor := mount.NewActor(driver, mount.Options{
		Services: target.Services{
			Names:        resolver.NewSesameClient(cfg.Resolver.SesameURL, cfg.Resolver.RequestsPerSecond),
			MinorPlanets: resolver.NewHorizonsClient(cfg.Resolver.MinorPlanetURL, cfg.Resolver.RequestsPerSecond),
			Ephemeris:    resolver.Ephemeris{},
			Timeout:      cfg.Resolver.Timeout(),
		},
		Observer:         observer,
		Logger:           log,
		SlewTimeout:      cfg.Telescope.SlewTimeout(),
		RefreshInterval:  cfg.Telescope.TrackRefresh(),
		RepointTolerance: cfg.Telescope.TrackToleranceArcmin / 60.0,
	})

	actorCtx, cancelActor := context.WithCancel(context.Background())
	actorDone := make(chan struct{})
	go func() {
		defer close(actorDone)
		actor.Run(actorCtx)
	}()

	// HTTP API
	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc = auth.NewService(auth.FromConfig(cfg.Auth))
	}
	srv := api.NewServer(telescope.New(actor), api.Options{
		History:        store,
		Auth:           authSvc,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:     srv,
		ReadTimeout: 15 * time.Second,
		// calibrate waits for the mount, so no write timeout
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Bool("auth", authSvc != nil).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case err := <-errCh:
		cancelActor()
		<-actorDone
		wait()
		return err
	}

	// Stop the mount first so waiting requests see their activities abort
	cancelActor()
	<-actorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	wait()
	return nil
}
