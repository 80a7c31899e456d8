package mount

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/unklstewy/skytrack/pkg/alpaca"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// AlpacaDriver drives an ASCOM Alpaca telescope.
type AlpacaDriver struct {
	client         *alpaca.Client
	pollInterval   time.Duration
	stepsPerDegree float64
	guideRate      float64 // deg/s
}

var _ Driver = (*AlpacaDriver)(nil)

// NewAlpacaDriver wraps a connected Alpaca client.
func NewAlpacaDriver(client *alpaca.Client, cfg config.TelescopeConfig) *AlpacaDriver {
	return &AlpacaDriver{
		client:         client,
		pollInterval:   cfg.PollInterval(),
		stepsPerDegree: cfg.StepsPerDegree,
		guideRate:      cfg.GuideRate,
	}
}

// Slew starts an asynchronous slew and polls until the mount stops moving.
// A cancelled slew is aborted on the device.
func (d *AlpacaDriver) Slew(ctx context.Context, coord coordinates.EquatorialCoordinates) error {
	if err := d.client.SlewToCoordinatesAsync(ctx, coord.RightAscension, coord.Declination); err != nil {
		return err
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.abort()
			return ctx.Err()
		case <-ticker.C:
			slewing, err := d.client.IsSlewing(ctx)
			if err != nil {
				if ctx.Err() != nil {
					d.abort()
					return ctx.Err()
				}
				return err
			}
			if !slewing {
				return nil
			}
		}
	}
}

func (d *AlpacaDriver) Sync(ctx context.Context, coord coordinates.EquatorialCoordinates) error {
	return d.client.SyncToCoordinates(ctx, coord.RightAscension, coord.Declination)
}

// Step converts motor steps into degrees and moves each axis at the guide
// rate for as long as that distance takes.
func (d *AlpacaDriver) Step(ctx context.Context, bearingSteps, decSteps int) error {
	if err := d.moveFor(ctx, alpaca.AxisPrimary, bearingSteps); err != nil {
		return err
	}
	return d.moveFor(ctx, alpaca.AxisSecondary, decSteps)
}

func (d *AlpacaDriver) StartTracking(ctx context.Context) error {
	return d.client.SetTracking(ctx, true)
}

func (d *AlpacaDriver) moveFor(ctx context.Context, axis, steps int) error {
	if steps == 0 {
		return nil
	}

	degrees := float64(steps) / d.stepsPerDegree
	rate := math.Copysign(d.guideRate, degrees)
	duration := time.Duration(math.Abs(degrees) / d.guideRate * float64(time.Second))

	if err := d.client.MoveAxis(ctx, axis, rate); err != nil {
		return err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	// Always stop the axis, even when cancelled
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.client.MoveAxis(stopCtx, axis, 0); err != nil {
		return fmt.Errorf("failed to stop axis %d: %w", axis, err)
	}
	return ctx.Err()
}

func (d *AlpacaDriver) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.client.AbortSlew(ctx)
}
