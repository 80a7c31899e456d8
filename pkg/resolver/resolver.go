// Package resolver provides the external lookups that turn target names
// into sky coordinates: the CDS Sesame name resolver, the JPL Horizons
// API for minor planets, and a local analytic ephemeris for the Sun, Moon
// and planets.
package resolver

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

const (
	// DefaultTimeout for HTTP requests when the caller sets no deadline
	DefaultTimeout = 15 * time.Second

	// userAgent identifies us to public astronomy services
	userAgent = "skytrack/1.0"
)

// NotFoundError reports that a service answered but knows no such object.
type NotFoundError struct {
	Service string
	Name    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no object named %q", e.Service, e.Name)
}

// NotFound marks the error as a definitive negative answer.
func (e *NotFoundError) NotFound() bool { return true }

// newLimiter allows requestsPerSecond with a burst of 1.
func newLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// wait blocks for the limiter. A wait that cannot finish before the
// deadline counts as running out of time.
func wait(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("rate limiter: %w", ctx.Err())
		}
		return fmt.Errorf("rate limiter: %v: %w", err, context.DeadlineExceeded)
	}
	return nil
}

// Ephemeris computes Sun, Moon and planet positions locally.
type Ephemeris struct{}

// BodyPosition returns the geocentric position of body at the given time.
func (Ephemeris) BodyPosition(ctx context.Context, body string, at time.Time) (coordinates.EquatorialCoordinates, error) {
	if err := ctx.Err(); err != nil {
		return coordinates.EquatorialCoordinates{}, err
	}
	b, err := coordinates.ParseBody(body)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, &NotFoundError{Service: "ephemeris", Name: body}
	}
	return coordinates.BodyPosition(b, at)
}
