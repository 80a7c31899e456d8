// Package target describes where the mount should point and how each kind of
// pointing target is turned into an equatorial coordinate.
package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// Target is a pointing request that can be resolved to a sky coordinate.
type Target interface {
	// Resolve produces the coordinate to point at. Failures are always
	// returned as *ResolutionError.
	Resolve(ctx context.Context, svc Services) (coordinates.EquatorialCoordinates, error)

	// TimeVarying reports whether the coordinate changes with time and so
	// must be resolved right before it is used and refreshed while held.
	TimeVarying() bool

	// Variant is a short stable name for the target kind (fixed, named,
	// solar_system, minor_planet).
	Variant() string

	String() string
}

// NameResolver looks up catalog objects by name (e.g. "M31", "Vega").
type NameResolver interface {
	ResolveName(ctx context.Context, name string) (coordinates.EquatorialCoordinates, error)
}

// MinorPlanetResolver looks up the position of an asteroid or comet at a given time.
type MinorPlanetResolver interface {
	ResolveMinorPlanet(ctx context.Context, designation string, at time.Time) (coordinates.EquatorialCoordinates, error)
}

// Ephemeris computes the position of a major solar system body.
type Ephemeris interface {
	BodyPosition(ctx context.Context, body string, at time.Time) (coordinates.EquatorialCoordinates, error)
}

// ErrNotFound is returned by resolvers when the service answered but knows
// nothing about the requested object.
var ErrNotFound = errors.New("object not found")

// Services bundles the external lookups a target may need.
type Services struct {
	Names        NameResolver
	MinorPlanets MinorPlanetResolver
	Ephemeris    Ephemeris

	// Timeout bounds each external lookup (0 = only the caller's context).
	Timeout time.Duration

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

func (s Services) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// lookup runs fn with the lookup timeout applied and classifies its error.
func (s Services) lookup(ctx context.Context, t Target, fn func(ctx context.Context) (coordinates.EquatorialCoordinates, error)) (coordinates.EquatorialCoordinates, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	coord, err := fn(ctx)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, classify(ctx, t, err)
	}
	if err := coord.Validate(); err != nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: ServiceUnavailable, Target: t.String(), Err: fmt.Errorf("service returned %w", err)}
	}
	return coord, nil
}

// Fixed is a coordinate given directly by the caller.
// RA is in decimal degrees, Dec in decimal degrees.
type Fixed struct {
	RA    float64
	Dec   float64
	Frame coordinates.Frame
}

// NewFixed parses RA/Dec strings in any notation accepted by
// coordinates.ParseRA / ParseDec.
func NewFixed(ra, dec, frame string) (Fixed, error) {
	raHours, err := coordinates.ParseRA(ra)
	if err != nil {
		return Fixed{}, &ResolutionError{Kind: InvalidInput, Target: "fixed", Err: err}
	}
	decDeg, err := coordinates.ParseDec(dec)
	if err != nil {
		return Fixed{}, &ResolutionError{Kind: InvalidInput, Target: "fixed", Err: err}
	}
	f, err := coordinates.ParseFrame(frame)
	if err != nil {
		return Fixed{}, &ResolutionError{Kind: InvalidInput, Target: "fixed", Err: err}
	}
	return Fixed{RA: raHours * coordinates.HoursToDegrees, Dec: decDeg, Frame: f}, nil
}

func (f Fixed) Resolve(_ context.Context, _ Services) (coordinates.EquatorialCoordinates, error) {
	if _, err := coordinates.ParseFrame(string(f.Frame)); err != nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: InvalidInput, Target: f.String(), Err: err}
	}
	if f.RA < 0 || f.RA >= 360 {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: InvalidInput, Target: f.String(),
			Err: fmt.Errorf("right ascension %f° out of range [0, 360)", f.RA)}
	}
	coord := coordinates.EquatorialCoordinates{
		RightAscension: f.RA / coordinates.HoursToDegrees,
		Declination:    f.Dec,
	}
	if err := coord.Validate(); err != nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: InvalidInput, Target: f.String(), Err: err}
	}
	return coord, nil
}

func (f Fixed) TimeVarying() bool { return false }
func (f Fixed) Variant() string   { return "fixed" }

func (f Fixed) String() string {
	frame := f.Frame
	if frame == "" {
		frame = coordinates.FrameICRS
	}
	return fmt.Sprintf("fixed(ra=%.6f dec=%+.6f %s)", f.RA, f.Dec, frame)
}

// Named is a catalog object resolved once through the name service.
type Named struct {
	Name string
}

func (n Named) Resolve(ctx context.Context, svc Services) (coordinates.EquatorialCoordinates, error) {
	if strings.TrimSpace(n.Name) == "" {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: InvalidInput, Target: n.String(), Err: errors.New("empty object name")}
	}
	if svc.Names == nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: ServiceUnavailable, Target: n.String(), Err: errors.New("no name resolver configured")}
	}
	return svc.lookup(ctx, n, func(ctx context.Context) (coordinates.EquatorialCoordinates, error) {
		return svc.Names.ResolveName(ctx, strings.TrimSpace(n.Name))
	})
}

func (n Named) TimeVarying() bool { return false }
func (n Named) Variant() string   { return "named" }
func (n Named) String() string    { return fmt.Sprintf("named(%s)", n.Name) }

// SolarSystem is a major body whose position is computed from the ephemeris
// at the moment the mount needs it.
type SolarSystem struct {
	Body string
}

func (s SolarSystem) Resolve(ctx context.Context, svc Services) (coordinates.EquatorialCoordinates, error) {
	body, err := coordinates.ParseBody(s.Body)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: NotFound, Target: s.String(), Err: err}
	}
	if svc.Ephemeris == nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: ServiceUnavailable, Target: s.String(), Err: errors.New("no ephemeris configured")}
	}
	at := svc.now()
	return svc.lookup(ctx, s, func(ctx context.Context) (coordinates.EquatorialCoordinates, error) {
		return svc.Ephemeris.BodyPosition(ctx, string(body), at)
	})
}

func (s SolarSystem) TimeVarying() bool { return true }
func (s SolarSystem) Variant() string   { return "solar_system" }
func (s SolarSystem) String() string    { return fmt.Sprintf("solar_system(%s)", s.Body) }

// MinorPlanet is an asteroid or comet designation (e.g. "Ceres", "2024 YR4").
// It is looked up once per activity for the time of the lookup.
type MinorPlanet struct {
	Designation string
}

func (m MinorPlanet) Resolve(ctx context.Context, svc Services) (coordinates.EquatorialCoordinates, error) {
	if strings.TrimSpace(m.Designation) == "" {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: InvalidInput, Target: m.String(), Err: errors.New("empty designation")}
	}
	if svc.MinorPlanets == nil {
		return coordinates.EquatorialCoordinates{}, &ResolutionError{Kind: ServiceUnavailable, Target: m.String(), Err: errors.New("no minor planet service configured")}
	}
	at := svc.now()
	return svc.lookup(ctx, m, func(ctx context.Context) (coordinates.EquatorialCoordinates, error) {
		return svc.MinorPlanets.ResolveMinorPlanet(ctx, strings.TrimSpace(m.Designation), at)
	})
}

func (m MinorPlanet) TimeVarying() bool { return false }
func (m MinorPlanet) Variant() string   { return "minor_planet" }
func (m MinorPlanet) String() string    { return fmt.Sprintf("minor_planet(%s)", m.Designation) }
