package target

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

type stubNames struct {
	coord coordinates.EquatorialCoordinates
	err   error
	delay time.Duration
	calls int
}

func (s *stubNames) ResolveName(ctx context.Context, name string) (coordinates.EquatorialCoordinates, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return coordinates.EquatorialCoordinates{}, ctx.Err()
		}
	}
	return s.coord, s.err
}

type stubMinorPlanets struct {
	at time.Time
}

func (s *stubMinorPlanets) ResolveMinorPlanet(ctx context.Context, designation string, at time.Time) (coordinates.EquatorialCoordinates, error) {
	s.at = at
	return coordinates.EquatorialCoordinates{RightAscension: 3, Declination: 12}, nil
}

type stubEphemeris struct {
	times []time.Time
}

func (s *stubEphemeris) BodyPosition(ctx context.Context, body string, at time.Time) (coordinates.EquatorialCoordinates, error) {
	s.times = append(s.times, at)
	return coordinates.BodyPosition(coordinates.Body(body), at)
}

func TestFixedResolve(t *testing.T) {
	tests := []struct {
		name     string
		target   Fixed
		wantRA   float64
		wantDec  float64
		wantKind ErrorKind
		wantErr  bool
	}{
		{name: "Degrees converted to hours", target: Fixed{RA: 10, Dec: 20}, wantRA: 10.0 / 15.0, wantDec: 20},
		{name: "FK5 frame", target: Fixed{RA: 30, Dec: -5, Frame: coordinates.FrameFK5}, wantRA: 2, wantDec: -5},
		{name: "RA out of range", target: Fixed{RA: 400, Dec: 0}, wantErr: true, wantKind: InvalidInput},
		{name: "Dec out of range", target: Fixed{RA: 10, Dec: 95}, wantErr: true, wantKind: InvalidInput},
		{name: "Unknown frame", target: Fixed{RA: 10, Dec: 0, Frame: "galactic"}, wantErr: true, wantKind: InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.target.Resolve(context.Background(), Services{})
			if tt.wantErr {
				if !IsKind(err, tt.wantKind) {
					t.Errorf("Expected %s error, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(got.RightAscension-tt.wantRA) > 1e-12 || got.Declination != tt.wantDec {
				t.Errorf("Resolve() = %s, want RA %f Dec %f", got, tt.wantRA, tt.wantDec)
			}
		})
	}
}

func TestNewFixed(t *testing.T) {
	f, err := NewFixed("10:30:00", "-05:30:00", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if f.RA != 157.5 || f.Dec != -5.5 || f.Frame != coordinates.FrameICRS {
		t.Errorf("NewFixed = %+v", f)
	}

	if _, err := NewFixed("abc", "0", ""); !IsKind(err, InvalidInput) {
		t.Errorf("Expected InvalidInput for bad RA, got %v", err)
	}
	if _, err := NewFixed("10", "0", "galactic"); !IsKind(err, InvalidInput) {
		t.Errorf("Expected InvalidInput for bad frame, got %v", err)
	}
}

func TestNamedResolve(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		names := &stubNames{coord: coordinates.EquatorialCoordinates{RightAscension: 0.712, Declination: 41.27}}
		got, err := Named{Name: "M31"}.Resolve(context.Background(), Services{Names: names})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got.Declination != 41.27 || names.calls != 1 {
			t.Errorf("Got %s after %d calls", got, names.calls)
		}
	})

	t.Run("Not found", func(t *testing.T) {
		names := &stubNames{err: ErrNotFound}
		_, err := Named{Name: "Nowhere"}.Resolve(context.Background(), Services{Names: names})
		if !IsKind(err, NotFound) {
			t.Errorf("Expected NotFound, got %v", err)
		}
	})

	t.Run("Service error", func(t *testing.T) {
		names := &stubNames{err: errors.New("connection refused")}
		_, err := Named{Name: "M31"}.Resolve(context.Background(), Services{Names: names})
		if !IsKind(err, ServiceUnavailable) {
			t.Errorf("Expected ServiceUnavailable, got %v", err)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		names := &stubNames{delay: time.Second}
		start := time.Now()
		_, err := Named{Name: "M31"}.Resolve(context.Background(), Services{Names: names, Timeout: 20 * time.Millisecond})
		if !IsKind(err, Timeout) {
			t.Errorf("Expected Timeout, got %v", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Errorf("Timeout took too long: %v", time.Since(start))
		}
		if names.calls != 1 {
			t.Errorf("Expected exactly one attempt, got %d", names.calls)
		}
	})

	t.Run("Empty name", func(t *testing.T) {
		_, err := Named{Name: " "}.Resolve(context.Background(), Services{Names: &stubNames{}})
		if !IsKind(err, InvalidInput) {
			t.Errorf("Expected InvalidInput, got %v", err)
		}
	})

	t.Run("No resolver", func(t *testing.T) {
		_, err := Named{Name: "M31"}.Resolve(context.Background(), Services{})
		if !IsKind(err, ServiceUnavailable) {
			t.Errorf("Expected ServiceUnavailable, got %v", err)
		}
	})

	t.Run("Invalid coordinate from service", func(t *testing.T) {
		names := &stubNames{coord: coordinates.EquatorialCoordinates{RightAscension: 30}}
		_, err := Named{Name: "M31"}.Resolve(context.Background(), Services{Names: names})
		if !IsKind(err, ServiceUnavailable) {
			t.Errorf("Expected ServiceUnavailable, got %v", err)
		}
	})
}

func TestSolarSystemResolvesAtNow(t *testing.T) {
	eph := &stubEphemeris{}
	clock := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	svc := Services{Ephemeris: eph, Now: func() time.Time { return clock }}
	target := SolarSystem{Body: "Mars"}

	if !target.TimeVarying() {
		t.Fatal("Expected solar system target to be time varying")
	}

	first, err := target.Resolve(context.Background(), svc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	clock = clock.Add(24 * time.Hour)
	second, err := target.Resolve(context.Background(), svc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(eph.times) != 2 || !eph.times[1].After(eph.times[0]) {
		t.Fatalf("Expected two resolutions at increasing times, got %v", eph.times)
	}
	if coordinates.AngularSeparation(first, second) == 0 {
		t.Error("Expected Mars to move over a day")
	}
}

func TestSolarSystemUnknownBody(t *testing.T) {
	_, err := SolarSystem{Body: "Vulcan"}.Resolve(context.Background(), Services{Ephemeris: &stubEphemeris{}})
	if !IsKind(err, NotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if !errors.Is(err, coordinates.ErrUnknownBody) {
		t.Errorf("Expected wrapped ErrUnknownBody, got %v", err)
	}
}

func TestMinorPlanetResolve(t *testing.T) {
	mp := &stubMinorPlanets{}
	clock := time.Date(2026, time.May, 5, 12, 0, 0, 0, time.UTC)
	got, err := MinorPlanet{Designation: "Ceres"}.Resolve(context.Background(), Services{MinorPlanets: mp, Now: func() time.Time { return clock }})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.RightAscension != 3 || !mp.at.Equal(clock) {
		t.Errorf("Got %s at %v", got, mp.at)
	}
}

func TestVariants(t *testing.T) {
	tests := []struct {
		target      Target
		variant     string
		timeVarying bool
	}{
		{Fixed{RA: 1}, "fixed", false},
		{Named{Name: "M1"}, "named", false},
		{SolarSystem{Body: "moon"}, "solar_system", true},
		{MinorPlanet{Designation: "Ceres"}, "minor_planet", false},
	}
	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			if tt.target.Variant() != tt.variant {
				t.Errorf("Variant() = %s, want %s", tt.target.Variant(), tt.variant)
			}
			if tt.target.TimeVarying() != tt.timeVarying {
				t.Errorf("TimeVarying() = %v, want %v", tt.target.TimeVarying(), tt.timeVarying)
			}
		})
	}
}
