package coordinates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// HoursToDegrees converts right ascension hours to degrees
	HoursToDegrees = 15.0
)

// Frame names the celestial reference frame a coordinate is expressed in.
// The mount works in J2000 equatorial coordinates; ICRS and FK5 agree with
// it well below the pointing accuracy of any supported mount.
type Frame string

const (
	FrameICRS  Frame = "icrs"
	FrameFK5   Frame = "fk5"
	FrameJ2000 Frame = "j2000"
)

// ParseFrame normalizes a frame name. An empty name means ICRS.
func ParseFrame(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "icrs":
		return FrameICRS, nil
	case "fk5":
		return FrameFK5, nil
	case "j2000":
		return FrameJ2000, nil
	default:
		return "", fmt.Errorf("unsupported frame %q", s)
	}
}

// EquatorialCoordinates represents a position in the equatorial coordinate system.
// This is what the mount is pointed with.
type EquatorialCoordinates struct {
	// RightAscension (RA) in decimal hours (0-24)
	// The celestial equivalent of longitude
	RightAscension float64

	// Declination (Dec) in decimal degrees (-90 to +90)
	// 0 = celestial equator, +90 = north celestial pole
	Declination float64
}

// FromDegrees builds EquatorialCoordinates from an RA given in degrees.
func FromDegrees(raDeg, decDeg float64) EquatorialCoordinates {
	return EquatorialCoordinates{
		RightAscension: NormalizeRA(raDeg / HoursToDegrees),
		Declination:    decDeg,
	}
}

// Validate checks that the coordinate lies within the valid RA/Dec ranges.
func (e EquatorialCoordinates) Validate() error {
	if math.IsNaN(e.RightAscension) || e.RightAscension < 0 || e.RightAscension >= 24 {
		return fmt.Errorf("right ascension %.6fh out of range [0, 24)", e.RightAscension)
	}
	if math.IsNaN(e.Declination) || e.Declination < -90 || e.Declination > 90 {
		return fmt.Errorf("declination %.6f° out of range [-90, 90]", e.Declination)
	}
	return nil
}

// String formats the coordinate as RA hours and Dec degrees.
func (e EquatorialCoordinates) String() string {
	return fmt.Sprintf("RA %.6fh Dec %+.6f°", e.RightAscension, e.Declination)
}

// ToRadians converts EquatorialCoordinates to radians.
// Returns (raRad, decRad).
// Note: RA is converted from hours to radians (1 hour = 15 degrees = π/12 radians)
func (e EquatorialCoordinates) ToRadians() (float64, float64) {
	raRad := e.RightAscension * HoursToDegrees * DegreesToRadians
	decRad := e.Declination * DegreesToRadians
	return raRad, decRad
}

// ToEquatorialDegrees converts radians to EquatorialCoordinates.
// Returns RA in hours and Dec in degrees.
func ToEquatorialDegrees(raRad, decRad float64) EquatorialCoordinates {
	raHours := (raRad * RadiansToDegrees) / HoursToDegrees
	return EquatorialCoordinates{
		RightAscension: NormalizeRA(raHours),
		Declination:    decRad * RadiansToDegrees,
	}
}

// NormalizeRA ensures right ascension is in the range [0, 24).
func NormalizeRA(ra float64) float64 {
	raHours := math.Mod(ra, 24.0)
	if raHours < 0 {
		raHours += 24.0
	}
	return raHours
}

// NormalizeDegrees ensures an angle is in the range [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360.0)
	if d < 0 {
		d += 360.0
	}
	return d
}

// AngularSeparation returns the great-circle distance between two
// equatorial positions in degrees (Vincenty formula, stable at all scales).
func AngularSeparation(a, b EquatorialCoordinates) float64 {
	ra1, dec1 := a.ToRadians()
	ra2, dec2 := b.ToRadians()
	dRA := ra2 - ra1

	num := math.Sqrt(
		math.Pow(math.Cos(dec2)*math.Sin(dRA), 2) +
			math.Pow(math.Cos(dec1)*math.Sin(dec2)-math.Sin(dec1)*math.Cos(dec2)*math.Cos(dRA), 2),
	)
	den := math.Sin(dec1)*math.Sin(dec2) + math.Cos(dec1)*math.Cos(dec2)*math.Cos(dRA)
	return math.Atan2(num, den) * RadiansToDegrees
}

// ParseRA parses a right ascension string.
//
// Accepted forms:
//   - sexagesimal hours: "10:21:30.5", "10 21 30.5", "10h21m30.5s"
//   - decimal degrees: "155.375" or "155.375d"
//   - decimal hours with an explicit unit: "10.358h"
//
// Returns RA in decimal hours.
func ParseRA(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty right ascension")
	}

	var hours float64
	switch {
	case strings.ContainsAny(s, ": ") || strings.Contains(s, "m"):
		v, err := parseSexagesimal(s, "hms")
		if err != nil {
			return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
		}
		hours = v
	case strings.HasSuffix(s, "h"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "h"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
		}
		hours = v
	default:
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid right ascension %q: %w", s, err)
		}
		if v < 0 || v >= 360 {
			return 0, fmt.Errorf("right ascension %q out of range [0, 360)", s)
		}
		hours = v / HoursToDegrees
	}

	if hours < 0 || hours >= 24 {
		return 0, fmt.Errorf("right ascension %q out of range [0h, 24h)", s)
	}
	return hours, nil
}

// ParseDec parses a declination string.
// Accepts decimal degrees ("20.5", "-5d") or sexagesimal ("+20:30:00",
// "-05d30m00s"). Returns decimal degrees.
func ParseDec(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty declination")
	}

	var deg float64
	if strings.ContainsAny(s, ": ") || strings.Contains(s, "m") {
		v, err := parseSexagesimal(s, "dms")
		if err != nil {
			return 0, fmt.Errorf("invalid declination %q: %w", s, err)
		}
		deg = v
	} else {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid declination %q: %w", s, err)
		}
		deg = v
	}

	if deg < -90 || deg > 90 {
		return 0, fmt.Errorf("declination %q out of range [-90, 90]", s)
	}
	return deg, nil
}

// parseSexagesimal parses "a:b:c", "a b c" or "aXbYcZ" where units is the
// three unit letters (e.g. "hms" or "dms"). The sign of the first field
// applies to the whole value.
func parseSexagesimal(s, units string) (float64, error) {
	sign := 1.0
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	s = strings.TrimSuffix(s, string(units[2]))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ' ' || r == rune(units[0]) || r == rune(units[1])
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("expected 1 to 3 fields, got %d", len(fields))
	}

	var value float64
	scale := 1.0
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("negative component %q", f)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("component %q must be below 60", f)
		}
		value += v / scale
		scale *= 60
	}
	return sign * value, nil
}
