package coordinates

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Body identifies a solar system body with an analytic ephemeris.
type Body string

const (
	Sun     Body = "sun"
	Moon    Body = "moon"
	Mercury Body = "mercury"
	Venus   Body = "venus"
	Mars    Body = "mars"
	Jupiter Body = "jupiter"
	Saturn  Body = "saturn"
	Uranus  Body = "uranus"
	Neptune Body = "neptune"
)

// ErrUnknownBody is returned for names that have no ephemeris.
var ErrUnknownBody = errors.New("unknown solar system body")

// ParseBody matches a body name case-insensitively.
func ParseBody(name string) (Body, error) {
	b := Body(strings.ToLower(strings.TrimSpace(name)))
	switch b {
	case Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBody, name)
}

// obliquityJ2000 is the mean obliquity of the ecliptic at J2000.0 in degrees.
const obliquityJ2000 = 23.43928

// keplerElements are the JPL "approximate positions of the planets"
// mean elements valid 1800-2050 AD, referred to the J2000 ecliptic.
// Each field is {value at J2000, rate per Julian century}.
type keplerElements struct {
	a    [2]float64 // semi-major axis (au)
	e    [2]float64 // eccentricity
	i    [2]float64 // inclination (deg)
	l    [2]float64 // mean longitude (deg)
	peri [2]float64 // longitude of perihelion (deg)
	node [2]float64 // longitude of ascending node (deg)
}

var planetElements = map[Body]keplerElements{
	Mercury: {
		a: [2]float64{0.38709927, 0.00000037}, e: [2]float64{0.20563593, 0.00001906},
		i: [2]float64{7.00497902, -0.00594749}, l: [2]float64{252.25032350, 149472.67411175},
		peri: [2]float64{77.45779628, 0.16047689}, node: [2]float64{48.33076593, -0.12534081},
	},
	Venus: {
		a: [2]float64{0.72333566, 0.00000390}, e: [2]float64{0.00677672, -0.00004107},
		i: [2]float64{3.39467605, -0.00078890}, l: [2]float64{181.97909950, 58517.81538729},
		peri: [2]float64{131.60246718, 0.00268329}, node: [2]float64{76.67984255, -0.27769418},
	},
	// Earth-Moon barycenter; used as the observer for every other body.
	"earth": {
		a: [2]float64{1.00000261, 0.00000562}, e: [2]float64{0.01671123, -0.00004392},
		i: [2]float64{-0.00001531, -0.01294668}, l: [2]float64{100.46457166, 35999.37244981},
		peri: [2]float64{102.93768193, 0.32327364}, node: [2]float64{0, 0},
	},
	Mars: {
		a: [2]float64{1.52371034, 0.00001847}, e: [2]float64{0.09339410, 0.00007882},
		i: [2]float64{1.84969142, -0.00813131}, l: [2]float64{-4.55343205, 19140.30268499},
		peri: [2]float64{-23.94362959, 0.44441088}, node: [2]float64{49.55953891, -0.29257343},
	},
	Jupiter: {
		a: [2]float64{5.20288700, -0.00011607}, e: [2]float64{0.04838624, -0.00013253},
		i: [2]float64{1.30439695, -0.00183714}, l: [2]float64{34.39644051, 3034.74612775},
		peri: [2]float64{14.72847983, 0.21252668}, node: [2]float64{100.47390909, 0.20469106},
	},
	Saturn: {
		a: [2]float64{9.53667594, -0.00125060}, e: [2]float64{0.05386179, -0.00050991},
		i: [2]float64{2.48599187, 0.00193609}, l: [2]float64{49.95424423, 1222.49362201},
		peri: [2]float64{92.59887831, -0.41897216}, node: [2]float64{113.66242448, -0.28867794},
	},
	Uranus: {
		a: [2]float64{19.18916464, -0.00196176}, e: [2]float64{0.04725744, -0.00004397},
		i: [2]float64{0.77263783, -0.00242939}, l: [2]float64{313.23810451, 428.48202785},
		peri: [2]float64{170.95427630, 0.40805281}, node: [2]float64{74.01692503, 0.04240589},
	},
	Neptune: {
		a: [2]float64{30.06992276, 0.00026291}, e: [2]float64{0.00859048, 0.00005105},
		i: [2]float64{1.77004347, 0.00035372}, l: [2]float64{-55.12002969, 218.45945325},
		peri: [2]float64{44.96476227, -0.32241464}, node: [2]float64{131.78422574, -0.00508664},
	},
}

// BodyPosition returns the geocentric equatorial position of a body at t.
// Accuracy is a few arcminutes for the planets and Sun and roughly a
// quarter degree for the Moon, which is enough to acquire the target in a
// typical finder field before plate solving or manual centering.
func BodyPosition(b Body, t time.Time) (EquatorialCoordinates, error) {
	jc := (julianDate(t.UTC()) - 2451545.0) / 36525.0

	switch b {
	case Moon:
		return moonPosition(jc), nil
	case Sun:
		ex, ey, ez := heliocentric(planetElements["earth"], jc)
		return eclipticToEquatorial(-ex, -ey, -ez), nil
	}

	el, ok := planetElements[b]
	if !ok {
		return EquatorialCoordinates{}, fmt.Errorf("%w: %q", ErrUnknownBody, string(b))
	}
	px, py, pz := heliocentric(el, jc)
	ex, ey, ez := heliocentric(planetElements["earth"], jc)
	return eclipticToEquatorial(px-ex, py-ey, pz-ez), nil
}

// heliocentric returns J2000 ecliptic rectangular coordinates in au.
func heliocentric(el keplerElements, jc float64) (x, y, z float64) {
	at := func(v [2]float64) float64 { return v[0] + v[1]*jc }

	a := at(el.a)
	e := at(el.e)
	inc := at(el.i) * DegreesToRadians
	l := at(el.l)
	peri := at(el.peri)
	node := at(el.node)

	argPeri := (peri - node) * DegreesToRadians
	meanAnomaly := NormalizeDegrees(l-peri) * DegreesToRadians
	nodeRad := node * DegreesToRadians

	ecc := solveKepler(meanAnomaly, e)

	xp := a * (math.Cos(ecc) - e)
	yp := a * math.Sqrt(1-e*e) * math.Sin(ecc)

	cw, sw := math.Cos(argPeri), math.Sin(argPeri)
	cn, sn := math.Cos(nodeRad), math.Sin(nodeRad)
	ci, si := math.Cos(inc), math.Sin(inc)

	x = (cw*cn-sw*sn*ci)*xp + (-sw*cn-cw*sn*ci)*yp
	y = (cw*sn+sw*cn*ci)*xp + (-sw*sn+cw*cn*ci)*yp
	z = (sw*si)*xp + (cw*si)*yp
	return x, y, z
}

// solveKepler solves M = E - e·sin(E) for E by Newton iteration (radians).
func solveKepler(m, e float64) float64 {
	ecc := m + e*math.Sin(m)
	for i := 0; i < 12; i++ {
		delta := (ecc - e*math.Sin(ecc) - m) / (1 - e*math.Cos(ecc))
		ecc -= delta
		if math.Abs(delta) < 1e-10 {
			break
		}
	}
	return ecc
}

// moonPosition uses the low-precision lunar series from the Astronomical
// Almanac (geocentric ecliptic longitude/latitude of date).
func moonPosition(jc float64) EquatorialCoordinates {
	s := func(deg float64) float64 { return math.Sin(deg * DegreesToRadians) }

	lambda := 218.32 + 481267.881*jc +
		6.29*s(135.0+477198.87*jc) -
		1.27*s(259.3-413335.36*jc) +
		0.66*s(235.7+890534.22*jc) +
		0.21*s(269.9+954397.74*jc) -
		0.19*s(357.5+35999.05*jc) -
		0.11*s(186.5+966404.03*jc)

	beta := 5.13*s(93.3+483202.02*jc) +
		0.28*s(228.2+960400.89*jc) -
		0.28*s(318.3+6003.15*jc) -
		0.17*s(217.6-407332.21*jc)

	lambdaRad := NormalizeDegrees(lambda) * DegreesToRadians
	betaRad := beta * DegreesToRadians
	x := math.Cos(betaRad) * math.Cos(lambdaRad)
	y := math.Cos(betaRad) * math.Sin(lambdaRad)
	z := math.Sin(betaRad)
	return eclipticToEquatorial(x, y, z)
}

// eclipticToEquatorial rotates ecliptic rectangular coordinates into RA/Dec.
func eclipticToEquatorial(x, y, z float64) EquatorialCoordinates {
	eps := obliquityJ2000 * DegreesToRadians
	xe := x
	ye := y*math.Cos(eps) - z*math.Sin(eps)
	ze := y*math.Sin(eps) + z*math.Cos(eps)

	ra := math.Atan2(ye, xe)
	dec := math.Atan2(ze, math.Sqrt(xe*xe+ye*ye))
	return ToEquatorialDegrees(ra, dec)
}

// julianDate calculates the Julian Date from a time.Time
func julianDate(t time.Time) float64 {
	year := t.Year()
	month := int(t.Month())
	day := t.Day()

	// Adjust for January and February
	if month <= 2 {
		year--
		month += 12
	}

	// Julian day number
	a := year / 100
	b := 2 - a + a/4

	jd := float64(int(365.25*float64(year+4716))) +
		float64(int(30.6001*float64(month+1))) +
		float64(day+b) - 1524.5

	// Add fractional day
	secs := float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
	jd += secs / 86400.0

	return jd
}
