package resolver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// HorizonsClient resolves asteroid and comet designations through the
// JPL Horizons API, asking for the geocentric astrometric RA/Dec.
// API documentation: https://ssd-api.jpl.nasa.gov/doc/horizons.html
type HorizonsClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewHorizonsClient creates a client for baseURL
// (e.g. "https://ssd.jpl.nasa.gov/api/horizons.api").
func NewHorizonsClient(baseURL string, requestsPerSecond float64) *HorizonsClient {
	return &HorizonsClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		rateLimiter: newLimiter(requestsPerSecond),
	}
}

type horizonsResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// ResolveMinorPlanet returns the position of designation at time at.
func (c *HorizonsClient) ResolveMinorPlanet(ctx context.Context, designation string, at time.Time) (coordinates.EquatorialCoordinates, error) {
	if err := wait(ctx, c.rateLimiter); err != nil {
		return coordinates.EquatorialCoordinates{}, err
	}

	at = at.UTC()
	params := url.Values{}
	params.Set("format", "json")
	// Trailing semicolon restricts the search to small bodies
	params.Set("COMMAND", fmt.Sprintf("'%s;'", designation))
	params.Set("OBJ_DATA", "NO")
	params.Set("MAKE_EPHEM", "YES")
	params.Set("EPHEM_TYPE", "OBSERVER")
	params.Set("CENTER", "'500@399'")
	params.Set("START_TIME", "'"+at.Format("2006-01-02 15:04")+"'")
	params.Set("STOP_TIME", "'"+at.Add(time.Minute).Format("2006-01-02 15:04")+"'")
	params.Set("STEP_SIZE", "'1m'")
	params.Set("QUANTITIES", "'1'")
	params.Set("ANG_FORMAT", "DEG")
	params.Set("CSV_FORMAT", "YES")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("horizons request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("read horizons response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("horizons returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result horizonsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("decode horizons response: %w", err)
	}
	if result.Error != "" {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("horizons error: %s", result.Error)
	}

	return parseHorizonsEphemeris(designation, result.Result)
}

// parseHorizonsEphemeris reads the first row between $$SOE and $$EOE.
// With ANG_FORMAT=DEG and CSV_FORMAT=YES a row looks like
// " 2026-Oct-17 22:00, , ,  23.123456, -12.345678,".
func parseHorizonsEphemeris(designation, text string) (coordinates.EquatorialCoordinates, error) {
	if strings.Contains(text, "No matches found") || strings.Contains(text, "Matching small-bodies") {
		return coordinates.EquatorialCoordinates{}, &NotFoundError{Service: "horizons", Name: designation}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	inEphemeris := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "$$SOE":
			inEphemeris = true
			continue
		case line == "$$EOE":
			inEphemeris = false
		}
		if !inEphemeris || line == "" {
			continue
		}

		// The date and the solar/lunar presence flags never parse as numbers
		var values []float64
		for _, field := range strings.Split(line, ",") {
			if v, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
				values = append(values, v)
			}
		}
		if len(values) < 2 {
			return coordinates.EquatorialCoordinates{}, fmt.Errorf("malformed horizons row %q", line)
		}
		return coordinates.FromDegrees(values[0], values[1]), nil
	}

	return coordinates.EquatorialCoordinates{}, &NotFoundError{Service: "horizons", Name: designation}
}
