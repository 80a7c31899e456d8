package resolver

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// SesameClient resolves catalog names (Messier, NGC, star names, ...)
// through the CDS Sesame service, querying SIMBAD, NED and VizieR in turn.
// Service documentation: https://cds.unistra.fr/cgi-bin/Sesame
type SesameClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewSesameClient creates a client for baseURL
// (e.g. "https://cds.unistra.fr/cgi-bin/nph-sesame").
func NewSesameClient(baseURL string, requestsPerSecond float64) *SesameClient {
	return &SesameClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		rateLimiter: newLimiter(requestsPerSecond),
	}
}

// sesameResponse is the subset of Sesame's XML output (-oxI) we use.
type sesameResponse struct {
	XMLName xml.Name `xml:"Sesame"`
	Targets []struct {
		Name      string `xml:"name"`
		Resolvers []struct {
			Name  string   `xml:"name,attr"`
			RADeg *float64 `xml:"jradeg"`
			DeDeg *float64 `xml:"jdedeg"`
		} `xml:"Resolver"`
	} `xml:"Target"`
}

// ResolveName looks up the J2000 position of name.
func (c *SesameClient) ResolveName(ctx context.Context, name string) (coordinates.EquatorialCoordinates, error) {
	if err := wait(ctx, c.rateLimiter); err != nil {
		return coordinates.EquatorialCoordinates{}, err
	}

	// S=SIMBAD, N=NED, V=VizieR; first hit wins
	reqURL := fmt.Sprintf("%s/-oxI/SNV?%s", c.baseURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("sesame request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("sesame returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result sesameResponse
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("decode sesame response: %w", err)
	}

	for _, t := range result.Targets {
		for _, r := range t.Resolvers {
			if r.RADeg != nil && r.DeDeg != nil {
				return coordinates.FromDegrees(*r.RADeg, *r.DeDeg), nil
			}
		}
	}
	return coordinates.EquatorialCoordinates{}, &NotFoundError{Service: "sesame", Name: name}
}
