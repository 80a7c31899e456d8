package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// Mount axes as numbered by the Alpaca MoveAxis method.
const (
	// AxisPrimary is RA on an equatorial mount, azimuth on an alt-az mount.
	AxisPrimary = 0

	// AxisSecondary is Dec on an equatorial mount, altitude on an alt-az mount.
	AxisSecondary = 1
)

// ErrNotConnected is returned by device methods called before Connect.
var ErrNotConnected = errors.New("telescope not connected")

// Error is a device-side failure reported in an Alpaca response.
type Error struct {
	Number  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("alpaca error %d: %s", e.Number, e.Message)
}

// Client represents an ASCOM Alpaca telescope client.
// It implements the Alpaca REST API for telescope control.
// Reference: https://ascom-standards.org/Developer/Alpaca.htm
type Client struct {
	// config contains all telescope configuration from the config system
	config config.TelescopeConfig

	// clientID is a unique identifier for this client instance
	// Generated at client creation to comply with Alpaca specification
	clientID int

	// txn is the last ClientTransactionID issued
	txn atomic.Uint32

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// connected tracks if we're currently connected to the telescope
	connected atomic.Bool
}

// NewClient creates a new Alpaca telescope client from configuration.
func NewClient(cfg config.TelescopeConfig) *Client {
	return &Client{
		config:   cfg,
		clientID: generateClientID(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// generateClientID creates a unique client ID for this Alpaca session.
// The Alpaca specification requires each client to have a unique ID.
func generateClientID() int {
	return int(time.Now().Unix() % 65536)
}

// Connect establishes a connection to the telescope.
// Must be called before any other telescope operations.
// Implements: PUT /api/v1/telescope/{device_number}/connected
func (c *Client) Connect(ctx context.Context) error {
	params := url.Values{}
	params.Add("Connected", "true")

	if _, err := c.put(ctx, "connected", params); err != nil {
		return fmt.Errorf("failed to connect to telescope: %w", err)
	}

	c.connected.Store(true)
	return nil
}

// Disconnect closes the connection to the telescope.
// Implements: PUT /api/v1/telescope/{device_number}/connected
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.connected.Load() {
		return nil
	}

	params := url.Values{}
	params.Add("Connected", "false")

	if _, err := c.put(ctx, "connected", params); err != nil {
		return fmt.Errorf("failed to disconnect from telescope: %w", err)
	}

	c.connected.Store(false)
	return nil
}

// IsConnected returns the device's connection status.
// Implements: GET /api/v1/telescope/{device_number}/connected
func (c *Client) IsConnected(ctx context.Context) (bool, error) {
	connected, err := c.getBool(ctx, "connected")
	if err != nil {
		return false, fmt.Errorf("failed to get connection status: %w", err)
	}
	return connected, nil
}

// SlewToCoordinatesAsync starts a slew to the given equatorial coordinates
// and returns without waiting for it to finish; poll IsSlewing for that.
// ra: right ascension in decimal hours (0-24)
// dec: declination in decimal degrees (-90 to +90)
// Implements: PUT /api/v1/telescope/{device_number}/slewtocoordinatesasync
func (c *Client) SlewToCoordinatesAsync(ctx context.Context, ra, dec float64) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	params := url.Values{}
	params.Add("RightAscension", fmt.Sprintf("%.6f", ra))
	params.Add("Declination", fmt.Sprintf("%.6f", dec))

	if _, err := c.put(ctx, "slewtocoordinatesasync", params); err != nil {
		return fmt.Errorf("failed to slew telescope: %w", err)
	}
	return nil
}

// SyncToCoordinates tells the mount it is pointing at the given coordinates,
// correcting its pointing model.
// Implements: PUT /api/v1/telescope/{device_number}/synctocoordinates
func (c *Client) SyncToCoordinates(ctx context.Context, ra, dec float64) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	params := url.Values{}
	params.Add("RightAscension", fmt.Sprintf("%.6f", ra))
	params.Add("Declination", fmt.Sprintf("%.6f", dec))

	if _, err := c.put(ctx, "synctocoordinates", params); err != nil {
		return fmt.Errorf("failed to sync telescope: %w", err)
	}
	return nil
}

// IsSlewing returns true if the telescope is currently slewing.
// Implements: GET /api/v1/telescope/{device_number}/slewing
func (c *Client) IsSlewing(ctx context.Context) (bool, error) {
	if !c.connected.Load() {
		return false, ErrNotConnected
	}

	slewing, err := c.getBool(ctx, "slewing")
	if err != nil {
		return false, fmt.Errorf("failed to get slewing status: %w", err)
	}
	return slewing, nil
}

// AbortSlew immediately stops any telescope motion.
// Implements: PUT /api/v1/telescope/{device_number}/abortslew
func (c *Client) AbortSlew(ctx context.Context) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	if _, err := c.put(ctx, "abortslew", url.Values{}); err != nil {
		return fmt.Errorf("failed to abort slew: %w", err)
	}
	return nil
}

// Position returns where the mount currently points.
// Implements: GET rightascension and declination
func (c *Client) Position(ctx context.Context) (coordinates.EquatorialCoordinates, error) {
	if !c.connected.Load() {
		return coordinates.EquatorialCoordinates{}, ErrNotConnected
	}

	ra, err := c.getFloat64(ctx, "rightascension")
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("failed to get right ascension: %w", err)
	}
	dec, err := c.getFloat64(ctx, "declination")
	if err != nil {
		return coordinates.EquatorialCoordinates{}, fmt.Errorf("failed to get declination: %w", err)
	}

	return coordinates.EquatorialCoordinates{
		RightAscension: coordinates.NormalizeRA(ra),
		Declination:    dec,
	}, nil
}

// MoveAxis moves the telescope at a constant rate on a specified axis.
// axis: AxisPrimary or AxisSecondary
// rate: speed in degrees per second (sign selects direction)
// Set rate to 0 to stop movement on that axis.
// Implements: PUT /api/v1/telescope/{device_number}/moveaxis
func (c *Client) MoveAxis(ctx context.Context, axis int, rate float64) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	if axis != AxisPrimary && axis != AxisSecondary {
		return fmt.Errorf("invalid axis %d: must be %d (primary) or %d (secondary)", axis, AxisPrimary, AxisSecondary)
	}

	params := url.Values{}
	params.Add("Axis", strconv.Itoa(axis))
	params.Add("Rate", fmt.Sprintf("%.6f", rate))

	if _, err := c.put(ctx, "moveaxis", params); err != nil {
		return fmt.Errorf("failed to move axis: %w", err)
	}
	return nil
}

// StopAxes stops movement on both axes by setting their rates to 0.
func (c *Client) StopAxes(ctx context.Context) error {
	if err := c.MoveAxis(ctx, AxisPrimary, 0); err != nil {
		return fmt.Errorf("failed to stop primary axis: %w", err)
	}
	if err := c.MoveAxis(ctx, AxisSecondary, 0); err != nil {
		return fmt.Errorf("failed to stop secondary axis: %w", err)
	}
	return nil
}

// AtPark returns true if the telescope is at the park position.
// Implements: GET /api/v1/telescope/{device_number}/atpark
func (c *Client) AtPark(ctx context.Context) (bool, error) {
	atPark, err := c.getBool(ctx, "atpark")
	if err != nil {
		return false, fmt.Errorf("failed to get park status: %w", err)
	}
	return atPark, nil
}

// Unpark unparks the telescope, preparing it for slewing.
// Implements: PUT /api/v1/telescope/{device_number}/unpark
func (c *Client) Unpark(ctx context.Context) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	if _, err := c.put(ctx, "unpark", url.Values{}); err != nil {
		return fmt.Errorf("failed to unpark telescope: %w", err)
	}
	return nil
}

// SetTracking enables or disables sidereal tracking.
// Implements: PUT /api/v1/telescope/{device_number}/tracking
func (c *Client) SetTracking(ctx context.Context, enabled bool) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	params := url.Values{}
	params.Add("Tracking", strconv.FormatBool(enabled))

	if _, err := c.put(ctx, "tracking", params); err != nil {
		return fmt.Errorf("failed to set tracking: %w", err)
	}
	return nil
}

// Tracking returns the current tracking state.
// Implements: GET /api/v1/telescope/{device_number}/tracking
func (c *Client) Tracking(ctx context.Context) (bool, error) {
	if !c.connected.Load() {
		return false, ErrNotConnected
	}

	tracking, err := c.getBool(ctx, "tracking")
	if err != nil {
		return false, fmt.Errorf("failed to get tracking status: %w", err)
	}
	return tracking, nil
}

// Config returns the telescope configuration the client was built with.
func (c *Client) Config() config.TelescopeConfig {
	return c.config
}

// nextTransactionID returns a ClientTransactionID that fits the 32-bit
// unsigned range the Alpaca specification requires.
func (c *Client) nextTransactionID() int {
	return int(c.txn.Add(1))
}

func (c *Client) endpoint(name string) string {
	return fmt.Sprintf("%s/api/v1/telescope/%d/%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), c.config.DeviceNumber, name)
}

func (c *Client) getBool(ctx context.Context, name string) (bool, error) {
	resp, err := c.get(ctx, name)
	if err != nil {
		return false, err
	}
	v, ok := resp.Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected response type %T for %s", resp.Value, name)
	}
	return v, nil
}

func (c *Client) getFloat64(ctx context.Context, name string) (float64, error) {
	resp, err := c.get(ctx, name)
	if err != nil {
		return 0, err
	}
	v, ok := resp.Value.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected response type %T for %s", resp.Value, name)
	}
	return v, nil
}

// get performs an HTTP GET request to an Alpaca endpoint.
func (c *Client) get(ctx context.Context, name string) (*alpacaResponse, error) {
	params := url.Values{}
	params.Add("ClientID", strconv.Itoa(c.clientID))
	params.Add("ClientTransactionID", strconv.Itoa(c.nextTransactionID()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(name)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// put performs an HTTP PUT request with a form-encoded body.
func (c *Client) put(ctx context.Context, name string, params url.Values) (*alpacaResponse, error) {
	params.Set("ClientID", strconv.Itoa(c.clientID))
	params.Set("ClientTransactionID", strconv.Itoa(c.nextTransactionID()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(name), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*alpacaResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("alpaca HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Some devices return no content on successful PUTs
	if len(body) == 0 {
		return &alpacaResponse{}, nil
	}

	var alpacaResp alpacaResponse
	if err := json.Unmarshal(body, &alpacaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := alpacaResp.Error(); err != nil {
		return nil, err
	}
	return &alpacaResp, nil
}

// alpacaResponse represents the standard Alpaca API response format.
type alpacaResponse struct {
	// Value contains the response data (type varies by endpoint)
	Value interface{} `json:"Value"`

	// ClientTransactionID echoes back the client's transaction ID
	ClientTransactionID int `json:"ClientTransactionID"`

	// ServerTransactionID is the server's transaction ID
	ServerTransactionID int `json:"ServerTransactionID"`

	// ErrorNumber is non-zero if an error occurred
	ErrorNumber int `json:"ErrorNumber"`

	// ErrorMessage describes the error if ErrorNumber is non-zero
	ErrorMessage string `json:"ErrorMessage"`
}

// Error returns an *Error if the Alpaca response indicates failure.
func (r *alpacaResponse) Error() error {
	if r.ErrorNumber != 0 {
		return &Error{Number: r.ErrorNumber, Message: r.ErrorMessage}
	}
	return nil
}
