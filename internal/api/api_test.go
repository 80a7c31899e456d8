package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/skytrack/internal/activity"
	"github.com/unklstewy/skytrack/internal/auth"
	"github.com/unklstewy/skytrack/internal/history"
	"github.com/unklstewy/skytrack/internal/mount"
	"github.com/unklstewy/skytrack/internal/target"
	"github.com/unklstewy/skytrack/internal/telescope"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/coordinates"
	"github.com/unklstewy/skytrack/pkg/resolver"
)

// catalog is a fake name resolver that knows a single object.
type catalog struct{}

func (catalog) ResolveName(ctx context.Context, name string) (coordinates.EquatorialCoordinates, error) {
	if name == "M31" {
		return coordinates.FromDegrees(10.684708, 41.26875), nil
	}
	return coordinates.EquatorialCoordinates{}, &resolver.NotFoundError{Service: "catalog", Name: name}
}

type testEnv struct {
	server *httptest.Server
	sim    *mount.Simulator
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	sim := mount.NewSimulator(5 * time.Millisecond)
	actor := mount.NewActor(sim, mount.Options{
		Services: target.Services{
			Names:     catalog{},
			Ephemeris: resolver.Ephemeris{},
			Timeout:   time.Second,
		},
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		actor.Run(ctx)
	}()

	opts.Logger = zerolog.Nop()
	srv := httptest.NewServer(NewServer(telescope.New(actor), opts))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testEnv{server: srv, sim: sim}
}

// do issues a request and decodes the JSON body into out (if non-nil).
func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// TestCalibrate tests calibration endpoints and their error mapping.
func TestCalibrate(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantKind   string
	}{
		{name: "Fixed decimal degrees", path: "/api/v1/calibrate?ra=150&dec=20", wantStatus: http.StatusOK},
		{name: "Fixed sexagesimal with trailing slash", path: "/api/v1/calibrate/?ra=10:00:00&dec=%2B20:00:00", wantStatus: http.StatusOK},
		{name: "Missing dec", path: "/api/v1/calibrate?ra=150", wantStatus: http.StatusBadRequest, wantKind: "invalid_input"},
		{name: "Bad RA", path: "/api/v1/calibrate?ra=abc&dec=20", wantStatus: http.StatusBadRequest, wantKind: "invalid_input"},
		{name: "Known name", path: "/api/v1/calibrate/by_name?name=M31", wantStatus: http.StatusOK},
		{name: "Unknown name", path: "/api/v1/calibrate/by_name?name=Nowhere", wantStatus: http.StatusNotFound, wantKind: "not_found"},
		{name: "Missing name", path: "/api/v1/calibrate/by_name", wantStatus: http.StatusBadRequest, wantKind: "invalid_input"},
		{name: "Planet", path: "/api/v1/calibrate/solar_system_object?name=jupiter", wantStatus: http.StatusOK},
		{name: "Unknown body", path: "/api/v1/calibrate/solar_system_object?name=vulcan", wantStatus: http.StatusNotFound, wantKind: "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]json.RawMessage
			status := env.do(t, http.MethodPost, tt.path, "", nil, &body)
			if status != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.wantStatus, status, body["error"])
			}
			if tt.wantKind != "" {
				var kind string
				json.Unmarshal(body["kind"], &kind)
				if kind != tt.wantKind {
					t.Errorf("Expected kind %q, got %q", tt.wantKind, kind)
				}
				return
			}

			var act activityResponse
			if err := json.Unmarshal(body["activity"], &act); err != nil {
				t.Fatalf("Missing activity in response: %v", err)
			}
			if act.Kind != "CALIBRATE" || act.Status != "COMPLETE" {
				t.Errorf("Expected completed CALIBRATE, got %+v", act)
			}
			if act.Milestone != string(activity.MilestoneSynced) {
				t.Errorf("Expected last milestone synced, got %q", act.Milestone)
			}
		})
	}
}

// TestCalibrateMotorFault verifies hardware failures map to 502.
func TestCalibrateMotorFault(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.sim.FailNext("sync", errors.New("encoder stalled"))

	var body errorResponse
	status := env.do(t, http.MethodPost, "/api/v1/calibrate?ra=150&dec=20", "", nil, &body)
	if status != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", status)
	}
	if body.Kind != "motor_fault" || !strings.Contains(body.Error, "encoder stalled") {
		t.Errorf("Unexpected error body %+v", body)
	}
	if body.Activity == nil || body.Activity.Status != "ABORTED" {
		t.Errorf("Expected aborted activity in error body, got %+v", body.Activity)
	}
}

// TestGoto tests tracking with and without waiting for the slew.
func TestGoto(t *testing.T) {
	env := newTestEnv(t, Options{})

	t.Run("Accepted without wait", func(t *testing.T) {
		var resp commandResponse
		status := env.do(t, http.MethodPost, "/api/v1/goto/by_name?name=M31", "", nil, &resp)
		if status != http.StatusAccepted {
			t.Fatalf("Expected 202, got %d", status)
		}
		if resp.Activity.Kind != "TRACK" || resp.Activity.Variant != "named" {
			t.Errorf("Unexpected activity %+v", resp.Activity)
		}
	})

	t.Run("Wait for slew", func(t *testing.T) {
		var resp commandResponse
		status := env.do(t, http.MethodPost, "/api/v1/goto?ra=83.8&dec=-5.4&wait=slew", "", nil, &resp)
		if status != http.StatusOK {
			t.Fatalf("Expected 200, got %d", status)
		}
		if resp.Activity.Status != "RUNNING" || resp.Activity.Milestone != string(activity.MilestoneSlewComplete) {
			t.Errorf("Expected (RUNNING, slew-complete), got %+v", resp.Activity)
		}

		var current map[string]interface{}
		env.do(t, http.MethodGet, "/api/v1/telescope/target", "", nil, &current)
		if current["tracking"] != true || current["variant"] != "fixed" {
			t.Errorf("Unexpected current target %v", current)
		}
	})

	t.Run("Wait for slew that fails", func(t *testing.T) {
		env.sim.FailNext("slew", errors.New("limit switch"))
		var body errorResponse
		status := env.do(t, http.MethodPost, "/api/v1/goto/solar_system_object?name=mars&wait=slew", "", nil, &body)
		if status != http.StatusBadGateway || body.Kind != "motor_fault" {
			t.Errorf("Expected 502 motor_fault, got %d %+v", status, body)
		}
	})

	t.Run("Bad wait", func(t *testing.T) {
		status := env.do(t, http.MethodPost, "/api/v1/goto/mpc?name=Ceres&wait=forever", "", nil, nil)
		if status != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", status)
		}
	})
}

// TestSupersededActivityVisible checks a replaced track reports supersession.
func TestSupersededActivityVisible(t *testing.T) {
	env := newTestEnv(t, Options{})

	var first commandResponse
	env.do(t, http.MethodPost, "/api/v1/goto?ra=10&dec=20&wait=slew", "", nil, &first)
	env.do(t, http.MethodPost, "/api/v1/goto?ra=30&dec=-5&wait=slew", "", nil, nil)

	var act activityResponse
	status := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/activities/%d", first.Activity.ID), "", nil, &act)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if act.Status != "ABORTED" || act.Error != activity.ErrSuperseded.Error() {
		t.Errorf("Expected superseded abort, got %+v", act)
	}
	if len(act.Events) == 0 || act.Events[len(act.Events)-1].Status != "ABORTED" {
		t.Errorf("Expected event history ending in ABORTED, got %+v", act.Events)
	}

	var list []activityResponse
	env.do(t, http.MethodGet, "/api/v1/activities?limit=1", "", nil, &list)
	if len(list) != 1 || list[0].ID != first.Activity.ID+1 {
		t.Errorf("Expected newest activity first, got %+v", list)
	}
}

// TestBump tests the bump endpoint resuming the current target.
func TestBump(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodPost, "/api/v1/goto?ra=10&dec=20&wait=slew", "", nil, nil)

	var resp commandResponse
	status := env.do(t, http.MethodPost, "/api/v1/calibrate/bump?bearing=12&dec=-3", "", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if resp.Activity.Kind != "CALIBRATE_REL_STEPS" || resp.Activity.Status != "COMPLETE" {
		t.Errorf("Unexpected bump activity %+v", resp.Activity)
	}
	if resp.Activity.Steps == nil || resp.Activity.Steps.Bearing != 12 || resp.Activity.Steps.Dec != -3 {
		t.Errorf("Unexpected steps %+v", resp.Activity.Steps)
	}
	if resp.Resumed == nil || resp.Resumed.Kind != "TRACK" || resp.Resumed.ID != resp.Activity.ID+1 {
		t.Errorf("Expected resumed TRACK right after the bump, got %+v", resp.Resumed)
	}

	t.Run("Without sync", func(t *testing.T) {
		var resp commandResponse
		env.do(t, http.MethodPost, "/api/v1/calibrate/bump?bearing=1&sync=false", "", nil, &resp)
		if resp.Resumed != nil {
			t.Errorf("Expected no resumed track, got %+v", resp.Resumed)
		}
	})

	t.Run("Invalid steps", func(t *testing.T) {
		if status := env.do(t, http.MethodPost, "/api/v1/calibrate/bump?bearing=lots", "", nil, nil); status != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", status)
		}
		if status := env.do(t, http.MethodPost, "/api/v1/calibrate/bump?sync=maybe", "", nil, nil); status != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", status)
		}
	})
}

// TestCancel tests explicit cancellation of a tracking activity.
func TestCancel(t *testing.T) {
	env := newTestEnv(t, Options{})

	var track commandResponse
	env.do(t, http.MethodPost, "/api/v1/goto?ra=10&dec=20&wait=slew", "", nil, &track)

	path := fmt.Sprintf("/api/v1/activities/%d/cancel", track.Activity.ID)
	var resp commandResponse
	if status := env.do(t, http.MethodPost, path, "", nil, &resp); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if resp.Activity.Status != "ABORTED" {
		t.Errorf("Expected ABORTED, got %+v", resp.Activity)
	}

	var body errorResponse
	if status := env.do(t, http.MethodPost, path, "", nil, &body); status != http.StatusConflict || body.Kind != "not_active" {
		t.Errorf("Expected 409 not_active on second cancel, got %d %+v", status, body)
	}
	if status := env.do(t, http.MethodPost, "/api/v1/activities/999/cancel", "", nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown activity, got %d", status)
	}
	if status := env.do(t, http.MethodGet, "/api/v1/activities/abc", "", nil, nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", status)
	}
}

// TestAuth tests token issuance and role enforcement.
func TestAuth(t *testing.T) {
	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		return string(h)
	}
	svc := auth.NewService(auth.Config{
		JWTSecret:  "test-secret",
		BCryptCost: bcrypt.MinCost,
		Users: []config.UserConfig{
			{Username: "obs", PasswordHash: hash("pw1"), Role: auth.RoleObserver},
			{Username: "view", PasswordHash: hash("pw2"), Role: auth.RoleViewer},
		},
	})
	env := newTestEnv(t, Options{Auth: svc})

	login := func(user, pw string) (int, string) {
		var resp map[string]interface{}
		body := strings.NewReader(fmt.Sprintf(`{"username":%q,"password":%q}`, user, pw))
		status := env.do(t, http.MethodPost, "/api/v1/auth/token", "", body, &resp)
		token, _ := resp["token"].(string)
		return status, token
	}

	if status, _ := login("obs", "wrong"); status != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", status)
	}
	_, observerToken := login("obs", "pw1")
	_, viewerToken := login("view", "pw2")
	if observerToken == "" || viewerToken == "" {
		t.Fatal("Expected tokens for valid logins")
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "Health is public", method: http.MethodGet, path: "/api/v1/health", want: http.StatusOK},
		{name: "No token", method: http.MethodGet, path: "/api/v1/activities", want: http.StatusUnauthorized},
		{name: "Garbage token", method: http.MethodGet, path: "/api/v1/activities", token: "junk", want: http.StatusUnauthorized},
		{name: "Viewer reads", method: http.MethodGet, path: "/api/v1/activities", token: viewerToken, want: http.StatusOK},
		{name: "Viewer cannot command", method: http.MethodPost, path: "/api/v1/goto?ra=10&dec=20", token: viewerToken, want: http.StatusForbidden},
		{name: "Observer commands", method: http.MethodPost, path: "/api/v1/goto?ra=10&dec=20", token: observerToken, want: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := env.do(t, tt.method, tt.path, tt.token, nil, nil); status != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, status)
			}
		})
	}
}

// TestTokenWithoutAuth verifies token issuance is unavailable when auth is off.
func TestTokenWithoutAuth(t *testing.T) {
	env := newTestEnv(t, Options{})
	if status := env.do(t, http.MethodPost, "/api/v1/auth/token", "", strings.NewReader("{}"), nil); status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}
}

// TestHistory tests the stored history endpoint.
func TestHistory(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		if status := env.do(t, http.MethodGet, "/api/v1/history", "", nil, nil); status != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", status)
		}
	})

	t.Run("Enabled", func(t *testing.T) {
		store, err := history.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()
		if err := store.InitSchema(context.Background()); err != nil {
			t.Fatalf("InitSchema failed: %v", err)
		}
		store.Insert(context.Background(), history.Record{Session: "s", ActivityID: 1, Kind: "TRACK", Status: "PENDING", Time: time.Now()})

		env := newTestEnv(t, Options{History: store})

		var records []history.Record
		if status := env.do(t, http.MethodGet, "/api/v1/history?limit=5", "", nil, &records); status != http.StatusOK {
			t.Fatalf("Expected 200, got %d", status)
		}
		if len(records) != 1 || records[0].Kind != "TRACK" {
			t.Errorf("Unexpected records %+v", records)
		}

		var health map[string]interface{}
		env.do(t, http.MethodGet, "/api/v1/health", "", nil, &health)
		if health["history"] != "ok" {
			t.Errorf("Expected healthy history, got %v", health)
		}
	})
}

// TestMetricsEndpoint checks activity counters are exported.
func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodPost, "/api/v1/calibrate?ra=150&dec=20", "", nil, nil)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "skytrack_activities_total") {
		t.Error("Expected skytrack_activities_total in metrics output")
	}
}

// TestClassifyError tests the error taxonomy mapping.
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"Not found", &target.ResolutionError{Kind: target.NotFound}, http.StatusNotFound, "not_found"},
		{"Invalid input", &target.ResolutionError{Kind: target.InvalidInput}, http.StatusBadRequest, "invalid_input"},
		{"Timeout", &target.ResolutionError{Kind: target.Timeout}, http.StatusGatewayTimeout, "timeout"},
		{"Service unavailable", &target.ResolutionError{Kind: target.ServiceUnavailable}, http.StatusServiceUnavailable, "service_unavailable"},
		{"Motor fault", fmt.Errorf("wrapped: %w", &mount.MotorFault{Op: "slew", Err: errors.New("x")}), http.StatusBadGateway, "motor_fault"},
		{"Superseded", activity.ErrSuperseded, http.StatusConflict, "superseded"},
		{"Cancelled", activity.ErrCancelled, http.StatusConflict, "cancelled"},
		{"No status", activity.ErrNoStatus, http.StatusInternalServerError, "no_status"},
		{"Stopped", mount.ErrStopped, http.StatusServiceUnavailable, "stopped"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := classifyError(tt.err)
			if status != tt.wantStatus || kind != tt.wantKind {
				t.Errorf("classifyError = (%d, %s), want (%d, %s)", status, kind, tt.wantStatus, tt.wantKind)
			}
		})
	}
}
