package mount

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/skytrack/pkg/alpaca"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// alpacaDevice is a fake Alpaca telescope that reports slewing for a
// fixed number of polls after each slew request.
type alpacaDevice struct {
	mu         sync.Mutex
	puts       []string
	slewPolls  int
	remaining  int
	refuseSync bool
}

func (d *alpacaDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodPut {
		_ = r.ParseForm()
		d.puts = append(d.puts, name+" "+r.PostForm.Get("Axis")+" "+r.PostForm.Get("Rate"))
		switch name {
		case "slewtocoordinatesasync":
			d.remaining = d.slewPolls
		case "synctocoordinates":
			if d.refuseSync {
				fmt.Fprint(w, `{"ErrorNumber":1035,"ErrorMessage":"sync refused"}`)
				return
			}
		}
		fmt.Fprint(w, `{"ErrorNumber":0}`)
		return
	}

	if name == "slewing" {
		slewing := d.remaining > 0
		if slewing {
			d.remaining--
		}
		fmt.Fprintf(w, `{"Value":%t,"ErrorNumber":0}`, slewing)
		return
	}
	fmt.Fprint(w, `{"Value":true,"ErrorNumber":0}`)
}

func (d *alpacaDevice) calls(prefix string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, p := range d.puts {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func newTestAlpacaDriver(t *testing.T, dev *alpacaDevice) *AlpacaDriver {
	t.Helper()
	server := httptest.NewServer(dev)
	t.Cleanup(server.Close)

	cfg := config.TelescopeConfig{
		BaseURL:            server.URL,
		StepsPerDegree:     100,
		GuideRate:          1,
		PollIntervalMillis: 5,
	}
	client := alpaca.NewClient(cfg)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return NewAlpacaDriver(client, cfg)
}

// TestAlpacaDriverSlew tests that Slew polls until the device stops.
func TestAlpacaDriverSlew(t *testing.T) {
	dev := &alpacaDevice{slewPolls: 3}
	d := newTestAlpacaDriver(t, dev)

	err := d.Slew(context.Background(), coordinates.EquatorialCoordinates{RightAscension: 5.5, Declination: 22})
	if err != nil {
		t.Fatalf("Slew failed: %v", err)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.remaining != 0 {
		t.Errorf("Slew returned with %d polls outstanding", dev.remaining)
	}
}

// TestAlpacaDriverSlewCancelled tests that a cancelled slew is aborted on the device.
func TestAlpacaDriverSlewCancelled(t *testing.T) {
	dev := &alpacaDevice{slewPolls: 1 << 20}
	d := newTestAlpacaDriver(t, dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := d.Slew(ctx, coordinates.EquatorialCoordinates{RightAscension: 1, Declination: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline error, got %v", err)
	}
	if len(dev.calls("abortslew")) != 1 {
		t.Errorf("Expected one abortslew, got %v", dev.calls("abortslew"))
	}
}

// TestAlpacaDriverStep tests that steps become timed axis moves that are always stopped.
func TestAlpacaDriverStep(t *testing.T) {
	dev := &alpacaDevice{}
	d := newTestAlpacaDriver(t, dev)

	if err := d.Step(context.Background(), 2, -3); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	want := []string{
		"moveaxis 0 1.000000",
		"moveaxis 0 0.000000",
		"moveaxis 1 -1.000000",
		"moveaxis 1 0.000000",
	}
	got := dev.calls("moveaxis")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("moveaxis calls = %v, want %v", got, want)
	}
}

// TestAlpacaDriverSyncError tests that device errors are surfaced.
func TestAlpacaDriverSyncError(t *testing.T) {
	dev := &alpacaDevice{refuseSync: true}
	d := newTestAlpacaDriver(t, dev)

	err := d.Sync(context.Background(), coordinates.EquatorialCoordinates{RightAscension: 1, Declination: 1})
	var aerr *alpaca.Error
	if !errors.As(err, &aerr) || aerr.Number != 1035 {
		t.Errorf("Expected alpaca error 1035, got %v", err)
	}
}
