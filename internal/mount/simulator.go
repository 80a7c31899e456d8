package mount

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// Simulator is an in-process mount used with --simulate and in tests.
// Motions take a fixed time and faults can be injected per operation.
type Simulator struct {
	SlewTime time.Duration
	StepTime time.Duration

	mu       sync.Mutex
	pos      coordinates.EquatorialCoordinates
	tracking bool
	faults   map[string]error
	ops      []string
	busy     int
	overlap  bool
}

var _ Driver = (*Simulator)(nil)

// NewSimulator returns a simulator parked at RA 0h Dec +90°.
func NewSimulator(slewTime time.Duration) *Simulator {
	return &Simulator{
		SlewTime: slewTime,
		StepTime: slewTime / 4,
		pos:      coordinates.EquatorialCoordinates{Declination: 90},
		faults:   map[string]error{},
	}
}

// FailNext makes the next call of op ("slew", "sync", "step", "track") fail with err.
func (s *Simulator) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// Ops returns the operations performed so far, e.g. "slew RA 10.000000h Dec +20.000000°".
func (s *Simulator) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// Overlapped reports whether two operations ever ran at the same time.
func (s *Simulator) Overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlap
}

// Position returns where the simulated mount points.
func (s *Simulator) Position() coordinates.EquatorialCoordinates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Tracking reports whether sidereal tracking is on.
func (s *Simulator) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

func (s *Simulator) Slew(ctx context.Context, coord coordinates.EquatorialCoordinates) error {
	if err := s.begin("slew", coord.String()); err != nil {
		return err
	}
	defer s.end()

	if err := s.wait(ctx, s.SlewTime); err != nil {
		return err
	}
	s.mu.Lock()
	s.pos = coord
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Sync(ctx context.Context, coord coordinates.EquatorialCoordinates) error {
	if err := s.begin("sync", coord.String()); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	s.pos = coord
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Step(ctx context.Context, bearingSteps, decSteps int) error {
	if err := s.begin("step", fmt.Sprintf("bearing=%d dec=%d", bearingSteps, decSteps)); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	s.tracking = false
	s.mu.Unlock()
	return s.wait(ctx, s.StepTime)
}

func (s *Simulator) StartTracking(ctx context.Context) error {
	if err := s.begin("track", ""); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	s.tracking = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) begin(op, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	if s.busy > 0 {
		s.overlap = true
	}
	s.busy++
	if detail != "" {
		op += " " + detail
	}
	s.ops = append(s.ops, op)
	return nil
}

func (s *Simulator) end() {
	s.mu.Lock()
	s.busy--
	s.mu.Unlock()
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
