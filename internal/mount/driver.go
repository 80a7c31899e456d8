// Package mount owns the physical telescope mount. A single Actor serializes
// every command against the Driver and reports progress through activities.
package mount

import (
	"context"
	"errors"
	"fmt"

	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// Driver moves the physical mount. Only the Actor calls it, and never
// concurrently. Every blocking call must return promptly once ctx is done.
type Driver interface {
	// Slew points the mount at coord and returns once it has arrived.
	Slew(ctx context.Context, coord coordinates.EquatorialCoordinates) error

	// Sync tells the mount it is pointing at coord.
	Sync(ctx context.Context, coord coordinates.EquatorialCoordinates) error

	// Step moves each axis by a relative number of motor steps.
	Step(ctx context.Context, bearingSteps, decSteps int) error

	// StartTracking enables sidereal tracking at the current position.
	StartTracking(ctx context.Context) error
}

// MotorFault is a hardware-level failure while executing a command.
type MotorFault struct {
	Op  string
	Err error
}

func (f *MotorFault) Error() string {
	return fmt.Sprintf("motor fault during %s: %v", f.Op, f.Err)
}

func (f *MotorFault) Unwrap() error {
	return f.Err
}

// fault wraps a driver error as a MotorFault unless it already is one.
func fault(op string, err error) error {
	var mf *MotorFault
	if errors.As(err, &mf) {
		return err
	}
	return &MotorFault{Op: op, Err: err}
}

var (
	// ErrStopped aborts activities still pending or holding when the actor shuts down.
	ErrStopped = errors.New("mount actor stopped")

	// ErrUnknownActivity is returned for IDs the actor does not remember.
	ErrUnknownActivity = errors.New("unknown activity")

	// ErrNotActive is returned when cancelling an activity that already ended.
	ErrNotActive = errors.New("activity already finished")
)
