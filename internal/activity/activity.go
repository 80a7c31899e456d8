// Package activity models the lifecycle of one command issued to the mount
// and the ordered stream of status events it produces.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unklstewy/skytrack/internal/target"
)

// Kind is the command an activity executes.
type Kind int

const (
	Calibrate Kind = iota
	CalibrateRelSteps
	Track
)

func (k Kind) String() string {
	switch k {
	case Calibrate:
		return "CALIBRATE"
	case CalibrateRelSteps:
		return "CALIBRATE_REL_STEPS"
	case Track:
		return "TRACK"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// milestoneOrder lists the milestones each kind may emit, in order.
var milestoneOrder = map[Kind][]Milestone{
	Calibrate:         {MilestoneSlewComplete, MilestoneSynced},
	CalibrateRelSteps: nil,
	Track:             {MilestoneSlewComplete},
}

// Steps is the relative motor adjustment of a CALIBRATE_REL_STEPS command.
type Steps struct {
	Bearing int `json:"bearing"`
	Dec     int `json:"dec"`
}

// Observer is notified of every event an activity emits, after it has been
// appended to the channel. It runs while the activity is locked, so
// implementations must not block or call methods on a.
type Observer interface {
	ActivityEvent(a *Activity, ev Event)
}

// Activity is one issued command. Its lifecycle is
// PENDING -> RUNNING -> COMPLETE|ABORTED, or PENDING -> ABORTED, and it emits
// exactly one terminal event. Only the mount actor drives the transitions;
// everyone else observes through the channel.
type Activity struct {
	ID      uint64
	Kind    Kind
	Target  target.Target // nil for CALIBRATE_REL_STEPS
	Steps   Steps
	Created time.Time

	ch       *Channel
	observer Observer

	mu            sync.Mutex
	status        Status
	lastMilestone int // index into milestoneOrder, -1 when none
	err           error
}

// New creates an activity and emits its PENDING event. steps is only
// meaningful for CALIBRATE_REL_STEPS.
func New(id uint64, kind Kind, t target.Target, steps Steps, obs Observer) *Activity {
	a := &Activity{
		ID:            id,
		Kind:          kind,
		Target:        t,
		Steps:         steps,
		Created:       time.Now(),
		ch:            NewChannel(DefaultHistory),
		observer:      obs,
		status:        Pending,
		lastMilestone: -1,
	}
	a.publish(Event{Status: Pending})
	return a
}

// Channel returns the activity's status stream.
func (a *Activity) Channel() *Channel {
	return a.ch
}

// Status returns the current lifecycle state.
func (a *Activity) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err returns the failure reason of an ABORTED activity.
func (a *Activity) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Start moves a PENDING activity to RUNNING.
func (a *Activity) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != Pending {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, a.status)
	}
	a.status = Running
	a.publish(Event{Status: Running})
	return nil
}

// Reach emits milestone m. Milestones are only valid while RUNNING, at most
// once each and in the order defined for the activity's kind.
func (a *Activity) Reach(m Milestone) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != Running {
		return fmt.Errorf("%w: milestone %s while %s", ErrInvalidTransition, m, a.status)
	}
	idx := -1
	for i, allowed := range milestoneOrder[a.Kind] {
		if allowed == m {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: milestone %s not defined for %s", ErrInvalidTransition, m, a.Kind)
	}
	if idx <= a.lastMilestone {
		return fmt.Errorf("%w: milestone %s out of order", ErrInvalidTransition, m)
	}
	a.lastMilestone = idx
	a.publish(Event{Status: Running, Milestone: m})
	return nil
}

// Progress emits a RUNNING event carrying a note.
func (a *Activity) Progress(note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != Running {
		return fmt.Errorf("%w: progress while %s", ErrInvalidTransition, a.status)
	}
	a.publish(Event{Status: Running, Note: note})
	return nil
}

// Complete finishes a RUNNING activity successfully.
func (a *Activity) Complete() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != Running {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, a.status)
	}
	a.status = Complete
	a.publish(Event{Status: Complete})
	return nil
}

// Abort terminates a PENDING or RUNNING activity with reason err.
// It reports false if the activity was already terminal.
func (a *Activity) Abort(err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.Terminal() {
		return false
	}
	a.status = Aborted
	a.err = err
	a.publish(Event{Status: Aborted, Err: err})
	return true
}

// FinalStatus drains a fresh reader of the activity's channel.
func (a *Activity) FinalStatus(ctx context.Context) (Event, error) {
	return FinalStatus(ctx, a.ch.Reader())
}

// WaitMilestone waits on a fresh reader of the activity's channel.
func (a *Activity) WaitMilestone(ctx context.Context, m Milestone) (Event, error) {
	return WaitMilestone(ctx, a.ch.Reader(), m)
}

// publish must be called with a.mu held so events are appended in
// transition order.
func (a *Activity) publish(ev Event) {
	ev, ok := a.ch.emit(ev)
	if ok && a.observer != nil {
		a.observer.ActivityEvent(a, ev)
	}
}

func (a *Activity) String() string {
	if a.Target != nil {
		return fmt.Sprintf("#%d %s %s", a.ID, a.Kind, a.Target)
	}
	if a.Kind == CalibrateRelSteps {
		return fmt.Sprintf("#%d %s bearing=%d dec=%d", a.ID, a.Kind, a.Steps.Bearing, a.Steps.Dec)
	}
	return fmt.Sprintf("#%d %s", a.ID, a.Kind)
}
