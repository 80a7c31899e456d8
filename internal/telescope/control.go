// Package telescope is the public entry point for commanding the mount.
package telescope

import (
	"github.com/unklstewy/skytrack/internal/activity"
	"github.com/unklstewy/skytrack/internal/mount"
	"github.com/unklstewy/skytrack/internal/target"
)

// Control submits commands to the mount actor. Every method returns as
// soon as the command is queued; progress is observed on the returned
// activity's channel.
type Control struct {
	actor *mount.Actor
}

// New creates a facade over actor.
func New(actor *mount.Actor) *Control {
	return &Control{actor: actor}
}

// Calibrate slews to t and syncs the mount there.
func (c *Control) Calibrate(t target.Target) *activity.Activity {
	return c.actor.Submit(mount.Calibrate(t))
}

// CalibrateRelSteps nudges the mount by relative motor steps.
func (c *Control) CalibrateRelSteps(bearing, dec int) *activity.Activity {
	return c.actor.Submit(mount.CalibrateRelSteps(bearing, dec))
}

// Track slews to t and keeps tracking it until superseded or cancelled.
func (c *Control) Track(t target.Target) *activity.Activity {
	return c.actor.Submit(mount.Track(t))
}

// CurrentTarget is the target of the tracking activity in force, or nil.
func (c *Control) CurrentTarget() target.Target {
	return c.actor.CurrentTarget()
}

// Bump applies a relative correction. When resume is set and a target is
// being tracked (or a TRACK is queued), tracking of that target is
// re-issued right behind the bump, before anyone waits on the bump, so the
// mount goes straight back to tracking. resumed is nil when nothing was
// re-issued.
//
// A failed bump does not cancel the resumed track.
func (c *Control) Bump(bearing, dec int, resume bool) (bump, resumed *activity.Activity) {
	current := c.actor.ResumeTarget()
	bump = c.CalibrateRelSteps(bearing, dec)
	if resume && current != nil {
		resumed = c.Track(current)
	}
	return bump, resumed
}

// Cancel aborts a pending or running activity.
func (c *Control) Cancel(id uint64) (*activity.Activity, error) {
	return c.actor.Cancel(id)
}

// Activity looks up a recent activity by ID.
func (c *Control) Activity(id uint64) (*activity.Activity, bool) {
	return c.actor.Get(id)
}

// Activities returns up to limit recent activities, newest first.
func (c *Control) Activities(limit int) []*activity.Activity {
	return c.actor.List(limit)
}
