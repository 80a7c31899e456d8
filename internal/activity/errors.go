package activity

import "errors"

var (
	// ErrSuperseded is the failure reason of a tracking activity replaced by
	// a later command. It is an expected outcome, not a fault.
	ErrSuperseded = errors.New("superseded by a later command")

	// ErrCancelled is the failure reason of an explicitly cancelled activity.
	ErrCancelled = errors.New("cancelled")

	// ErrNoStatus means a channel closed without producing any event.
	ErrNoStatus = errors.New("no status produced")

	// ErrMilestoneMissed means the activity ended before the awaited milestone.
	ErrMilestoneMissed = errors.New("milestone not reached")

	// ErrChannelClosed is returned by Reader.Next after the last event.
	ErrChannelClosed = errors.New("status channel closed")

	// ErrInvalidTransition rejects an event that the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid activity transition")
)
