package activity

import (
	"context"
	"errors"
	"fmt"
)

// FinalStatus drains r until the channel closes or a terminal status
// arrives and returns the last event observed. A channel that closes
// without ever producing an event yields ErrNoStatus.
func FinalStatus(ctx context.Context, r *Reader) (Event, error) {
	var (
		last Event
		seen bool
	)
	for {
		ev, err := r.Next(ctx)
		if errors.Is(err, ErrChannelClosed) {
			if !seen {
				return Event{}, ErrNoStatus
			}
			return last, nil
		}
		if err != nil {
			return last, err
		}
		last, seen = ev, true
		if ev.Status.Terminal() {
			return ev, nil
		}
	}
}

// WaitMilestone reads r until an event tagged m arrives and returns it,
// leaving the producer and any later events untouched. If the channel
// ends first the last event is returned with ErrMilestoneMissed.
func WaitMilestone(ctx context.Context, r *Reader, m Milestone) (Event, error) {
	var (
		last Event
		seen bool
	)
	for {
		ev, err := r.Next(ctx)
		if errors.Is(err, ErrChannelClosed) {
			if !seen {
				return Event{}, ErrNoStatus
			}
			return last, fmt.Errorf("%w: %s (channel closed)", ErrMilestoneMissed, m)
		}
		if err != nil {
			return last, err
		}
		last, seen = ev, true
		if ev.Milestone == m {
			return ev, nil
		}
		if ev.Status.Terminal() {
			return ev, fmt.Errorf("%w: %s (activity %s)", ErrMilestoneMissed, m, ev.Status)
		}
	}
}
