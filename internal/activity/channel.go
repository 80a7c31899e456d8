package activity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultHistory is the number of events a channel retains for readers.
const DefaultHistory = 256

// Channel is the ordered status stream of one activity. It has a single
// producer that never blocks: events are appended to a bounded history and
// readers follow it at their own pace through independent cursors. When the
// history is full the oldest plain event is dropped. Milestones and the
// terminal event are always retained, so a late reader still sees them; a
// reader that fell behind skips to the next retained event.
type Channel struct {
	mu     sync.Mutex
	events []Event // ascending Seq, possibly with gaps
	next   int     // Seq of the next event
	limit  int
	closed bool
	wake   chan struct{}
}

// NewChannel creates a channel retaining at most limit events.
func NewChannel(limit int) *Channel {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Channel{
		limit: limit,
		wake:  make(chan struct{}),
	}
}

// emit appends an event and wakes all waiting readers. It returns false if
// the channel was already closed. A terminal status closes the channel.
func (c *Channel) emit(ev Event) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Event{}, false
	}

	ev.Seq = c.next
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.next++
	c.events = append(c.events, ev)
	if len(c.events) > c.limit {
		c.evict()
	}
	if ev.Status.Terminal() {
		c.closed = true
	}

	close(c.wake)
	c.wake = make(chan struct{})
	return ev, true
}

// evict drops the oldest event that carries neither a milestone nor a
// terminal status. Milestones are bounded per kind, so this always finds
// one once the limit exceeds that bound.
func (c *Channel) evict() {
	for i, ev := range c.events {
		if ev.Milestone != "" || ev.Status.Terminal() {
			continue
		}
		copy(c.events[i:], c.events[i+1:])
		c.events[len(c.events)-1] = Event{}
		c.events = c.events[:len(c.events)-1]
		return
	}
}

// Close ends the stream without a terminal event.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.wake)
	c.wake = make(chan struct{})
}

// Closed reports whether the producer is done.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Last returns the most recent event, if any.
func (c *Channel) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	return c.events[len(c.events)-1], true
}

// Events returns a copy of the retained history.
func (c *Channel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reader returns a new cursor positioned at the oldest retained event.
func (c *Channel) Reader() *Reader {
	return &Reader{c: c}
}

// Reader is one consumer's position in a Channel. A Reader must not be
// shared between goroutines; create one per consumer instead.
type Reader struct {
	c    *Channel
	next int
}

// Next blocks until the next event is available and returns it. It
// returns ErrChannelClosed once the channel is closed and every retained
// event has been read, or the context error if ctx ends first.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	for {
		r.c.mu.Lock()
		events := r.c.events
		i := sort.Search(len(events), func(k int) bool { return events[k].Seq >= r.next })
		if i < len(events) {
			ev := events[i]
			r.next = ev.Seq + 1
			r.c.mu.Unlock()
			return ev, nil
		}
		if r.c.closed {
			r.c.mu.Unlock()
			return Event{}, ErrChannelClosed
		}
		wake := r.c.wake
		r.c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
