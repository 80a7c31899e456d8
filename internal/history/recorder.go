package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unklstewy/skytrack/internal/activity"
)

// Recorder stores activity events in the background. It is an
// activity.Observer; ActivityEvent never blocks, and events arriving while
// the buffer is full are dropped and counted.
type Recorder struct {
	store   *Store
	session string
	events  chan Record
	log     zerolog.Logger
	dropped atomic.Uint64
}

// NewRecorder creates a recorder with room for buffer pending events.
// Each recorder gets a fresh session ID.
func NewRecorder(store *Store, buffer int, log zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Recorder{
		store:   store,
		session: uuid.NewString(),
		events:  make(chan Record, buffer),
		log:     log.With().Str("component", "history").Logger(),
	}
}

// Session returns the ID stamped on every record from this recorder.
func (r *Recorder) Session() string { return r.session }

// Dropped returns how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// ActivityEvent queues ev for storage.
func (r *Recorder) ActivityEvent(a *activity.Activity, ev activity.Event) {
	rec := Record{
		Session:    r.session,
		ActivityID: a.ID,
		Seq:        ev.Seq,
		Kind:       a.Kind.String(),
		Status:     ev.Status.String(),
		Milestone:  string(ev.Milestone),
		Note:       ev.Note,
		Time:       ev.Time,
	}
	if a.Target != nil {
		rec.Target = a.Target.String()
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}

	select {
	case r.events <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued events until ctx is done, then flushes whatever is
// still buffered.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case rec := <-r.events:
			r.write(ctx, rec)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-r.events:
			r.write(ctx, rec)
		default:
			if n := r.Dropped(); n > 0 {
				r.log.Warn().Uint64("dropped", n).Msg("History events dropped")
			}
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	if err := r.store.Insert(ctx, rec); err != nil {
		r.log.Error().Err(err).Uint64("activity", rec.ActivityID).Int("seq", rec.Seq).Msg("Failed to record activity event")
	}
}
