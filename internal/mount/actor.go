package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/skytrack/internal/activity"
	"github.com/unklstewy/skytrack/internal/target"
	"github.com/unklstewy/skytrack/pkg/coordinates"
)

// Command is a request for the mount.
type Command struct {
	Kind   activity.Kind
	Target target.Target
	Steps  activity.Steps
}

// Calibrate slews to t and syncs the mount's pointing model there.
func Calibrate(t target.Target) Command {
	return Command{Kind: activity.Calibrate, Target: t}
}

// CalibrateRelSteps nudges the axes by a relative number of motor steps.
func CalibrateRelSteps(bearing, dec int) Command {
	return Command{Kind: activity.CalibrateRelSteps, Steps: activity.Steps{Bearing: bearing, Dec: dec}}
}

// Track slews to t and holds on it until superseded or cancelled.
func Track(t target.Target) Command {
	return Command{Kind: activity.Track, Target: t}
}

// Options configures an Actor.
type Options struct {
	// Services resolves targets.
	Services target.Services

	// Observer receives every activity event (e.g. the history recorder).
	Observer activity.Observer

	Logger zerolog.Logger

	// SlewTimeout bounds each slew; exceeding it is a motor fault (0 = none).
	SlewTimeout time.Duration

	// RefreshInterval is how often time-varying targets are re-resolved
	// while tracking (0 = never).
	RefreshInterval time.Duration

	// RepointTolerance is the drift in degrees that triggers a re-point.
	RepointTolerance float64

	// HistoryLimit is how many activities are remembered for lookup.
	HistoryLimit int
}

// Actor is the only component that moves the mount. Commands are accepted
// without blocking and executed one at a time in submission order by Run.
//
// A TRACK command finishes its slew inside the loop and then holds in the
// background so the loop can accept the next command. Before any later
// command touches the motors the hold is aborted with
// activity.ErrSuperseded and joined, so its terminal event always precedes
// the next command's RUNNING event.
type Actor struct {
	driver Driver
	opts   Options
	log    zerolog.Logger

	mu        sync.Mutex
	queue     []*job
	jobs      map[uint64]*job
	order     []uint64
	nextID    uint64
	current   *activity.Activity // TRACK that is running, nil when idle
	requested *activity.Activity // latest accepted TRACK that has not ended
	stopped   bool
	wake      chan struct{}

	// holding is only touched by the Run goroutine.
	holding *hold
}

type job struct {
	act    *activity.Activity
	cmd    Command
	cancel context.CancelCauseFunc // set under Actor.mu when the job starts
}

type hold struct {
	job    *job
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewActor creates an actor for driver. Call Run to start executing commands.
func NewActor(driver Driver, opts Options) *Actor {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 512
	}
	return &Actor{
		driver: driver,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "mount").Logger(),
		jobs:   make(map[uint64]*job),
		wake:   make(chan struct{}, 1),
	}
}

// Submit queues cmd and returns its activity immediately. A TRACK only
// becomes current once it starts, after the activity it replaces has ended.
func (a *Actor) Submit(cmd Command) *activity.Activity {
	a.mu.Lock()
	a.nextID++
	act := activity.New(a.nextID, cmd.Kind, cmd.Target, cmd.Steps, a)
	j := &job{act: act, cmd: cmd}
	a.remember(j)

	if a.stopped {
		a.mu.Unlock()
		act.Abort(ErrStopped)
		return act
	}
	if cmd.Target == nil && cmd.Kind != activity.CalibrateRelSteps {
		a.mu.Unlock()
		act.Abort(&target.ResolutionError{Kind: target.InvalidInput, Target: "none", Err: errors.New("command requires a target")})
		return act
	}

	a.queue = append(a.queue, j)
	switch cmd.Kind {
	case activity.Track:
		a.requested = act
	case activity.Calibrate:
		a.requested = nil
	}
	depth := len(a.queue)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	recordQueueDepth(depth)
	a.log.Debug().Uint64("activity", act.ID).Str("command", act.String()).Int("queue", depth).Msg("command accepted")
	return act
}

// Run executes queued commands until ctx is cancelled. On return the
// tracking hold and all queued commands are aborted with ErrStopped.
func (a *Actor) Run(ctx context.Context) error {
	a.log.Info().Msg("mount actor started")
	for {
		j, ok := a.next(ctx)
		if !ok {
			a.shutdown()
			a.log.Info().Msg("mount actor stopped")
			return ctx.Err()
		}
		a.execute(ctx, j)
	}
}

// Cancel aborts a pending or running activity with activity.ErrCancelled.
func (a *Actor) Cancel(id uint64) (*activity.Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	j, ok := a.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActivity, id)
	}
	if j.act.Status().Terminal() {
		return j.act, fmt.Errorf("%w: %d is %s", ErrNotActive, id, j.act.Status())
	}

	if j.cancel != nil {
		// Running: the executing path reports the abort.
		j.cancel(activity.ErrCancelled)
		return j.act, nil
	}

	// Still queued: abort now, the loop will skip it.
	j.act.Abort(activity.ErrCancelled)
	if a.requested == j.act {
		a.requested = nil
	}
	return j.act, nil
}

// CurrentTarget returns the target of the TRACK activity in force, or nil.
func (a *Actor) CurrentTarget() target.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	return a.current.Target
}

// ResumeTarget returns the target of the latest accepted TRACK that is
// still queued or running, or nil. Unlike CurrentTarget it already reflects
// a TRACK waiting behind other commands.
func (a *Actor) ResumeTarget() target.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.requested == nil {
		return nil
	}
	return a.requested.Target
}

// Current returns the TRACK activity in force, or nil.
func (a *Actor) Current() *activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Get returns a remembered activity.
func (a *Actor) Get(id uint64) (*activity.Activity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[id]
	if !ok {
		return nil, false
	}
	return j.act, true
}

// List returns up to limit remembered activities, newest first.
func (a *Actor) List(limit int) []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || limit > len(a.order) {
		limit = len(a.order)
	}
	out := make([]*activity.Activity, 0, limit)
	for i := len(a.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.jobs[a.order[i]].act)
	}
	return out
}

// QueueDepth returns the number of commands waiting to start.
func (a *Actor) QueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// ActivityEvent implements activity.Observer.
func (a *Actor) ActivityEvent(act *activity.Activity, ev activity.Event) {
	recordActivityEvent(act.Kind.String(), ev.Status.String())

	logEvent := a.log.Debug()
	if ev.Status == activity.Aborted {
		logEvent = a.log.Warn().Err(ev.Err)
	}
	logEvent.Uint64("activity", act.ID).
		Str("kind", act.Kind.String()).
		Str("status", ev.Status.String()).
		Str("milestone", string(ev.Milestone)).
		Msg("activity event")

	if a.opts.Observer != nil {
		a.opts.Observer.ActivityEvent(act, ev)
	}
}

// remember must be called with a.mu held.
func (a *Actor) remember(j *job) {
	a.jobs[j.act.ID] = j
	a.order = append(a.order, j.act.ID)
	for len(a.order) > a.opts.HistoryLimit {
		oldest := a.jobs[a.order[0]]
		if !oldest.act.Status().Terminal() {
			break
		}
		delete(a.jobs, a.order[0])
		a.order = a.order[1:]
	}
}

func (a *Actor) next(ctx context.Context) (*job, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}

		a.mu.Lock()
		if len(a.queue) > 0 {
			j := a.queue[0]
			a.queue[0] = nil
			a.queue = a.queue[1:]
			depth := len(a.queue)
			a.mu.Unlock()
			recordQueueDepth(depth)
			return j, true
		}
		a.mu.Unlock()

		select {
		case <-a.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (a *Actor) execute(ctx context.Context, j *job) {
	if j.act.Status().Terminal() {
		return // cancelled while queued
	}

	// Every command drives the motors, so a tracking hold must end first.
	a.stopHold(activity.ErrSuperseded)

	jctx, cancel := context.WithCancelCause(ctx)

	a.mu.Lock()
	if err := j.act.Start(); err != nil {
		a.mu.Unlock()
		cancel(nil)
		return
	}
	j.cancel = cancel
	if j.cmd.Kind == activity.Track {
		a.current = j.act
	}
	a.mu.Unlock()

	var err error
	switch j.cmd.Kind {
	case activity.Calibrate:
		err = a.calibrate(jctx, j)
	case activity.CalibrateRelSteps:
		err = a.bump(jctx, j)
	case activity.Track:
		var coord coordinates.EquatorialCoordinates
		if coord, err = a.acquire(jctx, j); err == nil {
			err = a.startHold(jctx, cancel, j, coord)
		}
		if err == nil {
			return // holding in the background
		}
	default:
		err = fmt.Errorf("unsupported command kind %s", j.cmd.Kind)
	}

	if err != nil {
		a.finish(j, reason(jctx, err))
	} else if cerr := j.act.Complete(); cerr != nil {
		a.log.Error().Err(cerr).Uint64("activity", j.act.ID).Msg("complete rejected")
	}
	cancel(nil)
}

// calibrate slews to the target and syncs the mount there.
func (a *Actor) calibrate(ctx context.Context, j *job) error {
	coord, err := a.acquire(ctx, j)
	if err != nil {
		return err
	}
	if err := a.driver.Sync(ctx, coord); err != nil {
		return fault("sync", err)
	}
	return j.act.Reach(activity.MilestoneSynced)
}

func (a *Actor) bump(ctx context.Context, j *job) error {
	if err := a.driver.Step(ctx, j.cmd.Steps.Bearing, j.cmd.Steps.Dec); err != nil {
		return fault("step", err)
	}
	return nil
}

// acquire resolves the target and slews to it. Time-varying targets are
// resolved here, right before the slew, so queueing delay never leaves the
// mount pointing at a stale position.
func (a *Actor) acquire(ctx context.Context, j *job) (coordinates.EquatorialCoordinates, error) {
	coord, err := a.resolve(ctx, j.cmd.Target)
	if err != nil {
		return coord, err
	}
	if err := a.slew(ctx, coord); err != nil {
		return coord, err
	}
	return coord, j.act.Reach(activity.MilestoneSlewComplete)
}

func (a *Actor) resolve(ctx context.Context, t target.Target) (coordinates.EquatorialCoordinates, error) {
	start := time.Now()
	coord, err := t.Resolve(ctx, a.opts.Services)
	recordResolution(t.Variant(), time.Since(start), err)
	if err != nil {
		return coord, err
	}
	a.log.Debug().Str("target", t.String()).Str("coord", coord.String()).Msg("target resolved")
	return coord, nil
}

func (a *Actor) slew(ctx context.Context, coord coordinates.EquatorialCoordinates) error {
	sctx := ctx
	if a.opts.SlewTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, a.opts.SlewTimeout)
		defer cancel()
	}
	if err := a.driver.Slew(sctx, coord); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault("slew", err)
	}
	return nil
}

func (a *Actor) startHold(ctx context.Context, cancel context.CancelCauseFunc, j *job, coord coordinates.EquatorialCoordinates) error {
	if err := a.driver.StartTracking(ctx); err != nil {
		return fault("track", err)
	}
	h := &hold{job: j, cancel: cancel, done: make(chan struct{})}
	a.holding = h
	go a.runHold(ctx, h, coord)
	return nil
}

// runHold keeps a TRACK activity RUNNING until its context ends. Moving
// targets are re-resolved periodically and the mount re-pointed when they
// drift past the tolerance.
func (a *Actor) runHold(ctx context.Context, h *hold, coord coordinates.EquatorialCoordinates) {
	defer close(h.done)

	var tick <-chan time.Time
	if h.job.cmd.Target.TimeVarying() && a.opts.RefreshInterval > 0 {
		ticker := time.NewTicker(a.opts.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			a.finish(h.job, reason(ctx, ctx.Err()))
			return
		case <-tick:
			next, err := a.refresh(ctx, h.job, coord)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				a.finish(h.job, err)
				return
			}
			coord = next
		}
	}
}

func (a *Actor) refresh(ctx context.Context, j *job, coord coordinates.EquatorialCoordinates) (coordinates.EquatorialCoordinates, error) {
	next, err := a.resolve(ctx, j.cmd.Target)
	if err != nil {
		// Keep holding on the last known position
		a.log.Warn().Err(err).Uint64("activity", j.act.ID).Msg("target refresh failed")
		return coord, nil
	}

	drift := coordinates.AngularSeparation(coord, next)
	if drift < a.opts.RepointTolerance {
		return coord, nil
	}
	if err := a.slew(ctx, next); err != nil {
		return coord, err
	}
	if err := j.act.Progress(fmt.Sprintf("repointed %.2f'", drift*60)); err != nil {
		return next, err
	}
	return next, nil
}

// stopHold aborts the background TRACK hold, if any, and waits for it.
func (a *Actor) stopHold(cause error) {
	h := a.holding
	if h == nil {
		return
	}
	a.holding = nil
	h.cancel(cause)
	<-h.done
}

// finish aborts j with err and releases every reference to it, so the
// current target never names an ended activity.
func (a *Actor) finish(j *job, err error) {
	j.act.Abort(err)
	a.mu.Lock()
	if a.current == j.act {
		a.current = nil
	}
	if a.requested == j.act {
		a.requested = nil
	}
	a.mu.Unlock()
}

func (a *Actor) shutdown() {
	a.stopHold(ErrStopped)

	a.mu.Lock()
	a.stopped = true
	pending := a.queue
	a.queue = nil
	a.mu.Unlock()

	for _, j := range pending {
		a.finish(j, ErrStopped)
	}
	recordQueueDepth(0)
}

// reason picks the failure to report for a job whose context may have
// been cancelled: the cancellation cause wins over whatever error the
// interrupted operation returned.
func reason(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return ErrStopped
	}
	return cause
}
