// Package session orchestrates a breathing session: the phase state
// machine, the run clock and the cue scheduler behind one command surface.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/boxbreath/internal/app/clock"
	"github.com/osa030/boxbreath/internal/app/cue"
	"github.com/osa030/boxbreath/internal/app/session/state"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
)

// WakeLockTimeout bounds one wake-lock acquisition.
const WakeLockTimeout = 2 * time.Second

// Config holds controller configuration. Nil collaborators are replaced
// by no-op implementations.
type Config struct {
	Shape     shape.Shape
	Intervals []plan.Interval
	Now       clock.NowFunc

	Audio    AudioSink
	Renderer Renderer
	WakeLock WakeLock
	Observer LifecycleObserver
}

// Controller translates commands into calls on the state machine, the
// run clock and the cue scheduler. All methods are safe for concurrent
// use; they are serialized by one mutex.
type Controller struct {
	mu sync.Mutex

	shape     shape.Shape
	intervals []plan.Interval
	plan      *plan.Plan // nil when the intervals do not form a valid plan

	machine *state.Machine
	clock   *clock.RunClock
	cues    *cue.Scheduler
	now     clock.NowFunc

	audio    AudioSink
	renderer Renderer
	wakeLock WakeLock
	observer LifecycleObserver

	wakeHandle  io.Closer
	wakePending bool
	wakeGen     uint64
	wakeWG      sync.WaitGroup
	sessionID   string
	startedAt   time.Time

	lastStatsSecond int
	lastStatsRounds int
}

// NewController creates a controller in the idle status.
func NewController(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		shape:     cfg.Shape,
		intervals: copyIntervals(cfg.Intervals),
		clock:     clock.New(now),
		cues:      cue.NewScheduler(),
		now:       now,
		audio:     cfg.Audio,
		renderer:  cfg.Renderer,
		wakeLock:  cfg.WakeLock,
		observer:  cfg.Observer,
	}
	if c.audio == nil {
		c.audio = nopAudio{}
	}
	if c.renderer == nil {
		c.renderer = nopRenderer{}
	}

	p, err := plan.New(c.intervals, c.shape.LegsPerRound())
	if err != nil {
		zlog.Warn().Err(err).Msg("initial interval plan is not usable")
	} else {
		c.plan = p
	}
	c.machine = state.New(c.shape, c.plan)
	c.resetStatsLocked()

	return c
}

// Start begins a session from idle. Starting a paused session resumes it
// and starting a running session is a no-op. Configuration errors are
// returned before anything changes.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.machine.Status() {
	case state.StatusRunning:
		zlog.Warn().Str("session_id", c.sessionID).Msg("start ignored: session already running")
		return nil
	case state.StatusPaused:
		return c.resumeLocked(ctx)
	case state.StatusStopped:
		_, err := c.machine.Start()
		return c.rejectLocked("start", err)
	}

	p, err := plan.New(c.intervals, c.shape.LegsPerRound())
	if err != nil {
		zlog.Warn().Err(err).Msg("start rejected: invalid interval plan")
		return err
	}
	if err := c.machine.Configure(c.shape, p); err != nil {
		return c.rejectLocked("start", err)
	}
	c.plan = p

	change, err := c.machine.Start()
	if err != nil {
		return c.rejectLocked("start", err)
	}

	c.sessionID = uuid.New().String()
	c.startedAt = c.now()
	c.clock.Start()
	c.resetStatsLocked()
	c.cues.ScheduleLeg(change.Leg, change.Duration, c.plan, change.IntervalIndex)

	zlog.Info().
		Str("session_id", c.sessionID).
		Str("shape", c.shape.String()).
		Str("plan", p.String()).
		Int("total_legs", p.TotalLegs()).
		Msg("session started")

	c.renderPhaseLocked(change)
	c.acquireWakeLockLocked(ctx)
	c.notifyLocked(TransitionStarted, state.StatusIdle)
	c.tickLocked()

	return nil
}

// Pause freezes the current leg. Pausing a paused session is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed, err := c.machine.Pause()
	if err != nil {
		return c.rejectLocked("pause", err)
	}
	if !changed {
		return nil
	}

	c.clock.Pause()
	suspended := c.cues.Suspend()
	c.releaseWakeLockLocked()

	zlog.Info().
		Str("session_id", c.sessionID).
		Int("suspended_cues", suspended).
		Dur("leg_elapsed", c.clock.LegElapsed()).
		Msg("session paused")

	c.notifyLocked(TransitionPaused, state.StatusRunning)
	return nil
}

// Resume continues a paused session with the remaining time of the
// current leg.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resumeLocked(ctx)
}

func (c *Controller) resumeLocked(ctx context.Context) error {
	if err := c.machine.Resume(); err != nil {
		return c.rejectLocked("resume", err)
	}

	c.clock.Resume()
	restored := c.cues.Restore()
	c.acquireWakeLockLocked(ctx)

	zlog.Info().
		Str("session_id", c.sessionID).
		Int("restored_cues", restored).
		Msg("session resumed")

	c.notifyLocked(TransitionResumed, state.StatusPaused)
	c.tickLocked()
	return nil
}

// Stop ends the session. Stopping a stopped session is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.machine.Status()
	changed, err := c.machine.Stop()
	if err != nil {
		return c.rejectLocked("stop", err)
	}
	if !changed {
		return nil
	}

	cancelled := c.cues.CancelAll()
	c.clock.Pause()
	c.releaseWakeLockLocked()

	zlog.Info().
		Str("session_id", c.sessionID).
		Int("cancelled_cues", cancelled).
		Msg("session stopped")

	c.notifyLocked(TransitionStopped, from)
	return nil
}

// Reset returns to idle from any status and clears every counter.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.machine.Status()
	snap := c.snapshotLocked()

	c.cues.CancelAll()
	c.clock.Reset()
	c.releaseWakeLockLocked()

	if c.plan == nil {
		if p, err := plan.New(c.intervals, c.shape.LegsPerRound()); err == nil {
			c.plan = p
		}
	}
	if err := c.machine.Configure(c.shape, c.plan); err != nil {
		zlog.Error().Err(err).Msg("failed to reconfigure state machine on reset")
	}
	c.machine.Reset()
	c.resetStatsLocked()

	zlog.Info().Str("session_id", snap.SessionID).Str("from", from.String()).Msg("session reset")

	c.sessionID = ""
	c.startedAt = time.Time{}
	c.renderer.OnProgress(0)
	c.renderStatsLocked(0, 0)

	if c.observer != nil {
		// Observers see the session as it was before the reset.
		c.observer.OnTransition(Transition{Kind: TransitionReset, From: from, Snapshot: snap})
	}
}

// SetExerciseShape replaces the shape. Only legal while idle or stopped.
func (c *Controller) SetExerciseShape(s shape.Shape) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !s.Valid() {
		return errors.Mark(errors.Wrapf(shape.ErrUnknownShape, "shape %d", int(s)), plan.ErrConfiguration)
	}
	if c.machine.Status().Active() {
		return c.rejectLocked("set shape", c.machine.Configure(s, c.plan))
	}

	p, err := plan.New(c.intervals, s.LegsPerRound())
	if err != nil {
		p = nil
	}
	if err := c.machine.Configure(s, p); err != nil {
		return c.rejectLocked("set shape", err)
	}
	c.shape = s
	c.plan = p

	zlog.Info().Str("shape", s.String()).Msg("exercise shape changed")
	return nil
}

// SetIntervalPlan replaces the intervals. Only legal while idle or
// stopped. Invalid intervals are rejected with a configuration error and
// the previous plan is kept.
func (c *Controller) SetIntervalPlan(intervals []plan.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Status().Active() {
		return c.rejectLocked("set plan", c.machine.Configure(c.shape, c.plan))
	}

	p, err := plan.New(intervals, c.shape.LegsPerRound())
	if err != nil {
		zlog.Warn().Err(err).Msg("interval plan rejected")
		return err
	}
	if err := c.machine.Configure(c.shape, p); err != nil {
		return c.rejectLocked("set plan", err)
	}
	c.intervals = copyIntervals(intervals)
	c.plan = p

	zlog.Info().Str("plan", p.String()).Msg("interval plan replaced")
	return nil
}

// ReplacePlan is SetIntervalPlan for settings collaborators.
func (c *Controller) ReplacePlan(intervals []plan.Interval) error {
	return c.SetIntervalPlan(intervals)
}

// Tick advances the session to the current time: due cues fire, finished
// legs complete and progress is reported. Hosts call it from their frame
// or timer loop.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tickLocked()
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Status returns the current status.
func (c *Controller) Status() state.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.machine.Status()
}

// PendingCues returns the cues that have not fired yet.
func (c *Controller) PendingCues() []cue.Cue {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cues.Pending()
}

// Close releases the wake-lock if one is held and waits for pending
// acquisitions to settle.
func (c *Controller) Close() {
	c.mu.Lock()
	c.releaseWakeLockLocked()
	c.mu.Unlock()

	c.wakeWG.Wait()
}

func (c *Controller) tickLocked() {
	if c.machine.Status() != state.StatusRunning {
		return
	}

	for {
		snap := c.machine.Snapshot()
		d := snap.LegDuration
		legElapsed := c.clock.LegElapsed()

		autoStop := false
		for _, q := range c.cues.Poll(snap.LegsCompleted, min(legElapsed, d)) {
			if q.Kind == cue.KindAutoStop {
				autoStop = true
				continue
			}
			zlog.Debug().
				Str("kind", q.Kind.String()).
				Int("leg", q.Leg).
				Dur("offset", q.Offset).
				Msg("cue fired")
			c.audio.PlayCue(q.Kind.Count())
		}

		if legElapsed < d && !autoStop {
			break
		}

		c.clock.AdvanceLeg(d)
		change, err := c.machine.CompleteLeg()
		if err != nil {
			zlog.Error().Err(err).Msg("failed to complete leg")
			return
		}
		if change.Finished {
			c.renderPhaseLocked(change)
			c.finishLocked()
			return
		}

		c.cues.ScheduleLeg(change.Leg, change.Duration, c.plan, change.IntervalIndex)
		if change.IntervalChanged {
			zlog.Info().
				Str("session_id", c.sessionID).
				Int("interval", change.IntervalIndex).
				Dur("leg_duration", change.Duration).
				Msg("interval changed")
		}
		c.renderPhaseLocked(change)
	}

	c.renderer.OnProgress(c.clock.LegProgress(c.machine.Snapshot().LegDuration))
	c.emitStatsLocked()
}

func (c *Controller) finishLocked() {
	c.cues.CancelAll()
	c.clock.Pause()
	c.releaseWakeLockLocked()

	snap := c.machine.Snapshot()
	zlog.Info().
		Str("session_id", c.sessionID).
		Int("rounds", snap.RoundsCompleted).
		Dur("elapsed", c.clock.Elapsed()).
		Msg("session completed")

	c.renderer.OnProgress(1)
	c.emitStatsLocked()
	c.notifyLocked(TransitionCompleted, state.StatusRunning)
}

func (c *Controller) emitStatsLocked() {
	seconds := int(c.clock.Elapsed() / time.Second)
	rounds := c.machine.Snapshot().RoundsCompleted
	if seconds == c.lastStatsSecond && rounds == c.lastStatsRounds {
		return
	}
	c.lastStatsSecond = seconds
	c.lastStatsRounds = rounds
	c.renderStatsLocked(seconds, rounds)
}

func (c *Controller) renderPhaseLocked(change state.Change) {
	if sr, ok := c.renderer.(SnapshotRenderer); ok {
		sr.OnPhaseChangedAt(change.PhaseName, change.Round, change.IntervalIndex, c.snapshotLocked())
		return
	}
	c.renderer.OnPhaseChanged(change.PhaseName, change.Round, change.IntervalIndex)
}

func (c *Controller) renderStatsLocked(seconds, rounds int) {
	if sr, ok := c.renderer.(SnapshotRenderer); ok {
		sr.OnStatsChangedAt(seconds, rounds, c.snapshotLocked())
		return
	}
	c.renderer.OnStatsChanged(seconds, rounds)
}

func (c *Controller) resetStatsLocked() {
	c.lastStatsSecond = -1
	c.lastStatsRounds = -1
}

// acquireWakeLockLocked starts one acquisition off the lock. The result is
// kept only if no release happened in the meantime.
func (c *Controller) acquireWakeLockLocked(ctx context.Context) {
	if c.wakeLock == nil || c.wakeHandle != nil || c.wakePending {
		return
	}
	c.wakePending = true
	gen := c.wakeGen

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WakeLockTimeout)
	c.wakeWG.Add(1)
	go func() {
		defer c.wakeWG.Done()
		defer cancel()

		handle, err := c.wakeLock.Acquire(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()

		if gen != c.wakeGen {
			if err == nil && handle != nil {
				if cerr := handle.Close(); cerr != nil {
					zlog.Warn().Err(cerr).Msg("failed to release stale wake-lock")
				}
			}
			return
		}
		c.wakePending = false
		if err != nil {
			zlog.Warn().Err(err).Msg("wake-lock unavailable, continuing without it")
			return
		}
		c.wakeHandle = handle
		zlog.Debug().Msg("wake-lock acquired")
	}()
}

func (c *Controller) releaseWakeLockLocked() {
	c.wakeGen++
	c.wakePending = false
	if c.wakeHandle == nil {
		return
	}
	if err := c.wakeHandle.Close(); err != nil {
		zlog.Warn().Err(err).Msg("failed to release wake-lock")
	}
	c.wakeHandle = nil
	zlog.Debug().Msg("wake-lock released")
}

func (c *Controller) notifyLocked(kind TransitionKind, from state.Status) {
	if c.observer == nil {
		return
	}
	c.observer.OnTransition(Transition{Kind: kind, From: from, Snapshot: c.snapshotLocked()})
}

func (c *Controller) rejectLocked(command string, err error) error {
	if err == nil {
		return nil
	}
	zlog.Warn().
		Err(err).
		Str("command", command).
		Str("status", c.machine.Status().String()).
		Msg("command rejected")
	return err
}

func (c *Controller) snapshotLocked() Snapshot {
	ms := c.machine.Snapshot()
	snap := Snapshot{
		SessionID:       c.sessionID,
		Status:          ms.Status,
		Shape:           c.shape,
		PhaseName:       c.shape.PhaseName(ms.PhaseIndex),
		PhaseIndex:      ms.PhaseIndex,
		RoundsCompleted: ms.RoundsCompleted,
		LegsCompleted:   ms.LegsCompleted,
		IntervalIndex:   ms.IntervalIndex,
		LegDuration:     ms.LegDuration,
		Elapsed:         c.clock.Elapsed(),
		StartedAt:       c.startedAt,
		Intervals:       copyIntervals(c.intervals),
	}
	if c.plan != nil {
		snap.TotalLegs = c.plan.TotalLegs()
		snap.TotalRounds = c.plan.TotalRounds()
	}

	switch ms.Status {
	case state.StatusIdle:
		snap.Progress = 0
	case state.StatusStopped:
		if snap.TotalLegs > 0 && ms.LegsCompleted >= snap.TotalLegs {
			snap.Progress = 1
		} else {
			snap.Progress = c.clock.LegProgress(ms.LegDuration)
		}
		snap.Round = min(ms.RoundsCompleted+1, max(snap.TotalRounds, 1))
		if ms.LegsCompleted >= snap.TotalLegs {
			snap.Round = snap.TotalRounds
		}
	default:
		snap.Progress = c.clock.LegProgress(ms.LegDuration)
		snap.Round = min(ms.RoundsCompleted+1, max(snap.TotalRounds, 1))
	}

	return snap
}

func copyIntervals(intervals []plan.Interval) []plan.Interval {
	if intervals == nil {
		return nil
	}
	result := make([]plan.Interval, len(intervals))
	copy(result, intervals)
	return result
}
