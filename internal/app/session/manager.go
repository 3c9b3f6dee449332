package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
	"github.com/osa030/boxbreath/internal/app/clock"
	"github.com/osa030/boxbreath/internal/app/cuesink"
	"github.com/osa030/boxbreath/internal/app/notification"
	"github.com/osa030/boxbreath/internal/app/session/state"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
	"github.com/osa030/boxbreath/internal/infra/config"
	"github.com/osa030/boxbreath/internal/infra/history"
	"github.com/osa030/boxbreath/internal/infra/settings"
)

const (
	eventBufferSize = 64
	cueBufferSize   = 16
	historyTimeout  = 2 * time.Second
)

// HistoryStore persists finished sessions.
type HistoryStore interface {
	Record(ctx context.Context, e history.Entry) error
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// SettingsStore persists the exercise choice.
type SettingsStore interface {
	Save(s settings.Settings) error
}

// Options are the collaborators of a Manager. Nil History and Settings
// disable those features.
type Options struct {
	Shape     shape.Shape
	Intervals []plan.Interval

	Cues     cuesink.Sink
	WakeLock WakeLock
	History  HistoryStore
	Settings SettingsStore
	Now      clock.NowFunc
}

type managerEvent struct {
	kind       pacerv1.NotificationType
	phase      *pacerv1.PhaseInfo
	cueCount   int
	transition *Transition
	snapshot   *Snapshot // taken when the event happened
}

// Manager runs one controller as a daemon: it pumps ticks, plays cues
// through the cue sinks, broadcasts notifications to watchers and
// records history. The controller reports to the manager with its lock
// held, so every callback only enqueues; the loops do the work.
type Manager struct {
	ctrl         *Controller
	runner       *Runner
	notification *notification.Manager
	cues         cuesink.Sink
	history      HistoryStore
	settings     SettingsStore
	now          clock.NowFunc

	autoStart    bool
	historyLimit int

	events chan managerEvent
	cueCh  chan int

	ctx       context.Context
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ Renderer          = (*Manager)(nil)
	_ SnapshotRenderer  = (*Manager)(nil)
	_ AudioSink         = (*Manager)(nil)
	_ LifecycleObserver = (*Manager)(nil)
)

// NewManager creates a manager in the idle status.
func NewManager(cfg *config.Config, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		notification: notification.NewManager(),
		cues:         opts.Cues,
		history:      opts.History,
		settings:     opts.Settings,
		now:          now,
		autoStart:    cfg.Pacer.AutoStart,
		historyLimit: cfg.History.Limit,
		events:       make(chan managerEvent, eventBufferSize),
		cueCh:        make(chan int, cueBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	m.ctrl = NewController(Config{
		Shape:     opts.Shape,
		Intervals: opts.Intervals,
		Now:       now,
		Audio:     m,
		Renderer:  m,
		WakeLock:  opts.WakeLock,
		Observer:  m,
	})
	m.runner = NewRunner(m.ctrl, time.Duration(cfg.Pacer.TickIntervalMs)*time.Millisecond)

	return m
}

// Run starts the event loops and pumps the controller until ctx is done
// or the manager is closed.
func (m *Manager) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	m.startLoops()

	if m.autoStart {
		if err := m.Start(runCtx); err != nil {
			zlog.Error().Err(err).Msg("auto start failed")
		}
	}

	err := m.runner.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Manager) startLoops() {
	m.loops.Add(2)
	go m.eventLoop()
	go m.cueLoop()
}

// Done returns a channel that is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Start begins a session (or resumes a paused one).
func (m *Manager) Start(ctx context.Context) error {
	return m.ctrl.Start(ctx)
}

// Pause pauses the running session.
func (m *Manager) Pause() error {
	return m.ctrl.Pause()
}

// Resume resumes the paused session.
func (m *Manager) Resume(ctx context.Context) error {
	return m.ctrl.Resume(ctx)
}

// Stop ends the session.
func (m *Manager) Stop() error {
	return m.ctrl.Stop()
}

// Reset returns to idle.
func (m *Manager) Reset() {
	m.ctrl.Reset()
}

// SetShape parses and applies a shape, then saves the settings.
func (m *Manager) SetShape(name string) error {
	s, err := shape.Parse(name)
	if err != nil {
		return errors.Mark(err, plan.ErrConfiguration)
	}
	if err := m.ctrl.SetExerciseShape(s); err != nil {
		return err
	}
	m.saveSettings()
	return nil
}

// SetPlan applies the intervals, then saves the settings.
func (m *Manager) SetPlan(intervals []plan.Interval) error {
	if err := m.ctrl.SetIntervalPlan(intervals); err != nil {
		return err
	}
	m.saveSettings()
	return nil
}

// Status returns the current session as a wire message.
func (m *Manager) Status() *pacerv1.SessionInfo {
	return BuildSessionInfo(m.ctrl.Snapshot())
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	return m.ctrl.Snapshot()
}

// ListHistory returns recent sessions, most recent first. A non-positive
// limit uses the configured default.
func (m *Manager) ListHistory(ctx context.Context, limit int) ([]history.Entry, error) {
	if m.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = m.historyLimit
	}
	return m.history.List(ctx, limit)
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Close stops an active session, flushes pending events and releases
// resources.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.ctrl.Status().Active() {
			if err := m.ctrl.Stop(); err != nil {
				zlog.Error().Err(err).Msg("failed to stop session on close")
			}
		}
		m.cancel()
		m.loops.Wait()
		m.drainEvents()
		m.ctrl.Close()
		m.notification.Close()
		close(m.done)
	})
}

// PlayCue implements AudioSink.
func (m *Manager) PlayCue(count int) {
	select {
	case m.cueCh <- count:
	default:
		zlog.Warn().Int("count", count).Msg("cue dropped: sinks busy")
	}
	m.enqueue(managerEvent{kind: pacerv1.NotificationTypeCue, cueCount: count})
}

// OnPhaseChanged implements Renderer. The controller calls
// OnPhaseChangedAt instead.
func (m *Manager) OnPhaseChanged(phaseName string, round, interval int) {
	m.enqueuePhase(phaseName, round, interval, nil)
}

// OnPhaseChangedAt implements SnapshotRenderer.
func (m *Manager) OnPhaseChangedAt(phaseName string, round, interval int, snap Snapshot) {
	m.enqueuePhase(phaseName, round, interval, &snap)
}

func (m *Manager) enqueuePhase(phaseName string, round, interval int, snap *Snapshot) {
	m.enqueue(managerEvent{
		kind: pacerv1.NotificationTypeChangePhase,
		phase: &pacerv1.PhaseInfo{
			Name:          phaseName,
			Round:         int32(round),
			IntervalIndex: int32(interval),
		},
		snapshot: snap,
	})
}

// OnProgress implements Renderer. Watchers derive progress from stats
// and phase notifications.
func (m *Manager) OnProgress(float64) {}

// OnStatsChanged implements Renderer. The controller calls
// OnStatsChangedAt instead.
func (m *Manager) OnStatsChanged(int, int) {
	m.enqueue(managerEvent{kind: pacerv1.NotificationTypeStats})
}

// OnStatsChangedAt implements SnapshotRenderer.
func (m *Manager) OnStatsChangedAt(_, _ int, snap Snapshot) {
	m.enqueue(managerEvent{kind: pacerv1.NotificationTypeStats, snapshot: &snap})
}

// OnTransition implements LifecycleObserver.
func (m *Manager) OnTransition(t Transition) {
	m.enqueue(managerEvent{kind: pacerv1.NotificationTypeChangeState, transition: &t})
}

func (m *Manager) enqueue(ev managerEvent) {
	select {
	case m.events <- ev:
	default:
		zlog.Warn().Str("type", string(ev.kind)).Msg("session event dropped: queue full")
	}
}

// eventLoop handles session events.
func (m *Manager) eventLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("event loop panicked: %v", r)
			zlog.Info().Msg("restarting event loop")
			go m.eventLoop()
			return
		}
		m.loops.Done()
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) drainEvents() {
	for {
		select {
		case ev := <-m.events:
			m.handleEvent(ev)
		default:
			return
		}
	}
}

// cueLoop plays cue bursts. Bursts sleep between beeps, so they run
// apart from the event loop.
func (m *Manager) cueLoop() {
	defer m.loops.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case count := <-m.cueCh:
			if m.cues == nil {
				continue
			}
			if err := m.cues.Play(m.ctx, count); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Warn().Err(err).Int("count", count).Msg("cue playback failed")
			}
		}
	}
}

func (m *Manager) handleEvent(ev managerEvent) {
	n := &pacerv1.Notification{Type: ev.kind}

	switch ev.kind {
	case pacerv1.NotificationTypeChangeState:
		n.Transition = ev.transition.Kind.String()
		n.SessionInfo = BuildSessionInfo(ev.transition.Snapshot)
		zlog.Info().
			Str("session_id", ev.transition.Snapshot.SessionID).
			Str("transition", n.Transition).
			Str("from", ev.transition.From.String()).
			Msg("broadcast CHANGE_STATE")
		m.recordHistory(*ev.transition)
	case pacerv1.NotificationTypeChangePhase:
		n.Phase = ev.phase
		n.SessionInfo = m.eventSessionInfo(ev)
	case pacerv1.NotificationTypeCue:
		n.Cue = &pacerv1.CueInfo{Count: int32(ev.cueCount)}
	case pacerv1.NotificationTypeStats:
		n.SessionInfo = m.eventSessionInfo(ev)
	}

	if delivered := m.notification.Broadcast(n); delivered == 0 && n.Type == pacerv1.NotificationTypeChangeState {
		zlog.Debug().Uint64("sequence_no", n.SequenceNo).Msg("state change had no watchers")
	}
}

func (m *Manager) eventSessionInfo(ev managerEvent) *pacerv1.SessionInfo {
	if ev.snapshot != nil {
		return BuildSessionInfo(*ev.snapshot)
	}
	return m.Status()
}

func (m *Manager) recordHistory(t Transition) {
	if m.history == nil || t.Snapshot.SessionID == "" {
		return
	}

	var reason string
	switch t.Kind {
	case TransitionCompleted:
		reason = history.ReasonCompleted
	case TransitionStopped:
		reason = history.ReasonStopped
	case TransitionReset:
		// A stopped session was already recorded.
		if !t.From.Active() {
			return
		}
		reason = history.ReasonReset
	default:
		return
	}

	snap := t.Snapshot
	entry := history.Entry{
		SessionID:       snap.SessionID,
		Shape:           snap.Shape.String(),
		PlanSummary:     plan.FormatIntervals(snap.Intervals),
		Reason:          reason,
		StartedAt:       snap.StartedAt,
		EndedAt:         m.now(),
		Elapsed:         snap.Elapsed,
		RoundsCompleted: snap.RoundsCompleted,
		LegsCompleted:   snap.LegsCompleted,
		TotalLegs:       snap.TotalLegs,
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := m.history.Record(ctx, entry); err != nil {
		zlog.Error().Err(err).Str("session_id", snap.SessionID).Msg("failed to record session history")
		return
	}
	zlog.Debug().Str("session_id", snap.SessionID).Str("reason", reason).Msg("session history recorded")
}

func (m *Manager) saveSettings() {
	if m.settings == nil {
		return
	}
	snap := m.ctrl.Snapshot()
	if err := m.settings.Save(settings.Settings{Shape: snap.Shape, Intervals: snap.Intervals}); err != nil {
		zlog.Warn().Err(err).Msg("failed to save settings")
	}
}

// BuildSessionInfo converts a snapshot to its wire form.
func BuildSessionInfo(snap Snapshot) *pacerv1.SessionInfo {
	info := &pacerv1.SessionInfo{
		SessionId:          snap.SessionID,
		State:              sessionState(snap.Status),
		Shape:              snap.Shape.String(),
		PhaseName:          snap.PhaseName,
		PhaseIndex:         int32(snap.PhaseIndex),
		Round:              int32(snap.Round),
		RoundsCompleted:    int32(snap.RoundsCompleted),
		TotalRounds:        int32(snap.TotalRounds),
		LegsCompleted:      int32(snap.LegsCompleted),
		TotalLegs:          int32(snap.TotalLegs),
		IntervalIndex:      int32(snap.IntervalIndex),
		LegDurationSeconds: snap.LegDuration.Seconds(),
		ElapsedSeconds:     snap.Elapsed.Seconds(),
		ElapsedText:        snap.ElapsedText(),
		Progress:           snap.Progress,
		PlanSummary:        plan.FormatIntervals(snap.Intervals),
	}
	if !snap.StartedAt.IsZero() {
		info.StartedAt = snap.StartedAt.UTC().Format(time.RFC3339)
	}
	for _, iv := range snap.Intervals {
		info.Intervals = append(info.Intervals, &pacerv1.Interval{
			Rounds:          int32(iv.Rounds),
			DurationSeconds: iv.DurationSeconds,
		})
	}
	return info
}

func sessionState(s state.Status) pacerv1.SessionState {
	switch s {
	case state.StatusIdle:
		return pacerv1.SessionStateIdle
	case state.StatusRunning:
		return pacerv1.SessionStateRunning
	case state.StatusPaused:
		return pacerv1.SessionStatePaused
	case state.StatusStopped:
		return pacerv1.SessionStateStopped
	default:
		return pacerv1.SessionStateUnspecified
	}
}
