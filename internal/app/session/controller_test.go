package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/boxbreath/internal/app/session/state"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
)

type fakeNow struct {
	t time.Time
}

func newFakeNow() *fakeNow {
	return &fakeNow{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeNow) Now() time.Time {
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}

type firedCue struct {
	count int
	at    time.Duration
}

type recordingAudio struct {
	now   *fakeNow
	start time.Time
	cues  []firedCue
}

func (a *recordingAudio) PlayCue(count int) {
	a.cues = append(a.cues, firedCue{count: count, at: a.now.Now().Sub(a.start)})
}

func (a *recordingAudio) counts() []int {
	result := make([]int, len(a.cues))
	for i, c := range a.cues {
		result[i] = c.count
	}
	return result
}

type phaseEvent struct {
	name     string
	round    int
	interval int
}

type recordingRenderer struct {
	phases   []phaseEvent
	progress []float64
	stats    [][2]int
}

func (r *recordingRenderer) OnPhaseChanged(name string, round, interval int) {
	r.phases = append(r.phases, phaseEvent{name: name, round: round, interval: interval})
}

func (r *recordingRenderer) OnProgress(fraction float64) {
	r.progress = append(r.progress, fraction)
}

func (r *recordingRenderer) OnStatsChanged(elapsedSeconds, rounds int) {
	r.stats = append(r.stats, [2]int{elapsedSeconds, rounds})
}

func (r *recordingRenderer) phaseNames() []string {
	names := make([]string, len(r.phases))
	for i, p := range r.phases {
		names[i] = p.name
	}
	return names
}

type fakeWakeLock struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
	block    chan struct{} // when set, Acquire waits for it to close
}

func (w *fakeWakeLock) Acquire(context.Context) (io.Closer, error) {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.acquired++
	return wakeHandle{w}, nil
}

func (w *fakeWakeLock) counts() (acquired, released int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired, w.released
}

type wakeHandle struct {
	w *fakeWakeLock
}

func (h wakeHandle) Close() error {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	h.w.released++
	return nil
}

type recordingObserver struct {
	transitions []Transition
}

func (o *recordingObserver) OnTransition(t Transition) {
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) kinds() []TransitionKind {
	result := make([]TransitionKind, len(o.transitions))
	for i, t := range o.transitions {
		result[i] = t.Kind
	}
	return result
}

type harness struct {
	now      *fakeNow
	audio    *recordingAudio
	renderer *recordingRenderer
	wake     *fakeWakeLock
	observer *recordingObserver
	ctrl     *Controller
}

func newHarness(s shape.Shape, intervals ...plan.Interval) *harness {
	now := newFakeNow()
	h := &harness{
		now:      now,
		audio:    &recordingAudio{now: now, start: now.Now()},
		renderer: &recordingRenderer{},
		wake:     &fakeWakeLock{},
		observer: &recordingObserver{},
	}
	h.ctrl = NewController(Config{
		Shape:     s,
		Intervals: intervals,
		Now:       now.Now,
		Audio:     h.audio,
		Renderer:  h.renderer,
		WakeLock:  h.wake,
		Observer:  h.observer,
	})
	return h
}

// wakeCounts waits for pending wake-lock acquisitions, then reports the
// acquire and release counts.
func (h *harness) wakeCounts() (acquired, released int) {
	h.ctrl.wakeWG.Wait()
	return h.wake.counts()
}

func (h *harness) acquired() int {
	a, _ := h.wakeCounts()
	return a
}

func (h *harness) released() int {
	_, r := h.wakeCounts()
	return r
}

func (h *harness) wakeHeld() bool {
	a, r := h.wakeCounts()
	return a > r
}

// run advances the fake clock in steps, ticking after each one.
func (h *harness) run(total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		h.now.Advance(step)
		h.ctrl.Tick()
	}
}

func TestController_SquarePlanRunsToCompletion(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 2, DurationSeconds: 4})

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.True(t, h.wakeHeld())
	h.run(40*time.Second, 100*time.Millisecond)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, state.StatusStopped, snap.Status)
	assert.Equal(t, 2, snap.RoundsCompleted)
	assert.Equal(t, 8, snap.LegsCompleted)
	assert.Equal(t, 8, snap.TotalLegs)
	assert.Equal(t, 1.0, snap.Progress)
	assert.Equal(t, 32*time.Second, snap.Elapsed)
	assert.Equal(t, "0:32", snap.ElapsedText())

	assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1, 1, 2, 3}, h.audio.counts())
	for i := 0; i < 8; i++ {
		assert.Equal(t, time.Duration(i)*4*time.Second, h.audio.cues[i].at, "phase cue %d", i)
	}
	assert.Equal(t, 31*time.Second, h.audio.cues[8].at)
	assert.Equal(t, 31*time.Second, h.audio.cues[9].at)

	// The final leg completion reports too, with every round done.
	assert.Equal(t,
		[]string{"Inhale", "Hold", "Exhale", "Hold", "Inhale", "Hold", "Exhale", "Hold", "Inhale"},
		h.renderer.phaseNames())
	assert.Equal(t, 0, h.renderer.phases[3].round)
	assert.Equal(t, 1, h.renderer.phases[4].round)
	assert.Equal(t, 2, h.renderer.phases[8].round)

	assert.Equal(t, 1, h.acquired())
	assert.Equal(t, 1, h.released())
	assert.Equal(t, []TransitionKind{TransitionStarted, TransitionCompleted}, h.observer.kinds())
	assert.Empty(t, h.ctrl.PendingCues())
}

func TestController_TrianglePlanCueOffsets(t *testing.T) {
	h := newHarness(shape.Triangle,
		plan.Interval{Rounds: 1, DurationSeconds: 5},
		plan.Interval{Rounds: 1, DurationSeconds: 3},
	)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.run(30*time.Second, 50*time.Millisecond)

	assert.Equal(t, []int{1, 1, 1, 2, 1, 1, 1, 2, 3}, h.audio.counts())

	// Leg 2 starts at 10s; its interval-end cue is 4s into the leg.
	assert.Equal(t, 14*time.Second, h.audio.cues[3].at)
	// Leg 5 starts at 21s; plan-end cues 2s in, auto-stop 3s in.
	assert.Equal(t, 21*time.Second, h.audio.cues[6].at)
	assert.Equal(t, 23*time.Second, h.audio.cues[7].at)
	assert.Equal(t, 23*time.Second, h.audio.cues[8].at)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, state.StatusStopped, snap.Status)
	assert.Equal(t, 24*time.Second, snap.Elapsed)
	assert.Equal(t, 2, snap.RoundsCompleted)

	intervals := make([]int, len(h.renderer.phases))
	for i, p := range h.renderer.phases {
		intervals[i] = p.interval
	}
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 1}, intervals)
}

func TestController_PauseResumePreservesProgress(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 1, DurationSeconds: 4})
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.run(2*time.Second, 100*time.Millisecond)
	before := h.ctrl.Snapshot()
	assert.InDelta(t, 0.5, before.Progress, 1e-9)

	require.NoError(t, h.ctrl.Pause())
	assert.False(t, h.wakeHeld())
	h.run(10*time.Second, 100*time.Millisecond)

	paused := h.ctrl.Snapshot()
	assert.Equal(t, state.StatusPaused, paused.Status)
	assert.Equal(t, before.Elapsed, paused.Elapsed)
	assert.InDelta(t, 0.5, paused.Progress, 1e-9)
	assert.Equal(t, 0, paused.LegsCompleted)

	require.NoError(t, h.ctrl.Resume(context.Background()))
	assert.True(t, h.wakeHeld())
	assert.InDelta(t, 0.5, h.ctrl.Snapshot().Progress, 1e-9)
	assert.Equal(t, before.Elapsed, h.ctrl.Snapshot().Elapsed)

	h.run(2*time.Second, 100*time.Millisecond)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, 1, snap.LegsCompleted)
	assert.Equal(t, "Hold", snap.PhaseName)
	assert.Equal(t, 4*time.Second, snap.Elapsed)
	assert.Equal(t, 2, h.acquired())
	assert.Equal(t, 1, h.released())
}

func TestController_NoCueFiresWhilePaused(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 1, DurationSeconds: 4})
	require.NoError(t, h.ctrl.Start(context.Background()))

	// Leg 3 starts at 12s; its warning cues are due 3s into the leg.
	h.run(14500*time.Millisecond, 100*time.Millisecond)
	require.Equal(t, []int{1, 1, 1, 1}, h.audio.counts())

	require.NoError(t, h.ctrl.Pause())
	assert.Empty(t, h.ctrl.PendingCues())
	h.run(10*time.Second, 100*time.Millisecond)
	assert.Equal(t, []int{1, 1, 1, 1}, h.audio.counts())

	require.NoError(t, h.ctrl.Resume(context.Background()))
	assert.Len(t, h.ctrl.PendingCues(), 3)
	h.run(400*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, []int{1, 1, 1, 1}, h.audio.counts())

	h.run(100*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, []int{1, 1, 1, 1, 2, 3}, h.audio.counts())

	h.run(time.Second, 100*time.Millisecond)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, state.StatusStopped, snap.Status)
	assert.Equal(t, 16*time.Second, snap.Elapsed)
}

func TestController_StopCancelsCuesAndIsIdempotent(t *testing.T) {
	h := newHarness(shape.Triangle, plan.Interval{Rounds: 1, DurationSeconds: 2})
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.run(4500*time.Millisecond, 100*time.Millisecond)
	require.Equal(t, []int{1, 1, 1}, h.audio.counts())

	require.NoError(t, h.ctrl.Stop())
	once := h.ctrl.Snapshot()
	assert.Equal(t, state.StatusStopped, once.Status)
	assert.Empty(t, h.ctrl.PendingCues())

	require.NoError(t, h.ctrl.Stop())
	assert.Equal(t, once, h.ctrl.Snapshot())

	h.run(5*time.Second, 100*time.Millisecond)
	assert.Equal(t, []int{1, 1, 1}, h.audio.counts())
	assert.Equal(t, 1, h.acquired())
	assert.Equal(t, 1, h.released())
	assert.Equal(t, []TransitionKind{TransitionStarted, TransitionStopped}, h.observer.kinds())
	assert.Equal(t, state.StatusRunning, h.observer.transitions[1].From)
}

func TestController_StartRejectsEmptyPlan(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 0, DurationSeconds: 4})

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, plan.ErrEmptyPlan))
	assert.True(t, plan.IsConfigurationError(err))

	assert.Equal(t, state.StatusIdle, h.ctrl.Status())
	assert.Zero(t, h.acquired())
	assert.Empty(t, h.audio.cues)
	assert.Empty(t, h.observer.transitions)
}

func TestController_StartWhileActive(t *testing.T) {
	h := newHarness(shape.Square, plan.DefaultInterval)
	require.NoError(t, h.ctrl.Start(context.Background()))
	id := h.ctrl.Snapshot().SessionID
	require.NotEmpty(t, id)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, 1, h.acquired())
	assert.Equal(t, id, h.ctrl.Snapshot().SessionID)

	require.NoError(t, h.ctrl.Pause())
	require.NoError(t, h.ctrl.Pause())
	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, state.StatusRunning, h.ctrl.Status())
	assert.Equal(t, id, h.ctrl.Snapshot().SessionID)
	assert.Equal(t,
		[]TransitionKind{TransitionStarted, TransitionPaused, TransitionResumed},
		h.observer.kinds())
}

func TestController_IllegalCommands(t *testing.T) {
	h := newHarness(shape.Square, plan.DefaultInterval)

	assert.True(t, state.IsIllegalTransition(h.ctrl.Pause()))
	assert.True(t, state.IsIllegalTransition(h.ctrl.Resume(context.Background())))
	assert.True(t, state.IsIllegalTransition(h.ctrl.Stop()))

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.True(t, state.IsIllegalTransition(h.ctrl.Resume(context.Background())))
	assert.True(t, state.IsIllegalTransition(h.ctrl.SetIntervalPlan([]plan.Interval{{Rounds: 1, DurationSeconds: 2}})))
	assert.True(t, state.IsIllegalTransition(h.ctrl.SetExerciseShape(shape.Triangle)))
	assert.Equal(t, shape.Square, h.ctrl.Snapshot().Shape)

	require.NoError(t, h.ctrl.Stop())
	assert.True(t, state.IsIllegalTransition(h.ctrl.Start(context.Background())))
	assert.Equal(t, state.StatusStopped, h.ctrl.Status())
}

func TestController_SetIntervalPlan(t *testing.T) {
	h := newHarness(shape.Square, plan.DefaultInterval)

	err := h.ctrl.SetIntervalPlan([]plan.Interval{{Rounds: -1, DurationSeconds: 4}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, plan.ErrInvalidInterval))
	assert.Equal(t, []plan.Interval{plan.DefaultInterval}, h.ctrl.Snapshot().Intervals)

	require.NoError(t, h.ctrl.SetIntervalPlan([]plan.Interval{{Rounds: 1, DurationSeconds: 1}}))
	require.NoError(t, h.ctrl.SetExerciseShape(shape.Triangle))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, 3, snap.TotalLegs)
	assert.Equal(t, time.Second, snap.LegDuration)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.run(3*time.Second, 100*time.Millisecond)
	assert.Equal(t, state.StatusStopped, h.ctrl.Status())
	assert.Equal(t, []string{"Inhale", "Hold", "Exhale", "Inhale"}, h.renderer.phaseNames())

	require.NoError(t, h.ctrl.ReplacePlan([]plan.Interval{{Rounds: 2, DurationSeconds: 3}}))
	assert.Equal(t, 6, h.ctrl.Snapshot().TotalLegs)
}

func TestController_ResetReturnsToIdle(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 2, DurationSeconds: 4})
	require.NoError(t, h.ctrl.Start(context.Background()))
	first := h.ctrl.Snapshot().SessionID
	h.run(9*time.Second, 100*time.Millisecond)

	h.ctrl.Reset()
	snap := h.ctrl.Snapshot()
	assert.Equal(t, state.StatusIdle, snap.Status)
	assert.Zero(t, snap.LegsCompleted)
	assert.Zero(t, snap.RoundsCompleted)
	assert.Zero(t, snap.Elapsed)
	assert.Empty(t, snap.SessionID)
	assert.Empty(t, h.ctrl.PendingCues())
	assert.False(t, h.wakeHeld())

	last := h.observer.transitions[len(h.observer.transitions)-1]
	assert.Equal(t, TransitionReset, last.Kind)
	assert.Equal(t, state.StatusRunning, last.From)
	assert.Equal(t, first, last.Snapshot.SessionID)
	assert.Equal(t, 2, last.Snapshot.LegsCompleted)

	cues := len(h.audio.cues)
	h.run(5*time.Second, 100*time.Millisecond)
	assert.Len(t, h.audio.cues, cues)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.NotEqual(t, first, h.ctrl.Snapshot().SessionID)
}

func TestController_LateTickDoesNotDrift(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 2, DurationSeconds: 4})
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.now.Advance(9 * time.Second)
	h.ctrl.Tick()

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 2, snap.LegsCompleted)
	assert.Equal(t, "Exhale", snap.PhaseName)
	assert.InDelta(t, 0.25, snap.Progress, 1e-9)
	assert.Equal(t, []int{1, 1, 1}, h.audio.counts())

	h.now.Advance(3 * time.Second)
	h.ctrl.Tick()
	assert.Equal(t, 3, h.ctrl.Snapshot().LegsCompleted)
}

func TestController_StatsOncePerSecond(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 1, DurationSeconds: 4})
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.run(5*time.Second, 100*time.Millisecond)

	seconds := make([]int, len(h.renderer.stats))
	for i, s := range h.renderer.stats {
		seconds[i] = s[0]
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seconds)

	// Progress only drops when a new leg begins, and then to zero.
	for i := 1; i < len(h.renderer.progress); i++ {
		if h.renderer.progress[i] < h.renderer.progress[i-1] {
			assert.Zero(t, h.renderer.progress[i])
		}
	}
}

func TestController_WakeLockFailureIsNotFatal(t *testing.T) {
	h := newHarness(shape.Triangle, plan.Interval{Rounds: 1, DurationSeconds: 1})
	h.wake.err = errors.New("inhibitor denied")

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.run(3*time.Second, 100*time.Millisecond)
	assert.Equal(t, state.StatusStopped, h.ctrl.Status())
	assert.Zero(t, h.acquired())
}

func TestController_SlowWakeLockDoesNotBlockCommands(t *testing.T) {
	h := newHarness(shape.Square, plan.Interval{Rounds: 1, DurationSeconds: 4})
	h.wake.block = make(chan struct{})

	started := make(chan error, 1)
	go func() {
		started <- h.ctrl.Start(context.Background())
	}()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("start waited for the wake-lock")
	}

	h.run(time.Second, 100*time.Millisecond)
	assert.Equal(t, time.Second, h.ctrl.Snapshot().Elapsed)

	// A release while the acquisition is in flight discards its handle.
	require.NoError(t, h.ctrl.Pause())
	close(h.wake.block)
	acquired, released := h.wakeCounts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)

	require.NoError(t, h.ctrl.Resume(context.Background()))
	assert.True(t, h.wakeHeld())
	assert.Equal(t, 2, h.acquired())
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{999 * time.Millisecond, "0:00"},
		{65 * time.Second, "1:05"},
		{10*time.Minute + 3*time.Second, "10:03"},
		{-time.Second, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.in))
	}
}
