package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/osa030/boxbreath/internal/app/session/state"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
)

// AudioSink plays cue bursts. PlayCue is fire-and-forget and must not block.
type AudioSink interface {
	PlayCue(count int)
}

// Renderer receives the observable outputs of a session.
// Calls are made with the controller lock held; implementations must not
// block or call back into the controller.
type Renderer interface {
	OnPhaseChanged(phaseName string, round, interval int)
	OnProgress(fraction float64)
	OnStatsChanged(elapsedSeconds, rounds int)
}

// SnapshotRenderer is an optional Renderer extension for hosts that
// publish updates after the controller lock is released. When implemented
// it replaces OnPhaseChanged and OnStatsChanged, and each call carries the
// snapshot taken at the moment of the change.
type SnapshotRenderer interface {
	OnPhaseChangedAt(phaseName string, round, interval int, snap Snapshot)
	OnStatsChangedAt(elapsedSeconds, rounds int, snap Snapshot)
}

// WakeLock acquires a platform wake-lock. Closing the returned handle
// releases the lock. Acquire runs outside the controller lock.
type WakeLock interface {
	Acquire(ctx context.Context) (io.Closer, error)
}

// LifecycleObserver is notified after every status transition.
type LifecycleObserver interface {
	OnTransition(t Transition)
}

// TransitionKind identifies a lifecycle transition.
type TransitionKind int

const (
	TransitionStarted   TransitionKind = iota // Idle to Running
	TransitionPaused                          // Running to Paused
	TransitionResumed                         // Paused to Running
	TransitionCompleted                       // plan exhausted
	TransitionStopped                         // stopped by command
	TransitionReset                           // back to Idle
)

// String returns the string representation of the transition kind.
func (k TransitionKind) String() string {
	switch k {
	case TransitionStarted:
		return "started"
	case TransitionPaused:
		return "paused"
	case TransitionResumed:
		return "resumed"
	case TransitionCompleted:
		return "completed"
	case TransitionStopped:
		return "stopped"
	case TransitionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Transition describes a status change together with the session
// snapshot taken right after it.
type Transition struct {
	Kind     TransitionKind
	From     state.Status
	Snapshot Snapshot
}

// Snapshot is everything a host needs to display a session.
type Snapshot struct {
	SessionID       string
	Status          state.Status
	Shape           shape.Shape
	PhaseName       string
	PhaseIndex      int
	Round           int // one-based round in progress; zero while idle
	RoundsCompleted int
	TotalRounds     int
	LegsCompleted   int
	TotalLegs       int
	IntervalIndex   int
	LegDuration     time.Duration
	Elapsed         time.Duration
	Progress        float64
	StartedAt       time.Time
	Intervals       []plan.Interval
}

// ElapsedText formats the elapsed time as m:ss.
func (s Snapshot) ElapsedText() string {
	return FormatElapsed(s.Elapsed)
}

// FormatElapsed formats a duration as m:ss, truncating to whole seconds.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

type nopRenderer struct{}

func (nopRenderer) OnPhaseChanged(string, int, int) {}
func (nopRenderer) OnProgress(float64)              {}
func (nopRenderer) OnStatsChanged(int, int)         {}

type nopAudio struct{}

func (nopAudio) PlayCue(int) {}
