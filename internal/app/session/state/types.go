// Package state provides the phase state machine of a breathing session.
package state

import "time"

// Status represents the session lifecycle status.
type Status int

const (
	StatusIdle    Status = iota // Not started, or reset
	StatusRunning               // Legs are advancing
	StatusPaused                // Frozen mid-leg
	StatusStopped               // Finished or stopped; only Reset leaves it
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether a session is in progress (running or paused).
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusPaused
}

// Snapshot is a copy of the counters held by the machine.
// While running, LegsCompleted == RoundsCompleted*legsPerRound + PhaseIndex.
type Snapshot struct {
	Status          Status
	PhaseIndex      int
	LegsCompleted   int
	RoundsCompleted int
	IntervalIndex   int
	LegDuration     time.Duration
}

// Change describes the leg that is in effect after a transition.
type Change struct {
	PhaseName       string
	PhaseIndex      int
	Round           int // zero-based index of the round in progress
	IntervalIndex   int
	Leg             int // zero-based index of the leg that begins
	Duration        time.Duration
	RoundCompleted  bool // a round finished with this transition
	IntervalChanged bool // the new leg belongs to a different interval
	Finished        bool // the plan is exhausted; no new leg begins
}
