package state

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
)

// ErrIllegalTransition marks commands that are not allowed in the
// current status. The machine is left unchanged.
var ErrIllegalTransition = errors.New("illegal state transition")

// Machine advances phases, rounds and intervals of one session.
//
// Machine is not safe for concurrent use; the session controller
// serializes access.
type Machine struct {
	shape shape.Shape
	plan  *plan.Plan
	snap  Snapshot
}

// New creates a machine in the idle status.
func New(s shape.Shape, p *plan.Plan) *Machine {
	m := &Machine{shape: s, plan: p}
	m.resetCounters()
	return m
}

// Configure replaces the shape and plan. Only legal while idle or stopped.
func (m *Machine) Configure(s shape.Shape, p *plan.Plan) error {
	if m.snap.Status.Active() {
		return illegal("configure", m.snap.Status)
	}
	m.shape = s
	m.plan = p
	if m.snap.Status == StatusIdle {
		m.resetCounters()
	}
	return nil
}

// Snapshot returns a copy of the current counters.
func (m *Machine) Snapshot() Snapshot {
	return m.snap
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.snap.Status
}

// Shape returns the configured shape.
func (m *Machine) Shape() shape.Shape {
	return m.shape
}

// Plan returns the configured plan.
func (m *Machine) Plan() *plan.Plan {
	return m.plan
}

// Start moves from idle to running and returns the first leg.
func (m *Machine) Start() (Change, error) {
	if m.snap.Status != StatusIdle {
		return Change{}, illegal("start", m.snap.Status)
	}

	d, idx, err := m.plan.Resolve(0)
	if err != nil {
		return Change{}, err
	}

	m.snap = Snapshot{
		Status:        StatusRunning,
		IntervalIndex: idx,
		LegDuration:   d,
	}
	return m.change(false, false, false), nil
}

// CompleteLeg records the end of the current leg and returns the leg
// that follows. When the plan is exhausted the machine stops and the
// returned change has Finished set.
func (m *Machine) CompleteLeg() (Change, error) {
	if m.snap.Status != StatusRunning {
		return Change{}, illegal("complete leg", m.snap.Status)
	}

	legsPerRound := m.shape.LegsPerRound()
	m.snap.LegsCompleted++
	m.snap.PhaseIndex = m.snap.LegsCompleted % legsPerRound

	roundCompleted := false
	intervalChanged := false
	if m.snap.PhaseIndex == 0 {
		m.snap.RoundsCompleted++
		roundCompleted = true

		if m.snap.LegsCompleted < m.plan.TotalLegs() {
			d, idx, err := m.plan.Resolve(m.snap.LegsCompleted)
			if err != nil {
				return Change{}, err
			}
			intervalChanged = idx != m.snap.IntervalIndex
			m.snap.LegDuration = d
			m.snap.IntervalIndex = idx
		}
	}

	if m.snap.LegsCompleted >= m.plan.TotalLegs() {
		m.snap.Status = StatusStopped
		return m.change(roundCompleted, false, true), nil
	}

	return m.change(roundCompleted, intervalChanged, false), nil
}

// Pause moves from running to paused. Pausing while paused is a no-op
// and reports false.
func (m *Machine) Pause() (bool, error) {
	switch m.snap.Status {
	case StatusRunning:
		m.snap.Status = StatusPaused
		return true, nil
	case StatusPaused:
		return false, nil
	default:
		return false, illegal("pause", m.snap.Status)
	}
}

// Resume moves from paused to running. The current leg continues; it is
// not restarted.
func (m *Machine) Resume() error {
	if m.snap.Status != StatusPaused {
		return illegal("resume", m.snap.Status)
	}
	m.snap.Status = StatusRunning
	return nil
}

// Stop moves from running or paused to stopped. Stopping a stopped
// machine is a no-op and reports false.
func (m *Machine) Stop() (bool, error) {
	switch m.snap.Status {
	case StatusRunning, StatusPaused:
		m.snap.Status = StatusStopped
		return true, nil
	case StatusStopped:
		return false, nil
	default:
		return false, illegal("stop", m.snap.Status)
	}
}

// Reset returns to idle from any status and clears every counter.
func (m *Machine) Reset() {
	m.resetCounters()
}

// PhaseName returns the name of the current phase.
func (m *Machine) PhaseName() string {
	return m.shape.PhaseName(m.snap.PhaseIndex)
}

func (m *Machine) resetCounters() {
	m.snap = Snapshot{Status: StatusIdle}
	if d, idx, err := m.plan.Resolve(0); err == nil {
		m.snap.LegDuration = d
		m.snap.IntervalIndex = idx
	}
}

func (m *Machine) change(roundCompleted, intervalChanged, finished bool) Change {
	return Change{
		PhaseName:       m.shape.PhaseName(m.snap.PhaseIndex),
		PhaseIndex:      m.snap.PhaseIndex,
		Round:           m.snap.RoundsCompleted,
		IntervalIndex:   m.snap.IntervalIndex,
		Leg:             m.snap.LegsCompleted,
		Duration:        m.snap.LegDuration,
		RoundCompleted:  roundCompleted,
		IntervalChanged: intervalChanged,
		Finished:        finished,
	}
}

func illegal(command string, status Status) error {
	return errors.Mark(errors.Newf("cannot %s while %s", command, status), ErrIllegalTransition)
}

// IsIllegalTransition reports whether err marks an illegal transition.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}
