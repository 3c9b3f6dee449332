// Package cue provides the scheduler for cue events tied to leg
// boundaries.
package cue

import "time"

// WarningLead is how long before the end of a leg the interval-end and
// plan-end cues fire.
const WarningLead = time.Second

// Kind represents the kind of a scheduled cue.
type Kind int

const (
	KindPhaseChange Kind = iota // A leg began
	KindIntervalEnd             // Last leg of an interval is about to end
	KindPlanEnd                 // Last leg of the plan is about to end
	KindAutoStop                // Last leg of the plan has ended
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPhaseChange:
		return "phase_change"
	case KindIntervalEnd:
		return "interval_end"
	case KindPlanEnd:
		return "plan_end"
	case KindAutoStop:
		return "auto_stop"
	default:
		return "unknown"
	}
}

// Count returns the number of beeps an audio sink plays for the kind.
// KindAutoStop is a control cue and plays nothing.
func (k Kind) Count() int {
	switch k {
	case KindPhaseChange:
		return 1
	case KindIntervalEnd:
		return 2
	case KindPlanEnd:
		return 3
	default:
		return 0
	}
}

// Audible reports whether the kind produces a sound.
func (k Kind) Audible() bool {
	return k.Count() > 0
}

// Cue is a scheduled cue event. Offset is relative to the start of the
// leg the cue belongs to, measured on the run clock.
type Cue struct {
	ID     uint64
	Kind   Kind
	Leg    int
	Offset time.Duration
}
