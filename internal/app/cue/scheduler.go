package cue

import (
	"sort"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/boxbreath/internal/domain/plan"
)

// Scheduler holds the set of cues that are scheduled but not yet fired.
// Every scheduling pass replaces the whole set, so a cue scheduled for
// one leg can never fire during another.
//
// Scheduler is not safe for concurrent use; the session controller
// serializes access.
type Scheduler struct {
	pending    []Cue
	suspended  []Cue
	nextID     uint64
	generation uint64
}

// NewScheduler creates an empty cue scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make([]Cue, 0, 4),
	}
}

// ScheduleLeg cancels every outstanding cue and schedules the cues for
// the leg about to begin. leg is the zero-based index of that leg,
// d its duration and intervalIndex the interval it belongs to.
// It returns the cues that were scheduled.
func (s *Scheduler) ScheduleLeg(leg int, d time.Duration, p *plan.Plan, intervalIndex int) []Cue {
	s.CancelAll()

	warnAt := d - WarningLead
	if warnAt < 0 {
		warnAt = 0
	}

	s.add(KindPhaseChange, leg, 0)

	if leg == p.LegsUpToInterval(intervalIndex)-1 {
		s.add(KindIntervalEnd, leg, warnAt)
	}

	if leg == p.TotalLegs()-1 {
		s.add(KindPlanEnd, leg, warnAt)
		s.add(KindAutoStop, leg, d)
	}

	zlog.Debug().Msgf("cue: scheduled leg=%d duration=%v interval=%d pending=%d generation=%d",
		leg, d, intervalIndex, len(s.pending), s.generation)

	return s.Pending()
}

// Poll returns the cues for leg whose offset is at or before legElapsed,
// ordered by offset and then by kind, and removes them from the set.
// Cues tagged with any other leg are discarded without firing.
func (s *Scheduler) Poll(leg int, legElapsed time.Duration) []Cue {
	if len(s.pending) == 0 {
		return nil
	}

	var due []Cue
	kept := s.pending[:0]
	for _, c := range s.pending {
		switch {
		case c.Leg != leg:
			zlog.Debug().Msgf("cue: dropping stale cue id=%d kind=%s leg=%d current_leg=%d", c.ID, c.Kind, c.Leg, leg)
		case c.Offset <= legElapsed:
			due = append(due, c)
		default:
			kept = append(kept, c)
		}
	}
	s.pending = kept

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Offset != due[j].Offset {
			return due[i].Offset < due[j].Offset
		}
		return due[i].Kind < due[j].Kind
	})
	return due
}

// Cancel removes a single cue. It returns false if the cue already fired
// or was cancelled.
func (s *Scheduler) Cancel(id uint64) bool {
	for i, c := range s.pending {
		if c.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	for i, c := range s.suspended {
		if c.ID == id {
			s.suspended = append(s.suspended[:i], s.suspended[i+1:]...)
			return true
		}
	}
	return false
}

// CancelAll invalidates every outstanding cue, including suspended ones,
// and returns how many were cancelled.
func (s *Scheduler) CancelAll() int {
	n := len(s.pending) + len(s.suspended)
	s.pending = s.pending[:0]
	s.suspended = nil
	s.generation++
	return n
}

// Suspend cancels the outstanding cues and keeps a copy so that Restore
// can reschedule them. Used on pause.
func (s *Scheduler) Suspend() int {
	if len(s.pending) > 0 {
		s.suspended = append(s.suspended, s.pending...)
	}
	s.pending = s.pending[:0]
	s.generation++
	return len(s.suspended)
}

// Restore reschedules the cues removed by Suspend under fresh handles.
// Offsets are leg-relative on the run clock, which excludes the paused
// span, so the remaining time of each cue is unchanged.
func (s *Scheduler) Restore() int {
	s.generation++
	for _, c := range s.suspended {
		s.add(c.Kind, c.Leg, c.Offset)
	}
	n := len(s.suspended)
	s.suspended = nil
	return n
}

// Pending returns a copy of the outstanding cues.
func (s *Scheduler) Pending() []Cue {
	result := make([]Cue, len(s.pending))
	copy(result, s.pending)
	return result
}

// Suspended reports whether cues are held by Suspend.
func (s *Scheduler) Suspended() bool {
	return len(s.suspended) > 0
}

// Generation returns a counter bumped on every cancel, suspend or
// restore.
func (s *Scheduler) Generation() uint64 {
	return s.generation
}

func (s *Scheduler) add(kind Kind, leg int, offset time.Duration) {
	s.nextID++
	s.pending = append(s.pending, Cue{
		ID:     s.nextID,
		Kind:   kind,
		Leg:    leg,
		Offset: offset,
	})
}
