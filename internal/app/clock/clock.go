// Package clock provides the run clock that measures session time
// while excluding paused spans.
package clock

import "time"

// NowFunc returns the current time. Production code uses time.Now, whose
// monotonic reading keeps elapsed time immune to wall clock changes.
type NowFunc func() time.Time

// RunClock measures elapsed session time and the elapsed time of the
// current leg. Paused spans are excluded from both.
//
// RunClock is not safe for concurrent use; the session controller
// serializes access.
type RunClock struct {
	now NowFunc

	started     bool
	startedAt   time.Time
	pausedAt    time.Time
	paused      bool
	pausedTotal time.Duration

	legStart time.Duration // elapsed offset at which the current leg began
}

// New creates a run clock using the given time source.
// A nil source falls back to time.Now.
func New(now NowFunc) *RunClock {
	if now == nil {
		now = time.Now
	}
	return &RunClock{now: now}
}

// Start records the reference instant and begins the first leg at zero.
func (c *RunClock) Start() {
	c.startedAt = c.now()
	c.started = true
	c.paused = false
	c.pausedAt = time.Time{}
	c.pausedTotal = 0
	c.legStart = 0
}

// Started reports whether Start has been called since the last Reset.
func (c *RunClock) Started() bool {
	return c.started
}

// Paused reports whether the clock is frozen.
func (c *RunClock) Paused() bool {
	return c.paused
}

// Pause freezes the clock. Subsequent Elapsed calls return the same value
// until Resume. Pausing an already paused clock is a no-op.
func (c *RunClock) Pause() {
	if !c.started || c.paused {
		return
	}
	c.pausedAt = c.now()
	c.paused = true
}

// Resume shifts the reference forward by the paused span so that
// Elapsed continues from where it stopped.
func (c *RunClock) Resume() {
	if !c.started || !c.paused {
		return
	}
	c.pausedTotal += c.now().Sub(c.pausedAt)
	c.pausedAt = time.Time{}
	c.paused = false
}

// Reset returns the clock to its unstarted state.
func (c *RunClock) Reset() {
	*c = RunClock{now: c.now}
}

// Elapsed returns the time since Start minus every paused span.
func (c *RunClock) Elapsed() time.Duration {
	if !c.started {
		return 0
	}
	end := c.now()
	if c.paused {
		end = c.pausedAt
	}
	elapsed := end.Sub(c.startedAt) - c.pausedTotal
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// PausedTotal returns the accumulated paused time, including the
// current pause if any.
func (c *RunClock) PausedTotal() time.Duration {
	total := c.pausedTotal
	if c.paused {
		total += c.now().Sub(c.pausedAt)
	}
	return total
}

// BeginLeg starts a new leg at the current elapsed time.
func (c *RunClock) BeginLeg() {
	c.legStart = c.Elapsed()
}

// AdvanceLeg starts the next leg exactly where a leg of duration d that
// began at the current leg start ends. Late host ticks therefore never
// accumulate drift.
func (c *RunClock) AdvanceLeg(d time.Duration) {
	c.legStart += d
}

// LegStart returns the elapsed offset at which the current leg began.
func (c *RunClock) LegStart() time.Duration {
	return c.legStart
}

// LegElapsed returns the time spent in the current leg.
func (c *RunClock) LegElapsed() time.Duration {
	elapsed := c.Elapsed() - c.legStart
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// LegProgress returns the fraction of a leg of duration d that has
// elapsed, clamped to [0, 1].
func (c *RunClock) LegProgress(d time.Duration) float64 {
	if d <= 0 {
		return 1
	}
	progress := float64(c.LegElapsed()) / float64(d)
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}
