package session

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// DefaultTickInterval is the pump period used when none is configured.
const DefaultTickInterval = 50 * time.Millisecond

// Ticker is the host pump surface of a controller.
type Ticker interface {
	Tick()
}

// Runner pumps a controller on a fixed period. Headless hosts use it in
// place of a rendering frame loop.
type Runner struct {
	target   Ticker
	interval time.Duration
}

// NewRunner creates a runner. A non-positive interval falls back to
// DefaultTickInterval.
func NewRunner(target Ticker, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{target: target, interval: interval}
}

// Interval returns the pump period.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Run ticks the target until the context is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	zlog.Debug().Dur("interval", r.interval).Msg("session pump started")
	for {
		select {
		case <-ctx.Done():
			zlog.Debug().Msg("session pump stopped")
			return ctx.Err()
		case <-ticker.C:
			r.target.Tick()
		}
	}
}
