package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTicker struct {
	ticks atomic.Int64
}

func (c *countingTicker) Tick() {
	c.ticks.Add(1)
}

func TestNewRunner_DefaultInterval(t *testing.T) {
	r := NewRunner(&countingTicker{}, 0)
	assert.Equal(t, DefaultTickInterval, r.Interval())
}

func TestRunner_RunTicksUntilCancelled(t *testing.T) {
	target := &countingTicker{}
	r := NewRunner(target, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return target.ticks.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
