package cuesink

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// SinkWithMetadata wraps a sink with its metadata.
type SinkWithMetadata struct {
	Sink        Sink
	DisplayName string
}

// Chain plays every cue on all of its sinks in order.
type Chain struct {
	sinks []SinkWithMetadata
}

// NewChain creates a new sink chain.
func NewChain(sinks []SinkWithMetadata) *Chain {
	return &Chain{sinks: sinks}
}

// Len returns the number of sinks in the chain.
func (c *Chain) Len() int {
	return len(c.sinks)
}

// Play renders the cue on every sink. A failing sink does not stop the
// others; an error is returned only when every sink failed.
func (c *Chain) Play(ctx context.Context, count int) error {
	if count <= 0 || len(c.sinks) == 0 {
		return nil
	}

	failed := 0
	for i, sm := range c.sinks {
		if err := sm.Sink.Play(ctx, count); err != nil {
			failed++
			zlog.Warn().Msgf("cue sink failed: index=%d sink=%s error=%v", i+1, sm.DisplayName, err)
			continue
		}
		zlog.Debug().Msgf("cue played: sink=%s count=%d", sm.DisplayName, count)
	}

	if failed == len(c.sinks) {
		return errors.Newf("all %d cue sinks failed", failed)
	}
	return nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "sink_chain"
}
