package cuesink

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// DefaultBeepGap is the pause between the beeps of one burst.
const DefaultBeepGap = 150 * time.Millisecond

// BellConfig represents the configuration for BellSink.
type BellConfig struct {
	Output string `mapstructure:"output" default:"stdout" validate:"oneof=stdout stderr"`
	GapMs  int    `mapstructure:"gap_ms" default:"150" validate:"gte=0,lte=2000"`
}

// BellSink writes the terminal bell character once per beep.
type BellSink struct {
	mu  sync.Mutex
	out io.Writer
	gap time.Duration
}

// NewBellSink creates a bell sink writing to out.
func NewBellSink(out io.Writer, gap time.Duration) *BellSink {
	return &BellSink{out: out, gap: gap}
}

// NewBellSinkFromSettings creates a bell sink from free-form settings.
func NewBellSinkFromSettings(settings map[string]any) (*BellSink, error) {
	var cfg BellConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	zlog.Debug().Msgf("bell sink config: %+v", cfg)
	return NewBellSink(out, time.Duration(cfg.GapMs)*time.Millisecond), nil
}

func (s *BellSink) Name() string {
	return "bell"
}

// Play writes count bell characters spaced by the configured gap.
func (s *BellSink) Play(ctx context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < count; i++ {
		if i > 0 {
			if err := sleep(ctx, s.gap); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(s.out, "\a"); err != nil {
			return errors.Wrap(err, "failed to write bell")
		}
	}
	return nil
}
