package cuesink

import (
	"context"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// LogConfig represents the configuration for LogSink.
type LogConfig struct {
	Level string `mapstructure:"level" default:"info" validate:"oneof=debug info warn"`
}

// LogSink records cues in the structured log.
type LogSink struct {
	level zerolog.Level
}

// NewLogSinkFromSettings creates a log sink from free-form settings.
func NewLogSinkFromSettings(settings map[string]any) (*LogSink, error) {
	var cfg LogConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return &LogSink{level: level}, nil
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Play(_ context.Context, count int) error {
	zlog.WithLevel(s.level).Int("count", count).Msg("cue")
	return nil
}
