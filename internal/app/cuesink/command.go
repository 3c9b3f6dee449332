package cuesink

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// CommandConfig represents the configuration for CommandSink.
type CommandConfig struct {
	Command   string `mapstructure:"command" validate:"required"`
	TimeoutMs int    `mapstructure:"timeout_ms" default:"2000" validate:"gte=100,lte=60000"`
}

// CommandSink runs a shell command for every cue. The beep count is
// passed in the CUE_COUNT environment variable.
type CommandSink struct {
	command string
	timeout time.Duration
}

// NewCommandSink creates a command sink.
func NewCommandSink(command string, timeout time.Duration) *CommandSink {
	return &CommandSink{command: command, timeout: timeout}
}

// NewCommandSinkFromSettings creates a command sink from free-form settings.
func NewCommandSinkFromSettings(settings map[string]any) (*CommandSink, error) {
	var cfg CommandConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("command sink config: %+v", cfg)
	return NewCommandSink(cfg.Command, time.Duration(cfg.TimeoutMs)*time.Millisecond), nil
}

func (s *CommandSink) Name() string {
	return "command"
}

// Play runs the command with sh -c and waits for it to finish.
func (s *CommandSink) Play(ctx context.Context, count int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", s.command)
	cmd.Env = append(os.Environ(), "CUE_COUNT="+strconv.Itoa(count))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "cue command failed: %s", string(out))
	}
	return nil
}
