package cuesink

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/boxbreath/internal/infra/config"
)

// NewChainFromConfig creates a sink chain from configuration. An empty
// configuration yields a chain with a single bell sink.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	sinkConfigs := cfg.Cues.Sinks
	if len(sinkConfigs) == 0 {
		sinkConfigs = []config.CueSinkConfig{{Type: "bell", DisplayName: "bell"}}
	}

	var sinks []SinkWithMetadata

	for i, scfg := range sinkConfigs {
		zlog.Debug().Msgf("creating cue sink: index=%d type=%s settings=%+v", i+1, scfg.Type, scfg.Settings)

		sink, err := New(scfg.Type, scfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create cue sink (index %d, type %s)", i, scfg.Type)
		}

		name := scfg.DisplayName
		if name == "" {
			name = scfg.Type
		}
		sinks = append(sinks, SinkWithMetadata{Sink: sink, DisplayName: name})

		zlog.Info().Msgf("registered cue sink: index=%d type=%s display_name=%s", i+1, scfg.Type, name)
	}

	return NewChain(sinks), nil
}

// New creates a single sink by type name.
func New(sinkType string, settings map[string]any) (Sink, error) {
	var sink Sink
	var err error

	switch sinkType {
	case "bell":
		sink, err = NewBellSinkFromSettings(settings)
	case "command":
		sink, err = NewCommandSinkFromSettings(settings)
	case "log":
		sink, err = NewLogSinkFromSettings(settings)
	default:
		return nil, errors.Newf("unsupported cue sink type: %s", sinkType)
	}

	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Types returns the supported sink type names.
func Types() []string {
	return []string{"bell", "command", "log"}
}
