// Package settings persists the user's exercise choice (shape and
// intervals) as YAML.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
)

const (
	appName          = "boxbreath"
	settingsFileName = "settings.yaml"
)

// Settings is the persisted exercise choice.
type Settings struct {
	Shape     shape.Shape
	Intervals []plan.Interval
}

// Default returns the settings used when nothing has been saved.
func Default() Settings {
	return Settings{
		Shape:     shape.Square,
		Intervals: []plan.Interval{plan.DefaultInterval},
	}
}

// Summary describes the settings for display, e.g.
// "Square · 5 rounds · 5r × 4s".
func (s Settings) Summary() string {
	total := 0
	for _, iv := range s.Intervals {
		total += iv.Rounds
	}
	return fmt.Sprintf("%s · %d rounds · %s", s.Shape.DisplayName(), total, plan.FormatIntervals(s.Intervals))
}

type yamlSettings struct {
	Shape     string          `yaml:"shape"`
	Intervals []plan.Interval `yaml:"intervals"`
}

// Store reads and writes settings at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for path. An empty path selects
// settings.yaml under the user config dir.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path}, nil
}

// DefaultPath returns the settings path under the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(configDir, appName, settingsFileName), nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings. When the file does not exist the defaults
// are returned and found is false.
func (s *Store) Load() (settings Settings, found bool, err error) {
	settings = Default()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, false, nil
		}
		return settings, false, errors.Wrap(err, "read settings file")
	}

	var fileData yamlSettings
	if err := yaml.Unmarshal(raw, &fileData); err != nil {
		return settings, false, errors.Wrap(err, "parse settings yaml")
	}

	if strings.TrimSpace(fileData.Shape) != "" {
		sh, err := shape.Parse(fileData.Shape)
		if err != nil {
			return settings, false, errors.Wrap(err, "parse settings shape")
		}
		settings.Shape = sh
	}
	if len(fileData.Intervals) > 0 {
		if _, err := plan.New(fileData.Intervals, settings.Shape.LegsPerRound()); err != nil {
			return settings, false, errors.Wrap(err, "invalid saved intervals")
		}
		settings.Intervals = fileData.Intervals
	}

	zlog.Debug().Str("path", s.path).Str("settings", settings.Summary()).Msg("settings loaded")
	return settings, true, nil
}

// Save validates and writes the settings. The file is replaced
// atomically.
func (s *Store) Save(settings Settings) error {
	if !settings.Shape.Valid() {
		return errors.Wrapf(shape.ErrUnknownShape, "shape %d", int(settings.Shape))
	}
	if _, err := plan.New(settings.Intervals, settings.Shape.LegsPerRound()); err != nil {
		return errors.Wrap(err, "refusing to save invalid intervals")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	serialized, err := yaml.Marshal(yamlSettings{
		Shape:     settings.Shape.String(),
		Intervals: settings.Intervals,
	})
	if err != nil {
		return errors.Wrap(err, "marshal settings yaml")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, serialized, 0o644); err != nil {
		return errors.Wrap(err, "write settings file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace settings file")
	}

	zlog.Info().Str("path", s.path).Str("settings", settings.Summary()).Msg("settings saved")
	return nil
}
