// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Exercise ExerciseConfig `yaml:"exercise"`
	Pacer    PacerConfig    `yaml:"pacer"`
	Cues     CuesConfig     `yaml:"cues"`
	WakeLock WakeLockConfig `yaml:"wake_lock"`
	Settings SettingsConfig `yaml:"settings"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents server lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// ExerciseConfig is the exercise used when no saved settings exist.
type ExerciseConfig struct {
	Shape     string          `yaml:"shape" default:"square" validate:"oneof=triangle square box 3 4"`
	Intervals []plan.Interval `yaml:"intervals" validate:"dive"`
}

// PacerConfig represents the session pump configuration.
type PacerConfig struct {
	TickIntervalMs int  `yaml:"tick_interval_ms" default:"50" validate:"gte=10,lte=1000"`
	AutoStart      bool `yaml:"auto_start"`
}

// CuesConfig represents cue sink configuration.
type CuesConfig struct {
	Sinks []CueSinkConfig `yaml:"sinks" validate:"dive"`
}

// CueSinkConfig represents a single cue sink configuration.
type CueSinkConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// WakeLockConfig represents wake-lock configuration.
type WakeLockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Who     string `yaml:"who" default:"boxbreath"`
	Why     string `yaml:"why" default:"Breathing session in progress"`
	Mode    string `yaml:"mode" default:"block" validate:"oneof=block delay"`
}

// SettingsConfig represents the settings store configuration.
type SettingsConfig struct {
	Path string `yaml:"path"` // empty selects the user config dir
}

// HistoryConfig represents the session history store configuration.
type HistoryConfig struct {
	DBPath string `yaml:"db_path"` // empty disables history
	Limit  int    `yaml:"limit" default:"20" validate:"gte=1,lte=1000"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return Parse(data)
}

// Parse parses configuration from YAML data, applies environment
// overrides and defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if len(cfg.Exercise.Intervals) == 0 {
		cfg.Exercise.Intervals = []plan.Interval{plan.DefaultInterval}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("BOXBREATH_SETTINGS"); v != "" {
		c.Settings.Path = v
	}
	if v := os.Getenv("BOXBREATH_HISTORY_DB"); v != "" {
		c.History.DBPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	s, err := c.ExerciseShape()
	if err != nil {
		return err
	}
	if _, err := plan.New(c.Exercise.Intervals, s.LegsPerRound()); err != nil {
		return errors.Wrap(err, "invalid exercise intervals")
	}

	return nil
}

// ExerciseShape parses the configured shape.
func (c *Config) ExerciseShape() (shape.Shape, error) {
	s, err := shape.Parse(c.Exercise.Shape)
	if err != nil {
		return s, errors.Wrap(err, "invalid exercise shape")
	}
	return s, nil
}
