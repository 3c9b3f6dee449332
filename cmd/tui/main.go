// Package main provides the terminal pacer entry point.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/boxbreath/internal/app/cuesink"
	"github.com/osa030/boxbreath/internal/domain/plan"
	"github.com/osa030/boxbreath/internal/domain/shape"
	"github.com/osa030/boxbreath/internal/infra/logger"
	"github.com/osa030/boxbreath/internal/infra/settings"
	"github.com/osa030/boxbreath/internal/infra/wakelock"
	"github.com/osa030/boxbreath/internal/tui"
)

var (
	app          = kingpin.New("boxbreath", "Box and triangle breathing pacer")
	settingsPath = app.Flag("settings", "Path to the settings file (default: user config dir)").Envar("BOXBREATH_SETTINGS").String()
	shapeFlag    = app.Flag("shape", "Override the saved shape (triangle or square)").String()
	planFlag     = app.Flag("plan", `Override the saved plan, e.g. "5x4,2x6"`).String()
	wakeLock     = app.Flag("wake-lock", "Inhibit idle sleep while a session runs").Default("true").Bool()
	bell         = app.Flag("bell", "Ring the terminal bell on cues").Default("true").Bool()
	cueCommand   = app.Flag("cue-command", "Shell command run per cue; CUE_COUNT holds the beep count").String()
	verbose      = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile      = app.Flag("logfile", "Path to log file (default: no logging)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// The alternate screen owns stdout, so logs go to a file or nowhere.
	loggerConfig := logger.Config{Output: "none", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	store, err := settings.NewStore(*settingsPath)
	if err != nil {
		return err
	}
	saved, _, err := store.Load()
	if err != nil {
		zlog.Warn().Err(err).Str("path", store.Path()).Msg("ignoring unreadable settings")
	}

	if *shapeFlag != "" {
		s, err := shape.Parse(*shapeFlag)
		if err != nil {
			return err
		}
		saved.Shape = s
	}
	if *planFlag != "" {
		intervals, err := plan.Parse(*planFlag)
		if err != nil {
			return err
		}
		if _, err := plan.New(intervals, saved.Shape.LegsPerRound()); err != nil {
			return err
		}
		saved.Intervals = intervals
	}

	provider := wakelock.New(*wakeLock, "boxbreath", "breathing session in progress", "block")
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}

	model := tui.NewModel(tui.Options{
		Shape:     saved.Shape,
		Intervals: saved.Intervals,
		Cues:      buildCues(),
		WakeLock:  provider,
		Settings:  store,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "failed to run program")
	}
	return nil
}

func buildCues() cuesink.Sink {
	var sinks []cuesink.SinkWithMetadata
	if *bell {
		sinks = append(sinks, cuesink.SinkWithMetadata{
			Sink:        cuesink.NewBellSink(os.Stderr, cuesink.DefaultBeepGap),
			DisplayName: "bell",
		})
	}
	if *cueCommand != "" {
		sinks = append(sinks, cuesink.SinkWithMetadata{
			Sink:        cuesink.NewCommandSink(*cueCommand, 5*time.Second),
			DisplayName: "command",
		})
	}
	return cuesink.NewChain(sinks)
}
