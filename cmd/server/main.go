// Package main provides the pacer daemon entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/boxbreath/internal/api/connect"
	"github.com/osa030/boxbreath/internal/app/cuesink"
	"github.com/osa030/boxbreath/internal/app/session"
	"github.com/osa030/boxbreath/internal/infra/config"
	"github.com/osa030/boxbreath/internal/infra/history"
	"github.com/osa030/boxbreath/internal/infra/logger"
	"github.com/osa030/boxbreath/internal/infra/settings"
	"github.com/osa030/boxbreath/internal/infra/wakelock"
)

var (
	app        = kingpin.New("boxbreath-server", "boxbreath breathing pacer daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-cue-sinks command
	listSinksCmd = app.Command("list-cue-sinks", "List available cue sink types and exit")
)

func init() {
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listSinksCmd.FullCommand() {
		printCueSinks()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, cleanup, err := buildOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionMgr := session.NewManager(cfg, opts)

	mux := apiconnect.NewMux(sessionMgr, cfg.Admin.Token)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	runErrCh := make(chan error, 1)

	go func() {
		runErrCh <- sessionMgr.Run(ctx)
	}()

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	case err := <-runErrCh:
		if err != nil {
			runErr = errors.Wrap(err, "session pump error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close session manager first to end watch streams and record the
	// interrupted session.
	sessionMgr.Close()
	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// buildOptions opens the stores and sinks the session manager needs. The
// returned cleanup closes whatever was opened; on error nothing is left
// open.
func buildOptions(ctx context.Context, cfg *config.Config) (session.Options, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				zlog.Warn().Err(err).Msg("cleanup failed")
			}
		}
	}

	exerciseShape, err := cfg.ExerciseShape()
	if err != nil {
		return session.Options{}, nil, err
	}
	opts := session.Options{
		Shape:     exerciseShape,
		Intervals: cfg.Exercise.Intervals,
	}

	store, err := settings.NewStore(cfg.Settings.Path)
	if err != nil {
		zlog.Warn().Err(err).Msg("settings store unavailable, changes will not persist")
	} else {
		saved, found, err := store.Load()
		switch {
		case err != nil:
			zlog.Warn().Err(err).Str("path", store.Path()).Msg("ignoring unreadable settings")
		case found:
			opts.Shape = saved.Shape
			opts.Intervals = saved.Intervals
			zlog.Info().Str("settings", saved.Summary()).Msg("restored saved settings")
		}
		opts.Settings = store
	}

	if cfg.History.DBPath != "" {
		hist, err := history.Open(ctx, cfg.History.DBPath)
		if err != nil {
			return session.Options{}, nil, errors.Wrap(err, "failed to open history store")
		}
		closers = append(closers, hist)
		opts.History = hist
		zlog.Info().Str("path", cfg.History.DBPath).Msg("session history enabled")
	}

	chain, err := cuesink.NewChainFromConfig(cfg)
	if err != nil {
		cleanup()
		return session.Options{}, nil, errors.Wrap(err, "failed to create cue sinks")
	}
	opts.Cues = chain
	zlog.Info().Str("sinks", chain.Name()).Msg("cue sinks ready")

	provider := wakelock.New(cfg.WakeLock.Enabled, cfg.WakeLock.Who, cfg.WakeLock.Why, cfg.WakeLock.Mode)
	if c, ok := provider.(io.Closer); ok {
		closers = append(closers, c)
	}
	opts.WakeLock = provider

	return opts, cleanup, nil
}

// printCueSinks prints available cue sink types.
func printCueSinks() {
	fmt.Println("Available Cue Sinks:")
	for _, t := range cuesink.Types() {
		fmt.Printf("  %s\n", t)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
