package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"samizdat/internal/config"
	"samizdat/internal/logger"
	"samizdat/internal/metrics"
	"samizdat/internal/nodes"
	"samizdat/internal/store"
)

// App holds the collaborators shared by every session. It is built once by
// Boot and handed to listeners and the shell.
type App struct {
	ConfigPath string
	Config     *config.Config
	Logger     *slog.Logger
	Store      *store.Store
	Nodes      *nodes.Manager
	Metrics    *metrics.Metrics

	opts     Options
	logFiles logger.Files
}

type Options struct {
	Quiet bool
	// Stdio keeps console logging off stdout.
	Stdio bool
	// Metrics registers Prometheus collectors.
	Metrics bool
}

func (o Options) logger() logger.Options {
	out := logger.Options{Quiet: o.Quiet}
	if o.Stdio {
		out.Console = os.Stderr
	}
	return out
}

func Boot(configPath string, opts Options) (*App, error) {
	if configPath == "" {
		configPath = "config.yml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, files := logger.Setup(cfg.Loggers, opts.logger())

	dir := cfg.Paths.Data
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = files.Close()
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}

	db, err := store.New(filepath.Clean(filepath.Join(dir, "data.sqlite3")), opts.Quiet || !cfg.Debug)
	if err != nil {
		_ = files.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	a := &App{
		ConfigPath: configPath,
		Config:     cfg,
		Logger:     log,
		Store:      db,
		Nodes:      nodes.NewManager(cfg.MaxNodes),
		opts:       opts,
		logFiles:   files,
	}
	if opts.Metrics && cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	if !opts.Quiet {
		log.Info("Successfully loaded configuration", "file", configPath, "includes", len(cfg.LoadedFiles)-1)
	}
	return a, nil
}

// Reload reads the config file again and returns an App with the new config
// and loggers. The store, nodes and metrics are shared with a, so sessions
// already running on a keep working. Listen settings take effect once the
// caller restarts its listeners with the result.
func (a *App) Reload() (*App, error) {
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	log, files := logger.Setup(cfg.Loggers, a.opts.logger())

	next := *a
	next.Config = cfg
	next.Logger = log
	// Old sessions may still write to the previous files.
	next.logFiles = append(append(logger.Files{}, a.logFiles...), files...)

	if cfg.MaxNodes != a.Nodes.Max() {
		log.Warn("maxNodes changes need a restart", "current", a.Nodes.Max(), "configured", cfg.MaxNodes)
	}
	log.Info("Reloaded configuration", "file", a.ConfigPath)
	return &next, nil
}

// Close releases the store and log files.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.logFiles.Close())
}
