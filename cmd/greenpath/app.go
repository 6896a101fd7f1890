package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/config"
	"github.com/greenpath/greenpath/internal/database"
	"github.com/greenpath/greenpath/internal/encourage"
	"github.com/greenpath/greenpath/internal/monitor"
	"github.com/greenpath/greenpath/internal/preferences"
	"github.com/greenpath/greenpath/internal/provider/resilience"
	"github.com/greenpath/greenpath/internal/telemetry"
)

// app holds the components shared by all commands.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer

	telemetry *telemetry.Provider
	registry  *resilience.Registry
	backend   *backend.Client
	monitor   *monitor.Monitor
	loader    *monitor.Loader
	prefs     *preferences.Service
	selector  *encourage.Selector

	closers []func(context.Context) error
}

// overrides are the persistent flags that take precedence over the environment.
type overrides struct {
	envFile  string
	apiURL   string
	storage  string
	logLevel string
}

func (o overrides) apply(cfg *config.Config) {
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.storage != "" {
		cfg.Storage = o.storage
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

// setup loads configuration and wires every component.
func (a *app) setup(ctx context.Context, o overrides) error {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(a.stderr, cfg)

	cfg.Telemetry.ServiceVersion = Version
	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = tp
	a.closers = append(a.closers, tp.Shutdown)
	if tp.Enabled() {
		a.log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	storage, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	store := preferences.NewStore(preferences.StoreConfig{Storage: storage, Logger: a.log})
	a.prefs = preferences.NewService(preferences.ServiceConfig{Store: store, Logger: a.log})

	a.registry = resilience.NewRegistry()
	a.backend = backend.NewClient(backend.ClientConfig{
		BaseURL:  cfg.APIURL,
		Timeout:  cfg.HTTPTimeout,
		Registry: a.registry,
		Tracer:   tp.Tracer,
		Logger:   a.log,
	})

	metrics, err := monitor.NewMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("init monitor metrics: %w", err)
	}
	a.monitor = monitor.New(monitor.Config{Backend: a.backend, Logger: a.log, Metrics: metrics})

	grace := cfg.GracePeriod
	if grace == 0 {
		grace = -1
	}
	a.loader = monitor.NewLoader(monitor.LoaderConfig{
		Monitor:     a.monitor,
		Backend:     a.backend,
		GracePeriod: grace,
		Logger:      a.log,
	})
	a.selector = encourage.NewSelector(nil)
	return nil
}

// openStorage opens the configured preference storage.
func (a *app) openStorage(ctx context.Context) (preferences.Storage, error) {
	switch a.cfg.Storage {
	case config.StorageMemory:
		return preferences.NewMemoryStorage(), nil

	case config.StoragePostgres:
		installationID, err := a.cfg.ResolveInstallationID()
		if err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		storage := preferences.NewPostgresStorage(pool, installationID)
		if err := storage.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.log.Debug().
			Str("host", a.cfg.Database.Host).
			Str("database", a.cfg.Database.Database).
			Msg("database connected")
		return storage, nil

	default:
		storage, err := preferences.OpenSQLiteStorage(a.cfg.StatePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return storage.Close() })
		return storage, nil
	}
}

// run wraps a command so the app is closed however the command ends.
// Cobra skips post-run hooks after an error.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.close(); err == nil {
			err = cerr
		}
		return err
	}
}

// close releases everything setup opened, newest first.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newLogger writes human-readable logs in development or to a terminal,
// and JSON otherwise.
func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	tty := isTerminalWriter(w)
	if cfg.IsDevelopment() || tty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !tty}
	}
	return zerolog.New(w).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", telemetry.DefaultServiceName).
		Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
