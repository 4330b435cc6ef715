// Package app wires configuration, storage, extraction and the import
// pipeline together and runs the long-lived service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chravel/chravel-import/internal/api"
	"github.com/chravel/chravel-import/internal/config"
	"github.com/chravel/chravel-import/internal/cron"
	"github.com/chravel/chravel-import/internal/importer"
	"github.com/chravel/chravel-import/internal/importer/aiextract"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/inbox"
	"github.com/chravel/chravel-import/internal/llm"
	"github.com/chravel/chravel-import/internal/metrics"
	"github.com/chravel/chravel-import/internal/model"
	"github.com/chravel/chravel-import/internal/pipeline"
	"github.com/chravel/chravel-import/internal/scrape"
	"github.com/chravel/chravel-import/internal/store"
)

type App struct {
	Config     *config.Config
	Store      *store.Store
	Importer   *importer.Importer
	Pipeline   *pipeline.Pipeline
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	CronRunner *cron.Runner
	Version    string
}

// New builds the application from cfg. st may be nil, in which case imports
// are parse-only and uploads for the extraction service are disabled.
func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	service := NewService(cfg, logger)

	m := metrics.Default()
	opts := importer.Options{
		Normalizer: datetime.New(loc),
		ScanWindow: cfg.Import.ScanWindow,
		Service:    service,
		Timeout:    cfg.ExtractionTimeout(),
		Logger:     logger,
		Metrics:    m,
	}
	if st != nil {
		opts.Storage = st.Objects()
	}
	im := importer.New(opts)

	return &App{
		Config:   cfg,
		Store:    st,
		Importer: im,
		Pipeline: pipeline.New(im, st, m, logger),
		Metrics:  m,
		Logger:   logger,
		Version:  version,
	}, nil
}

// NewService builds the extraction service selected by extraction.mode.
// It returns nil for mode "none", or when the default LLM provider has no
// API key, so AI-backed imports report the service as unavailable.
func NewService(cfg *config.Config, logger *zap.Logger) aiextract.Service {
	var svc aiextract.Service

	switch cfg.Extraction.Mode {
	case config.ExtractionNone:
		return nil

	case config.ExtractionRemote:
		svc = aiextract.NewRemoteService(aiextract.RemoteConfig{
			Endpoint:        cfg.Extraction.Endpoint,
			APIKey:          cfg.Extraction.APIKey,
			BreakerFailures: cfg.Extraction.BreakerFailures,
			BreakerCooldown: time.Duration(cfg.Extraction.BreakerCooldown) * time.Second,
		}, logger)

	default:
		primary, err := cfg.DefaultProvider()
		if err != nil {
			logger.Warn("LLM extraction disabled", zap.Error(err))
			return nil
		}
		pm := llm.NewProviderManager(logger, cfg.Extraction.BreakerFailures,
			time.Duration(cfg.Extraction.BreakerCooldown)*time.Second)
		for i, name := range fallbackProviders(cfg) {
			pm.AddProvider(name, llm.NewClient(cfg.LLM.Providers[name]), i+1)
		}

		var renderer scrape.Renderer
		if cfg.Scrape.RenderJS {
			renderer = &scrape.ChromeRenderer{Timeout: time.Duration(cfg.Scrape.Timeout) * time.Second}
		}
		fetcher := scrape.NewFetcher(scrape.Config{
			UserAgent:    cfg.Scrape.UserAgent,
			Timeout:      time.Duration(cfg.Scrape.Timeout) * time.Second,
			MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
			MaxTextChars: cfg.Scrape.MaxTextChars,
		}, renderer, logger)

		client := llm.NewClient(primary)
		svc = aiextract.NewLLMService(pm, client.GetModel(), client.GetVisionModel(), fetcher, logger)
		pm.AddProvider(cfg.LLM.DefaultProvider, client, 0)
	}

	return aiextract.RateLimited(svc, cfg.Extraction.RatePerSecond, cfg.Extraction.Burst)
}

// fallbackProviders lists the keyed providers other than the default, sorted
// by name so failover order is stable across runs.
func fallbackProviders(cfg *config.Config) []string {
	var names []string
	for name, p := range cfg.LLM.Providers {
		if name == cfg.LLM.DefaultProvider || p.APIKey == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLogger builds the process logger from log.level and log.format
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ImportFile is the inbox callback: it imports f under kind using the
// inbox trip and commit settings.
func (app *App) ImportFile(ctx context.Context, kind model.Kind, f importer.File) (any, error) {
	commit := app.Config.Inbox.Commit && app.Config.Inbox.TripID != "" && app.Store != nil
	return app.Pipeline.Import(ctx, pipeline.Request{
		Kind:   kind,
		File:   &f,
		TripID: app.Config.Inbox.TripID,
		Commit: commit,
	})
}

// StartCron schedules the object janitor
func (app *App) StartCron() error {
	if app.Store == nil {
		return nil
	}
	app.CronRunner = cron.NewRunner(cron.Config{}, app.Logger)
	if err := app.CronRunner.AddJob(cron.JanitorJob, app.Config.Storage.GCSchedule, cron.Janitor(app.Store.Objects(), app.Logger)); err != nil {
		return err
	}
	return app.CronRunner.Start()
}

// Watch runs the inbox watcher until ctx is done
func (app *App) Watch(ctx context.Context) error {
	w, err := inbox.New(inbox.Config{
		Dir:      app.Config.Inbox.Dir,
		Debounce: time.Duration(app.Config.Inbox.Debounce) * time.Millisecond,
	}, app.ImportFile, app.Logger)
	if err != nil {
		return err
	}
	app.Logger.Info("Watching inbox", zap.String("dir", app.Config.Inbox.Dir))
	return w.Run(ctx)
}

// RunServer serves the HTTP API, the janitor and, when watch is set, the
// inbox until SIGINT or SIGTERM.
func (app *App) RunServer(watch bool) error {
	var objects api.ObjectSource
	if app.Store != nil {
		objects = app.Store.Objects()
	}
	server := api.New(app.Config, app.Pipeline, objects, app.Metrics, app.Logger, app.Version)

	if err := app.StartCron(); err != nil {
		return fmt.Errorf("failed to start cron runner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	if watch {
		go func() {
			if err := app.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("inbox error: %w", err)
			}
		}()
	}

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("extraction", app.Config.Extraction.Mode),
		zap.String("version", app.Version),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	app.Logger.Info("Shutting down...")
	stop()

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	return runErr
}

// Close releases the store
func (app *App) Close() error {
	if app.Store == nil {
		return nil
	}
	return app.Store.Close()
}
