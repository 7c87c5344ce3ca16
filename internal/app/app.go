package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"NewsCollector/internal/config"
	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/httpclient"
	"NewsCollector/internal/infrastructure/parser"
	"NewsCollector/internal/infrastructure/scheduler"
	"NewsCollector/internal/infrastructure/storage"
	"NewsCollector/internal/infrastructure/telegram"
	"NewsCollector/internal/logging"
	"NewsCollector/internal/ports"
	"NewsCollector/internal/scanner"
	"NewsCollector/internal/usecase"
)

var errIndexUnavailable = errors.New("article index is unavailable")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *usecase.Scheduler
	driver    *scheduler.IntervalScheduler
	history   *storage.HistoryFile
	index     *storage.SQLiteIndex
}

// Options tweak how the application reports runs.
type Options struct {
	// OnCycle receives every finished run record.
	OnCycle func(domain.RunRecord)
}

// New builds a runnable application instance. An article index that cannot
// be opened is logged and skipped; collection works without it.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry := NewRegistry(cfg, baseLogger)
	source := parser.NewStrategySource(registry, cfg.EnabledSources(), cfg.Ingestion.ParallelPhases, baseLogger.With("component", "source"))

	history := storage.NewHistoryFile(cfg.Storage.HistoryPath(), domain.MaxRunHistory)

	var index ports.ArticleIndex
	sqliteIndex, err := storage.OpenSQLiteIndex(ctx, cfg.Storage.IndexPath())
	if err != nil {
		baseLogger.Warn("article index unavailable", "path", cfg.Storage.IndexPath(), "error", err)
		sqliteIndex = nil
	} else {
		index = sqliteIndex
	}

	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Source:  source,
		Ledger:  storage.NewLedgerFile(cfg.Storage.LedgerPath(), baseLogger.With("component", "ledger.file")),
		Corpus:  storage.NewCorpusWriter(cfg.Storage.CorpusDir()).WithPerTypeDir(cfg.Storage.RawDir()),
		Index:   index,
		History: history,
		Window:  cfg.Ingestion.RecencyWindow(),
		Logger:  baseLogger.With("component", "coordinator"),
	})

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Enabled() {
		notifier = tg
	}

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval())
	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:       driver,
		Coordinator:  coordinator,
		Notifier:     notifier,
		CycleTimeout: cfg.Scheduler.CycleTimeout,
		Logger:       baseLogger.With("component", "scheduler"),
		OnCycle:      opts.OnCycle,
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		scheduler: sched,
		driver:    driver,
		history:   history,
		index:     sqliteIndex,
	}
}

// NewRegistry registers one scanner per source type, each with its own HTTP
// client so spacing and timeouts apply per provider.
func NewRegistry(cfg config.Config, logger *slog.Logger) *scanner.Registry {
	ing := cfg.Ingestion
	prov := cfg.Providers
	backoff := httpclient.BackoffPolicy{MaxWait: ing.Backoff.MaxWait, Retries: ing.Backoff.Retries}

	registry := scanner.NewRegistry()

	registry.Register(parser.NewRSSScanner(
		httpclient.New(httpclient.Options{Timeout: ing.HTTPTimeout, UserAgent: ing.UserAgent, Backoff: backoff}),
		ing.Workers,
		logger.With("component", "scanner.rss"),
	))

	registry.Register(parser.NewAPIScanner(
		httpclient.New(httpclient.Options{Timeout: ing.HTTPTimeout, UserAgent: ing.UserAgent, Spacing: prov.NewsAPI.Delay, Backoff: backoff}),
		parser.APIOptions{APIKey: prov.NewsAPI.APIKey, PageSize: prov.NewsAPI.PageSize, MaxRequests: prov.NewsAPI.MaxRequests},
		logger.With("component", "scanner.api"),
	))

	registry.Register(parser.NewScrapeScanner(
		httpclient.New(httpclient.Options{Timeout: ing.ScrapeTimeout, UserAgent: ing.UserAgent, Spacing: prov.Scrape.Delay, Backoff: backoff}),
		ing.Workers,
		prov.Scrape.MaxHeadings,
		logger.With("component", "scanner.scrape"),
	))

	registry.Register(parser.NewSocialScanner(
		httpclient.New(httpclient.Options{Timeout: ing.HTTPTimeout, UserAgent: prov.Reddit.UserAgent, Spacing: prov.Reddit.Delay, Backoff: backoff}),
		ing.Workers,
		prov.Reddit.Limit,
		logger.With("component", "scanner.social"),
	))

	return registry
}

// RunOnce performs a single cycle under the configured timeout.
func (a *Application) RunOnce(ctx context.Context) (domain.RunRecord, error) {
	return a.scheduler.RunOnce(ctx)
}

// Serve runs a cycle now and then every interval until ctx ends.
func (a *Application) Serve(ctx context.Context) error {
	a.logger.Info("collector started",
		"interval", a.cfg.Scheduler.Interval().String(),
		"cycle_timeout", a.cfg.Scheduler.CycleTimeout.String(),
		"sources", len(a.cfg.EnabledSources()))

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	a.logger.Info("collector stopped")
	return nil
}

// History returns the recorded runs.
func (a *Application) History(ctx context.Context) (domain.RunHistory, error) {
	return a.history.Load(ctx)
}

// ResetHistory clears the run history. The ledger is left untouched.
func (a *Application) ResetHistory(ctx context.Context) error {
	return a.history.Reset(ctx)
}

// Trends groups indexed articles retrieved since the given time by topic
// and by adapter.
func (a *Application) Trends(ctx context.Context, since time.Time) (byTopic, bySource []domain.TrendBucket, err error) {
	if a.index == nil {
		return nil, nil, errIndexUnavailable
	}
	if byTopic, err = a.index.CountByNewsType(ctx, since); err != nil {
		return nil, nil, err
	}
	if bySource, err = a.index.CountBySourceType(ctx, since); err != nil {
		return nil, nil, err
	}
	return byTopic, bySource, nil
}

// Close releases the article index.
func (a *Application) Close() error {
	if a.index == nil {
		return nil
	}
	return a.index.Close()
}
