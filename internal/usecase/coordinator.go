package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ledger"
	"NewsCollector/internal/ports"
	"NewsCollector/internal/scanner"
)

// ErrCycleTimeout is returned when a cycle's context expires before its
// results are persisted.
var ErrCycleTimeout = errors.New("ingestion cycle timed out")

// CoordinatorDeps wires all driven adapters into the ingestion cycle.
type CoordinatorDeps struct {
	Source  ports.ArticleSource
	Ledger  ledger.Store
	Corpus  ports.CorpusWriter
	Index   ports.ArticleIndex
	History ports.RunHistoryStore
	Window  time.Duration
	Clock   func() time.Time
	Logger  *slog.Logger
}

// Coordinator runs one ingestion cycle end to end.
type Coordinator struct {
	source  ports.ArticleSource
	store   ledger.Store
	corpus  ports.CorpusWriter
	index   ports.ArticleIndex
	history ports.RunHistoryStore
	window  time.Duration
	clock   func() time.Time
	logger  *slog.Logger
}

// NewCoordinator constructs the orchestration component.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Coordinator{
		source:  deps.Source,
		store:   deps.Ledger,
		corpus:  deps.Corpus,
		index:   deps.Index,
		history: deps.History,
		window:  deps.Window,
		clock:   clock,
		logger:  deps.Logger,
	}
}

// RunCycle locks and loads the ledger, collects from every adapter, persists
// the new articles and then the ledger, and records the run.
//
// If ctx ends before the batch is written, nothing is persisted: the ledger
// keeps its previous content so the same items are picked up next cycle. The
// run is still recorded with status timeout and zero new articles.
func (c *Coordinator) RunCycle(ctx context.Context) (domain.RunRecord, error) {
	started := c.clock()
	rec := domain.RunRecord{
		ID:           ulid.MustNew(ulid.Timestamp(started), rand.Reader).String(),
		StartedAt:    started.UTC(),
		Status:       domain.RunOK,
		BySource:     map[string]int{},
		RecencyHours: c.window.Hours(),
	}

	if c.source == nil {
		return c.finish(ctx, rec, domain.RunFailed, errors.New("no article source configured"))
	}

	l := ledger.New(c.store, c.component("ledger"))
	if err := l.Lock(ctx); err != nil {
		rec.Status = domain.RunFailed
		rec.Error = err.Error()
		rec.FinishedAt = c.clock().UTC()
		return rec, fmt.Errorf("lock ledger: %w", err)
	}
	defer func() {
		if err := l.Unlock(); err != nil {
			c.warn("ledger unlock failed", "error", err)
		}
	}()

	known := l.Load(ctx)
	c.info("cycle started", "run", rec.ID, "known_fingerprints", known, "window", c.window.String())

	result, err := c.source.Collect(ctx, scanner.Request{
		Now:    started,
		Window: c.window,
		Gate:   l,
		Clock:  c.clock,
	})
	if err != nil {
		return c.finish(ctx, rec, domain.RunFailed, fmt.Errorf("collect: %w", err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		rec.FailedSources = result.FailedNames()
		return c.finish(ctx, rec, domain.RunTimeout, fmt.Errorf("%w: %v", ErrCycleTimeout, ctxErr))
	}

	for _, t := range domain.SourceTypes {
		rec.BySource[string(t)] = 0
	}
	for _, a := range result.Articles {
		rec.BySource[string(a.SourceType)]++
	}
	rec.TotalNew = len(result.Articles)
	rec.DuplicatesSkipped = result.Skipped[scanner.SkipDuplicate]
	rec.FailedSources = result.FailedNames()
	if len(rec.FailedSources) > 0 {
		rec.Status = domain.RunPartial
	}

	if len(result.Articles) > 0 && c.corpus != nil {
		path, err := c.corpus.Write(ctx, rec.ID, started, result.Articles)
		if err != nil {
			if ctx.Err() != nil {
				rec.TotalNew = 0
				return c.finish(ctx, rec, domain.RunTimeout, fmt.Errorf("%w: %v", ErrCycleTimeout, err))
			}
			rec.TotalNew = 0
			return c.finish(ctx, rec, domain.RunFailed, fmt.Errorf("write corpus: %w", err))
		}
		rec.Artifact = path
		c.info("corpus written", "path", path, "articles", len(result.Articles))
	}

	if len(result.Articles) > 0 && c.index != nil {
		if added, err := c.index.Upsert(ctx, result.Articles); err != nil {
			c.logError("index update failed", "error", err)
		} else {
			c.debug("index updated", "added", added)
		}
	}

	if err := l.Persist(context.WithoutCancel(ctx)); err != nil {
		c.logError("ledger persist failed", "error", err)
	}
	rec.TotalFingerprints = l.Len()

	return c.finish(ctx, rec, rec.Status, nil)
}

// finish stamps the record, appends it to history and returns cause as the
// cycle error. Timed-out and failed runs report no new articles.
func (c *Coordinator) finish(ctx context.Context, rec domain.RunRecord, status domain.RunStatus, cause error) (domain.RunRecord, error) {
	rec.Status = status
	if status == domain.RunTimeout || status == domain.RunFailed {
		rec.TotalNew = 0
		rec.Artifact = ""
		for k := range rec.BySource {
			rec.BySource[k] = 0
		}
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	rec.FinishedAt = c.clock().UTC()
	rec.DurationSeconds = rec.FinishedAt.Sub(rec.StartedAt).Seconds()

	if c.history != nil {
		if err := c.history.Append(context.WithoutCancel(ctx), rec); err != nil {
			c.warn("history append failed", "error", err)
		}
	}

	if cause != nil {
		c.logError("cycle ended", "run", rec.ID, "status", rec.Status, "error", cause)
	} else {
		c.info("cycle finished", "run", rec.ID, "status", rec.Status, "new", rec.TotalNew,
			"failed_sources", len(rec.FailedSources), "duration_s", rec.DurationSeconds)
	}
	return rec, cause
}

func (c *Coordinator) component(name string) *slog.Logger {
	if c.logger == nil {
		return nil
	}
	return c.logger.With("component", name)
}

func (c *Coordinator) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Coordinator) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Coordinator) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Coordinator) logError(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
