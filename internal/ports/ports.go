package ports

import (
	"context"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/scanner"
)

// ArticleSource pulls fresh articles from every enabled upstream provider.
type ArticleSource interface {
	Collect(ctx context.Context, req scanner.Request) (scanner.Result, error)
}

// CorpusWriter persists one cycle's batch as a new artifact and returns its path.
type CorpusWriter interface {
	Write(ctx context.Context, runID string, at time.Time, articles []domain.Article) (string, error)
}

// ArticleIndex keeps a queryable copy of emitted articles for search and trends.
type ArticleIndex interface {
	Upsert(ctx context.Context, articles []domain.Article) (int, error)
}

// RunHistoryStore keeps the capped log of cycles.
type RunHistoryStore interface {
	Load(ctx context.Context) (domain.RunHistory, error)
	Append(ctx context.Context, rec domain.RunRecord) error
	Reset(ctx context.Context) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
