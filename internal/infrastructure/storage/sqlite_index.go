package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"NewsCollector/internal/domain"
)

const (
	indexTimeLayout = "2006-01-02T15:04:05Z"
	insertChunk     = 200
)

var indexColumns = []string{
	"content_fingerprint",
	"source_type",
	"source_name",
	"title",
	"link_or_url",
	"published_at",
	"summary_or_text",
	"news_type",
	"retrieved_at",
	"extra",
}

// SQLiteIndex is the queryable copy of every emitted article, keyed by
// fingerprint. The search layer reads it; the collector only appends.
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

// OpenSQLiteIndex opens (or creates) the index database at path.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	idx := &SQLiteIndex{db: db, path: path}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteIndex) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			content_fingerprint TEXT PRIMARY KEY,
			source_type TEXT NOT NULL,
			source_name TEXT NOT NULL,
			title TEXT NOT NULL,
			link_or_url TEXT NOT NULL DEFAULT '',
			published_at TEXT,
			summary_or_text TEXT NOT NULL DEFAULT '',
			news_type TEXT NOT NULL,
			retrieved_at TEXT NOT NULL,
			extra TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_retrieved ON articles(retrieved_at)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_news_type ON articles(news_type)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init index schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts articles whose fingerprint is not indexed yet and returns
// how many rows were added.
func (s *SQLiteIndex) Upsert(ctx context.Context, articles []domain.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for start := 0; start < len(articles); start += insertChunk {
		end := start + insertChunk
		if end > len(articles) {
			end = len(articles)
		}

		builder := sq.Insert("articles").Options("OR IGNORE").Columns(indexColumns...)
		for _, a := range articles[start:end] {
			values, err := indexValues(a)
			if err != nil {
				return 0, err
			}
			builder = builder.Values(values...)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert articles: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit index tx: %w", err)
	}
	return added, nil
}

func indexValues(a domain.Article) ([]interface{}, error) {
	var published interface{}
	if a.PublishedAt != nil {
		published = a.PublishedAt.UTC().Format(indexTimeLayout)
	}
	var extra interface{}
	if len(a.Extra) > 0 {
		raw, err := json.Marshal(a.Extra)
		if err != nil {
			return nil, fmt.Errorf("encode extra: %w", err)
		}
		extra = string(raw)
	}
	return []interface{}{
		a.Fingerprint,
		string(a.SourceType),
		a.SourceName,
		a.Title,
		a.Link,
		published,
		a.Summary,
		a.NewsType,
		a.RetrievedAt.UTC().Format(indexTimeLayout),
		extra,
	}, nil
}

// Count returns the number of indexed articles.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// CountByNewsType groups articles retrieved since the given time by topic.
func (s *SQLiteIndex) CountByNewsType(ctx context.Context, since time.Time) ([]domain.TrendBucket, error) {
	return s.countBy(ctx, "news_type", since)
}

// CountBySourceType groups articles retrieved since the given time by adapter.
func (s *SQLiteIndex) CountBySourceType(ctx context.Context, since time.Time) ([]domain.TrendBucket, error) {
	return s.countBy(ctx, "source_type", since)
}

func (s *SQLiteIndex) countBy(ctx context.Context, column string, since time.Time) ([]domain.TrendBucket, error) {
	query, args, err := sq.Select(column, "COUNT(*) AS n").
		From("articles").
		Where(sq.GtOrEq{"retrieved_at": since.UTC().Format(indexTimeLayout)}).
		GroupBy(column).
		OrderBy("n DESC", column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build trend query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}
	defer rows.Close()

	var out []domain.TrendBucket
	for rows.Next() {
		var row domain.TrendBucket
		if err := rows.Scan(&row.Key, &row.Count); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trend rows: %w", err)
	}
	return out, nil
}
