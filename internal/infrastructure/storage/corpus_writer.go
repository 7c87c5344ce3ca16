package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"NewsCollector/internal/domain"
)

// CorpusHeader is the CSV column order of a corpus artifact.
var CorpusHeader = []string{
	"source_type",
	"source_name",
	"title",
	"link_or_url",
	"published_at",
	"summary_or_text",
	"news_type",
	"content_fingerprint",
	"retrieved_at",
}

// rawDirNames maps adapter types to their per-type artifact folder.
var rawDirNames = map[domain.SourceType]string{
	domain.SourceRSS:    "rss",
	domain.SourceAPI:    "newsapi",
	domain.SourceScrape: "scraping",
	domain.SourceSocial: "reddit",
}

// CorpusWriter stores each cycle's batch as a new JSON + CSV pair, and
// optionally one JSON file per adapter type.
type CorpusWriter struct {
	dir    string
	rawDir string
}

// NewCorpusWriter writes artifacts into dir.
func NewCorpusWriter(dir string) *CorpusWriter {
	return &CorpusWriter{dir: dir}
}

// WithPerTypeDir also writes <root>/<type>/articles_<stamp>_<runID>.json for
// every adapter type present in a batch.
func (w *CorpusWriter) WithPerTypeDir(root string) *CorpusWriter {
	w.rawDir = root
	return w
}

// Write creates all_sources_<YYYY-MM-DD_HHMM>_<runID>.{json,csv} and returns
// the JSON path. Files are created exclusively; an existing artifact is never
// replaced.
func (w *CorpusWriter) Write(ctx context.Context, runID string, at time.Time, articles []domain.Article) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create corpus dir: %w", err)
	}

	base := filepath.Join(w.dir, fmt.Sprintf("all_sources_%s_%s", at.Format("2006-01-02_1504"), runID))

	if articles == nil {
		articles = []domain.Article{}
	}
	jsonData, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode corpus json: %w", err)
	}
	csvData, err := encodeCSV(articles)
	if err != nil {
		return "", err
	}

	var created []string
	cleanup := func() {
		for _, path := range created {
			os.Remove(path)
		}
	}

	jsonPath := base + ".json"
	if err := createExclusive(jsonPath, jsonData); err != nil {
		return "", err
	}
	created = append(created, jsonPath)
	if err := createExclusive(base+".csv", csvData); err != nil {
		cleanup()
		return "", err
	}
	created = append(created, base+".csv")

	if w.rawDir != "" {
		stamp := fmt.Sprintf("articles_%s_%s.json", at.Format("2006-01-02_1504"), runID)
		paths, err := w.writePerType(stamp, articles)
		created = append(created, paths...)
		if err != nil {
			cleanup()
			return "", err
		}
	}
	return jsonPath, nil
}

func (w *CorpusWriter) writePerType(name string, articles []domain.Article) ([]string, error) {
	groups := make(map[domain.SourceType][]domain.Article)
	for _, a := range articles {
		groups[a.SourceType] = append(groups[a.SourceType], a)
	}

	var written []string
	for _, t := range domain.SourceTypes {
		batch := groups[t]
		if len(batch) == 0 {
			continue
		}
		dir := filepath.Join(w.rawDir, rawDirNames[t])
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return written, fmt.Errorf("create %s dir: %w", t, err)
		}
		data, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			return written, fmt.Errorf("encode %s json: %w", t, err)
		}
		path := filepath.Join(dir, name)
		if err := createExclusive(path, data); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func encodeCSV(articles []domain.Article) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(CorpusHeader); err != nil {
		return nil, fmt.Errorf("encode corpus csv: %w", err)
	}
	for _, a := range articles {
		published := ""
		if a.PublishedAt != nil {
			published = a.PublishedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			string(a.SourceType),
			a.SourceName,
			a.Title,
			a.Link,
			published,
			a.Summary,
			a.NewsType,
			a.Fingerprint,
			a.RetrievedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("encode corpus csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("encode corpus csv: %w", err)
	}
	return buf.Bytes(), nil
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("sync artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close artifact %s: %w", path, err)
	}
	return nil
}
