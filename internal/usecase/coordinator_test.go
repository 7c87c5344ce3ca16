package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/storage"
	"NewsCollector/internal/ledger"
	"NewsCollector/internal/scanner"
)

var cycleNow = time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)

// feedSource serves a fixed candidate list per named source.
type feedSource struct {
	mu    sync.Mutex
	feeds map[string][]scanner.Candidate
	block bool
}

func (f *feedSource) set(name string, items ...scanner.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds = map[string][]scanner.Candidate{name: items}
}

func (f *feedSource) Collect(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	f.mu.Lock()
	var sources []scanner.Source
	for name := range f.feeds {
		sources = append(sources, scanner.Source{Name: name})
	}
	feeds := f.feeds
	block := f.block
	f.mu.Unlock()

	req.Sources = sources
	return scanner.Fanout(ctx, req, 2, nil, func(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
		if block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return feeds[src.Name], nil
	}), nil
}

type memIndex struct {
	mu  sync.Mutex
	fps map[string]bool
	err error
}

func (m *memIndex) Upsert(ctx context.Context, articles []domain.Article) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fps == nil {
		m.fps = map[string]bool{}
	}
	added := 0
	for _, a := range articles {
		if !m.fps[a.Fingerprint] {
			m.fps[a.Fingerprint] = true
			added++
		}
	}
	return added, nil
}

type failingStore struct {
	ledger.Store
}

func (f failingStore) Save(ctx context.Context, snap ledger.Snapshot) error {
	return errors.New("disk full")
}

type failingCorpus struct{}

func (failingCorpus) Write(ctx context.Context, runID string, at time.Time, articles []domain.Article) (string, error) {
	return "", errors.New("read-only filesystem")
}

type fixture struct {
	dir     string
	source  *feedSource
	ledger  *storage.LedgerFile
	history *storage.HistoryFile
	index   *memIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:     dir,
		source:  &feedSource{},
		ledger:  storage.NewLedgerFile(filepath.Join(dir, "tracking", "collected_hashes.json"), nil),
		history: storage.NewHistoryFile(filepath.Join(dir, "tracking", "collection_history.json"), domain.MaxRunHistory),
		index:   &memIndex{},
	}
}

func (f *fixture) coordinator(store ledger.Store) *Coordinator {
	if store == nil {
		store = f.ledger
	}
	return NewCoordinator(CoordinatorDeps{
		Source:  f.source,
		Ledger:  store,
		Corpus:  storage.NewCorpusWriter(filepath.Join(f.dir, "raw", "combined")),
		Index:   f.index,
		History: f.history,
		Window:  24 * time.Hour,
		Clock:   func() time.Time { return cycleNow },
	})
}

func (f *fixture) corpusArticles(t *testing.T) []domain.Article {
	t.Helper()
	paths, _ := filepath.Glob(filepath.Join(f.dir, "raw", "combined", "all_sources_*.json"))
	var all []domain.Article
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		var batch []domain.Article
		if err := json.Unmarshal(raw, &batch); err != nil {
			t.Fatalf("decode %s: %v", p, err)
		}
		all = append(all, batch...)
	}
	return all
}

func centralBank() scanner.Candidate {
	published := cycleNow.Add(-2 * time.Hour)
	return scanner.Candidate{
		SourceType:  domain.SourceRSS,
		Title:       "Central Bank Raises Rates",
		Link:        "https://x/1",
		PublishedAt: &published,
	}
}

func TestCentralBankAcrossTwoFeedsAndCycles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.source.set("feed-a", centralBank())
	first, err := f.coordinator(nil).RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if first.TotalNew != 1 || first.Status != domain.RunOK {
		t.Fatalf("cycle 1 should accept the article, got %+v", first)
	}

	f.source.set("feed-b", centralBank())
	second, err := f.coordinator(nil).RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if second.TotalNew != 0 || second.DuplicatesSkipped != 1 {
		t.Fatalf("cycle 2 should reject the duplicate, got %+v", second)
	}

	corpus := f.corpusArticles(t)
	if len(corpus) != 1 {
		t.Fatalf("expected exactly one copy in the corpus, got %d", len(corpus))
	}
	if corpus[0].NewsType != "business" || corpus[0].SourceName != "feed-a" {
		t.Fatalf("unexpected stored article %+v", corpus[0])
	}

	hist, err := f.history.Load(ctx)
	if err != nil || hist.TotalRuns != 2 || hist.TotalCollected != 1 {
		t.Fatalf("unexpected history %+v, %v", hist, err)
	}
}

func TestRunCycleIdempotentReRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	published := cycleNow.Add(-time.Hour)
	f.source.set("feed",
		centralBank(),
		scanner.Candidate{SourceType: domain.SourceRSS, Title: "Tennis final tonight", Link: "https://x/2", PublishedAt: &published},
		scanner.Candidate{SourceType: domain.SourceRSS, Title: "Tennis final tonight", Link: "https://x/2", PublishedAt: &published},
	)

	first, err := f.coordinator(nil).RunCycle(ctx)
	if err != nil || first.TotalNew != 2 {
		t.Fatalf("first run: %+v, %v", first, err)
	}
	if first.BySource["rss"] != 2 || first.TotalFingerprints != 2 {
		t.Fatalf("unexpected breakdown %+v", first)
	}

	second, err := f.coordinator(nil).RunCycle(ctx)
	if err != nil || second.TotalNew != 0 {
		t.Fatalf("second run should find nothing new: %+v, %v", second, err)
	}
	if second.Artifact != "" {
		t.Fatalf("an empty batch should not produce an artifact")
	}
	if len(f.index.fps) != 2 {
		t.Fatalf("index should hold 2 articles, got %d", len(f.index.fps))
	}
}

func TestRunCycleTimeoutPersistsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("slow", centralBank())
	f.source.block = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rec, err := f.coordinator(nil).RunCycle(ctx)
	if !errors.Is(err, ErrCycleTimeout) {
		t.Fatalf("expected ErrCycleTimeout, got %v", err)
	}
	if rec.Status != domain.RunTimeout || rec.TotalNew != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, statErr := os.Stat(f.ledger.Path()); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("ledger must not be written on timeout")
	}
	if len(f.corpusArticles(t)) != 0 {
		t.Fatalf("corpus must not be written on timeout")
	}

	hist, _ := f.history.Load(context.Background())
	if len(hist.Runs) != 1 || hist.Runs[0].Status != domain.RunTimeout {
		t.Fatalf("timeout run should be recorded, got %+v", hist.Runs)
	}

	f.source.block = false
	rec, err = f.coordinator(nil).RunCycle(context.Background())
	if err != nil || rec.TotalNew != 1 {
		t.Fatalf("article should be collected by the next cycle, got %+v, %v", rec, err)
	}
}

func TestRunCycleLedgerPersistFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("feed", centralBank())

	rec, err := f.coordinator(failingStore{Store: f.ledger}).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("persist failure must not fail the cycle: %v", err)
	}
	if rec.TotalNew != 1 || rec.Artifact == "" {
		t.Fatalf("batch should still be written, got %+v", rec)
	}
}

func TestRunCycleCorpusFailureKeepsLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("feed", centralBank())

	c := f.coordinator(nil)
	c.corpus = failingCorpus{}
	rec, err := c.RunCycle(context.Background())
	if err == nil || rec.Status != domain.RunFailed || rec.TotalNew != 0 {
		t.Fatalf("expected failed run, got %+v, %v", rec, err)
	}
	if _, statErr := os.Stat(f.ledger.Path()); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("ledger must not record articles that were never written")
	}
}

func TestRunCycleIndexFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.index.err = errors.New("database is locked")
	f.source.set("feed", centralBank())

	rec, err := f.coordinator(nil).RunCycle(context.Background())
	if err != nil || rec.TotalNew != 1 {
		t.Fatalf("index failure must not fail the cycle: %+v, %v", rec, err)
	}
}

func TestRunCycleLedgerLocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("feed", centralBank())

	holder := storage.NewLedgerFile(f.ledger.Path(), nil)
	if err := holder.Lock(context.Background()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer holder.Unlock()

	_, err := f.coordinator(nil).RunCycle(context.Background())
	if !errors.Is(err, ledger.ErrLedgerLocked) {
		t.Fatalf("expected ErrLedgerLocked, got %v", err)
	}
}

func TestRunCyclePartialOnSourceFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := f.coordinator(nil)
	c.source = sourceFunc(func(ctx context.Context, req scanner.Request) (scanner.Result, error) {
		req.Sources = []scanner.Source{{Name: "ok"}, {Name: "down"}}
		return scanner.Fanout(ctx, req, 2, nil, func(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
			if src.Name == "down" {
				return nil, errors.New("connection refused")
			}
			return []scanner.Candidate{centralBank()}, nil
		}), nil
	})

	rec, err := c.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rec.Status != domain.RunPartial || rec.TotalNew != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.FailedSources) != 1 || rec.FailedSources[0] != "down" {
		t.Fatalf("unexpected failed sources %v", rec.FailedSources)
	}
}

type sourceFunc func(ctx context.Context, req scanner.Request) (scanner.Result, error)

func (f sourceFunc) Collect(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	return f(ctx, req)
}
