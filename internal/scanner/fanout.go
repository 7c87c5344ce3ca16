package scanner

import (
	"context"
	"log/slog"
	"sync"

	"NewsCollector/internal/domain"
)

// FetchFunc extracts candidates from one source.
type FetchFunc func(ctx context.Context, src Source) ([]Candidate, error)

// Fanout runs fetch for every source of req on at most workers goroutines and
// admits the candidates through req. A failing source contributes zero
// articles and is recorded in Result.Failed; the others are unaffected.
// Articles from different sources are merged in completion order.
func Fanout(ctx context.Context, req Request, workers int, logger *slog.Logger, fetch FetchFunc) Result {
	if workers <= 0 {
		workers = 1
	}

	result := Result{BySource: map[string]int{}, Skipped: map[SkipReason]int{}}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)

	for _, src := range req.Sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				result.BySource[src.Name] = 0
				result.Failed = append(result.Failed, SourceError{Source: src.Name, Err: ctx.Err()})
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			candidates, err := fetch(ctx, src)
			if err != nil {
				if logger != nil {
					logger.Error("source failed", "source", src.Name, "error", err)
				}
				mu.Lock()
				result.BySource[src.Name] = 0
				result.Failed = append(result.Failed, SourceError{Source: src.Name, Err: err})
				mu.Unlock()
				return
			}

			admitted := make([]domain.Article, 0, len(candidates))
			skipped := map[SkipReason]int{}
			for _, c := range candidates {
				if c.SourceName == "" {
					c.SourceName = src.Name
				}
				article, reason := req.Admit(c)
				if reason != "" {
					skipped[reason]++
					continue
				}
				admitted = append(admitted, article)
			}

			if logger != nil {
				logger.Info("source done", "source", src.Name, "new", len(admitted),
					"duplicates", skipped[SkipDuplicate], "stale", skipped[SkipStale])
			}

			mu.Lock()
			result.Articles = append(result.Articles, admitted...)
			result.BySource[src.Name] += len(admitted)
			for k, v := range skipped {
				result.Skipped[k] += v
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	return result
}
