package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"NewsCollector/internal/config"
	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
	"NewsCollector/internal/scanner"
)

// StrategySource implements ArticleSource via registered scanner strategies.
// Each source type is one phase; phases run in domain.SourceTypes order, or
// all at once when parallel is set.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	parallel bool
	logger   *slog.Logger
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, parallel bool, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		parallel: parallel,
		logger:   log,
	}
}

type phase struct {
	kind    domain.SourceType
	sources []scanner.Source
}

// Collect runs every phase with the shared request parameters. A phase whose
// scanner is missing or errors marks its sources failed; the others continue.
func (s *StrategySource) Collect(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	if s.registry == nil {
		return scanner.Result{}, fmt.Errorf("scanner registry is not configured")
	}

	phases := s.phases()
	s.debug("collect", "phases", len(phases), "parallel", s.parallel)

	total := scanner.Result{BySource: map[string]int{}, Skipped: map[scanner.SkipReason]int{}}
	if !s.parallel {
		for _, p := range phases {
			total.Merge(s.runPhase(ctx, req, p))
		}
		return total, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range phases {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.runPhase(ctx, req, p)
			mu.Lock()
			total.Merge(res)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return total, nil
}

func (s *StrategySource) phases() []phase {
	grouped := map[domain.SourceType][]scanner.Source{}
	for _, src := range s.sources {
		if src.Disabled {
			continue
		}
		grouped[src.Type] = append(grouped[src.Type], scanner.Source{
			Name:    src.Name,
			URL:     src.URL,
			Options: src.Options,
		})
	}

	var out []phase
	for _, kind := range domain.SourceTypes {
		if len(grouped[kind]) > 0 {
			out = append(out, phase{kind: kind, sources: grouped[kind]})
		}
	}
	return out
}

func (s *StrategySource) runPhase(ctx context.Context, req scanner.Request, p phase) scanner.Result {
	req.Sources = p.sources
	s.debug("phase start", "type", p.kind, "sources", len(p.sources))

	strategy, err := s.registry.Resolve(p.kind)
	if err == nil {
		var res scanner.Result
		res, err = strategy.Scan(ctx, req)
		if err == nil {
			s.debug("phase done", "type", p.kind, "articles", len(res.Articles), "failed", len(res.Failed))
			return res
		}
	}

	if s.logger != nil {
		s.logger.Error("phase failed", "type", p.kind, "error", err)
	}
	failed := scanner.Result{BySource: map[string]int{}}
	for _, src := range p.sources {
		failed.BySource[src.Name] = 0
		failed.Failed = append(failed.Failed, scanner.SourceError{Source: src.Name, Err: err})
	}
	return failed
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
