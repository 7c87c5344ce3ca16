package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"NewsCollector/internal/domain"
)

// Source describes a concrete fetch target provided by config.
type Source struct {
	Name    string
	URL     string
	Options map[string]string
}

// Gate decides novelty. Accept must check and register a fingerprint in a
// single critical section.
type Gate interface {
	Accept(fp string) bool
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Now     time.Time
	Window  time.Duration
	Sources []Source
	Gate    Gate
	Clock   func() time.Time
}

// Cutoff is the oldest publication time still considered fresh.
func (r Request) Cutoff() time.Time {
	return r.Now.Add(-r.Window)
}

func (r Request) clock() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// SourceError records a source that yielded nothing because it failed.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Result is what one adapter produced in a cycle.
type Result struct {
	Articles []domain.Article
	BySource map[string]int
	Failed   []SourceError
	Skipped  map[SkipReason]int
}

// Merge folds other into r.
func (r *Result) Merge(other Result) {
	r.Articles = append(r.Articles, other.Articles...)
	r.Failed = append(r.Failed, other.Failed...)
	if r.BySource == nil {
		r.BySource = map[string]int{}
	}
	for k, v := range other.BySource {
		r.BySource[k] += v
	}
	if r.Skipped == nil {
		r.Skipped = map[SkipReason]int{}
	}
	for k, v := range other.Skipped {
		r.Skipped[k] += v
	}
}

// FailedNames lists failed sources in name order.
func (r Result) FailedNames() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Source)
	}
	sort.Strings(names)
	return names
}

// Scanner captures a single adapter implementation (RSS, API, etc.).
type Scanner interface {
	Name() domain.SourceType
	Scan(ctx context.Context, req Request) (Result, error)
}

// Registry keeps a mapping from source types to their implementations.
type Registry struct {
	scanners map[domain.SourceType]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.SourceType]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.SourceType]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name domain.SourceType) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}
