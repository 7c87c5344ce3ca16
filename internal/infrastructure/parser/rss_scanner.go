package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/httpclient"
	"NewsCollector/internal/scanner"
)

// RSSScanner reads RSS and Atom feeds.
type RSSScanner struct {
	client  *httpclient.Client
	workers int
	logger  *slog.Logger
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner wires an HTTP client; workers bounds concurrent feeds.
func NewRSSScanner(client *httpclient.Client, workers int, log *slog.Logger) *RSSScanner {
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}
	return &RSSScanner{client: client, workers: workers, logger: log}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() domain.SourceType {
	return domain.SourceRSS
}

// Scan fetches every feed of req concurrently.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	s.debug("scan feeds", "feeds", len(req.Sources), "cutoff", req.Cutoff().Format(time.RFC3339))
	return scanner.Fanout(ctx, req, s.workers, s.logger, s.fetch), nil
}

func (s *RSSScanner) fetch(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
	body, err := s.client.Get(ctx, src.URL, nil)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := make([]scanner.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		candidates = append(candidates, scanner.Candidate{
			SourceType:  domain.SourceRSS,
			SourceName:  src.Name,
			Title:       item.Title,
			Link:        item.Link,
			PublishedAt: itemDate(item),
			Summary:     itemSummary(item),
		})
	}
	s.debug("feed parsed", "source", src.Name, "items", len(candidates))
	return candidates, nil
}

func itemSummary(item *gofeed.Item) string {
	for _, candidate := range []string{item.Description, item.Content} {
		if text := stripHTML(candidate); text != "" {
			return text
		}
	}
	return ""
}

func itemDate(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	return nil
}

func (s *RSSScanner) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
