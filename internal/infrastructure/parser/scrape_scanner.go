package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/httpclient"
	"NewsCollector/internal/scanner"
)

const (
	headingSelector  = "h1, h2, h3"
	minHeadingLength = 15
	maxHeadingLength = 300
)

// ScrapeScanner treats the headings of a news front page as articles.
// Headings carry no date, so the recency window does not apply to them.
type ScrapeScanner struct {
	client      *httpclient.Client
	workers     int
	maxHeadings int
	logger      *slog.Logger
}

var _ scanner.Scanner = (*ScrapeScanner)(nil)

// NewScrapeScanner wires an HTTP client; maxHeadings defaults to 100.
func NewScrapeScanner(client *httpclient.Client, workers, maxHeadings int, log *slog.Logger) *ScrapeScanner {
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}
	if maxHeadings <= 0 {
		maxHeadings = 100
	}
	return &ScrapeScanner{client: client, workers: workers, maxHeadings: maxHeadings, logger: log}
}

// Name identifies the strategy inside the registry.
func (s *ScrapeScanner) Name() domain.SourceType {
	return domain.SourceScrape
}

// Scan fetches every page of req concurrently.
func (s *ScrapeScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	return scanner.Fanout(ctx, req, s.workers, s.logger, s.fetch), nil
}

func (s *ScrapeScanner) fetch(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", src.URL, err)
	}

	body, err := s.client.Get(ctx, src.URL, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return extractHeadings(doc, base, src.Name, s.maxHeadings), nil
}

func extractHeadings(doc *goquery.Document, base *url.URL, sourceName string, limit int) []scanner.Candidate {
	var candidates []scanner.Candidate

	doc.Find(headingSelector).EachWithBreak(func(i int, heading *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		text := scanner.CleanText(heading.Text())
		if n := utf8.RuneCountInString(text); n < minHeadingLength || n > maxHeadingLength {
			return true
		}

		candidates = append(candidates, scanner.Candidate{
			SourceType: domain.SourceScrape,
			SourceName: sourceName,
			Title:      text,
			Link:       headingLink(heading, base),
		})
		return true
	})

	return candidates
}

// headingLink takes the href of the first anchor inside the heading, or of
// the anchor wrapping it, resolved against the page URL.
func headingLink(heading *goquery.Selection, base *url.URL) string {
	anchor := heading.Find("a[href]").First()
	if anchor.Length() == 0 {
		anchor = heading.Closest("a[href]")
	}

	href, ok := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
