package scanner

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"NewsCollector/internal/classifier"
	"NewsCollector/internal/domain"
	"NewsCollector/internal/identity"
)

// SkipReason says why a candidate did not become an article.
type SkipReason string

const (
	SkipEmptyTitle SkipReason = "empty_title"
	SkipStale      SkipReason = "stale"
	SkipDuplicate  SkipReason = "duplicate"
)

// Candidate is a raw record after source-specific field extraction. Optional
// fields are explicit: PublishedAt is nil when the source gave no usable date,
// Category is empty unless the source labels its items.
type Candidate struct {
	SourceType  domain.SourceType
	SourceName  string
	Title       string
	Link        string
	PublishedAt *time.Time
	Summary     string
	Category    string
	Extra       map[string]string
}

// Admit turns a candidate into a complete article or reports why it was
// skipped. Order matters: recency is checked before fingerprinting, and the
// fingerprint is accepted by the gate before the article is built.
func (r Request) Admit(c Candidate) (domain.Article, SkipReason) {
	title := CleanText(c.Title)
	if title == "" {
		return domain.Article{}, SkipEmptyTitle
	}

	var published *time.Time
	if c.PublishedAt != nil {
		if c.PublishedAt.Before(r.Cutoff()) {
			return domain.Article{}, SkipStale
		}
		utc := c.PublishedAt.UTC()
		published = &utc
	}

	link := strings.TrimSpace(c.Link)
	fp := identity.Fingerprint(title, link)
	if r.Gate != nil && !r.Gate.Accept(fp) {
		return domain.Article{}, SkipDuplicate
	}

	summary := Truncate(CleanText(c.Summary), domain.MaxSummaryLength)

	return domain.Article{
		SourceType:  c.SourceType,
		SourceName:  c.SourceName,
		Title:       title,
		Link:        link,
		PublishedAt: published,
		Summary:     summary,
		NewsType:    classifier.Classify(title, classifierText(c.SourceType, summary), c.Category),
		Fingerprint: fp,
		RetrievedAt: r.clock().UTC(),
		Extra:       c.Extra,
	}, ""
}

// classifierSummaryLength bounds the summary prefix fed to the classifier.
const classifierSummaryLength = 200

// classifierText picks the summary text topic scoring sees. Feed and API
// items contribute a short prefix; scraped headings and social posts are
// scored on the title alone.
func classifierText(t domain.SourceType, summary string) string {
	switch t {
	case domain.SourceRSS, domain.SourceAPI:
		return Truncate(summary, classifierSummaryLength)
	default:
		return ""
	}
}

// CleanText collapses whitespace and applies Unicode NFC so the same text
// always yields the same bytes.
func CleanText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// Truncate keeps at most max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
