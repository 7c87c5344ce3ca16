package domain

import "time"

// SourceType enumerates the adapter families an article can come from.
type SourceType string

const (
	SourceRSS    SourceType = "rss"
	SourceAPI    SourceType = "api"
	SourceScrape SourceType = "scrape"
	SourceSocial SourceType = "social"
)

// SourceTypes lists adapter families in the order a cycle runs them.
var SourceTypes = []SourceType{SourceRSS, SourceAPI, SourceScrape, SourceSocial}

// MaxSummaryLength caps summary_or_text to bound corpus storage.
const MaxSummaryLength = 500

// Article is the source-agnostic record flowing through the pipeline.
// Field names are the contract with the downstream search layer.
type Article struct {
	SourceType  SourceType        `json:"source_type"`
	SourceName  string            `json:"source_name"`
	Title       string            `json:"title"`
	Link        string            `json:"link_or_url"`
	PublishedAt *time.Time        `json:"published_at"`
	Summary     string            `json:"summary_or_text"`
	NewsType    string            `json:"news_type"`
	Fingerprint string            `json:"content_fingerprint"`
	RetrievedAt time.Time         `json:"retrieved_at"`
	Extra       map[string]string `json:"extra,omitempty"`
}
