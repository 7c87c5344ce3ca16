package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/httpclient"
	"NewsCollector/internal/scanner"
)

// APIOptions configures the NewsAPI adapter.
type APIOptions struct {
	APIKey      string
	PageSize    int
	MaxRequests int
}

// APIScanner reads NewsAPI top-headlines. Each source is one request whose
// query comes from the source options (country, category, ...).
type APIScanner struct {
	client *httpclient.Client
	opts   APIOptions
	logger *slog.Logger
}

var _ scanner.Scanner = (*APIScanner)(nil)

// NewAPIScanner wires an HTTP client; its host spacing paces the requests.
func NewAPIScanner(client *httpclient.Client, opts APIOptions, log *slog.Logger) *APIScanner {
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	return &APIScanner{client: client, opts: opts, logger: log}
}

// Name identifies the strategy inside the registry.
func (a *APIScanner) Name() domain.SourceType {
	return domain.SourceAPI
}

// Scan issues at most MaxRequests calls, one source at a time. A missing API
// key disables the adapter for the cycle without failing it.
func (a *APIScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	if a.opts.APIKey == "" {
		if a.logger != nil {
			a.logger.Warn("api key missing, adapter disabled", "sources", len(req.Sources))
		}
		return scanner.Result{BySource: map[string]int{}, Skipped: map[scanner.SkipReason]int{}}, nil
	}

	var issued atomic.Int32
	fetch := func(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
		n := int(issued.Add(1))
		if a.opts.MaxRequests > 0 && n > a.opts.MaxRequests {
			a.debug("request cap reached, source skipped", "source", src.Name, "cap", a.opts.MaxRequests)
			return nil, nil
		}
		a.debug("request", "source", src.Name, "n", n, "cap", a.opts.MaxRequests)
		return a.fetch(ctx, src)
	}

	return scanner.Fanout(ctx, req, 1, a.logger, fetch), nil
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

func (a *APIScanner) fetch(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
	endpoint, err := a.buildURL(src)
	if err != nil {
		return nil, err
	}

	body, err := a.client.Get(ctx, endpoint, http.Header{"X-Api-Key": []string{a.opts.APIKey}})
	if err != nil {
		return nil, err
	}

	var payload newsAPIResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("api status %q: %s %s", payload.Status, payload.Code, payload.Message)
	}

	category := src.Options["category"]
	extra := map[string]string{}
	for _, key := range []string{"country", "category"} {
		if v := src.Options[key]; v != "" {
			extra[key] = v
		}
	}

	candidates := make([]scanner.Candidate, 0, len(payload.Articles))
	for _, art := range payload.Articles {
		candidates = append(candidates, scanner.Candidate{
			SourceType:  domain.SourceAPI,
			SourceName:  firstNonEmpty(art.Source.Name, src.Name),
			Title:       art.Title,
			Link:        art.URL,
			PublishedAt: parseAPITime(art.PublishedAt),
			Summary:     firstNonEmpty(art.Description, art.Content),
			Category:    category,
			Extra:       extra,
		})
	}
	return candidates, nil
}

func (a *APIScanner) buildURL(src scanner.Source) (string, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", src.URL, err)
	}

	q := u.Query()
	for k, v := range src.Options {
		q.Set(k, v)
	}
	if q.Get("pageSize") == "" {
		q.Set("pageSize", strconv.Itoa(a.opts.PageSize))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseAPITime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func (a *APIScanner) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
