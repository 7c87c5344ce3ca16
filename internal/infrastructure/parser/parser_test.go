package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsCollector/internal/config"
	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/httpclient"
	"NewsCollector/internal/ledger"
	"NewsCollector/internal/scanner"
)

var testNow = time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)

func testRequest(gate scanner.Gate, sources ...scanner.Source) scanner.Request {
	return scanner.Request{
		Now:     testNow,
		Window:  24 * time.Hour,
		Sources: sources,
		Gate:    gate,
		Clock:   func() time.Time { return testNow },
	}
}

func rssFeed(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title>` + strings.Join(items, "") + `</channel></rss>`
}

func rssItem(title, link string, published time.Time, description string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate><description><![CDATA[%s]]></description></item>`,
		title, link, published.Format(time.RFC1123Z), description)
}

func TestRSSScannerFiltersAndNormalizes(t *testing.T) {
	t.Parallel()

	feed := rssFeed(
		rssItem("Central Bank Raises Rates", "https://x/1", testNow.Add(-time.Hour), "<p>The <b>bank</b> moved.</p>"),
		rssItem("Old Story", "https://x/old", testNow.Add(-48*time.Hour), "stale"),
		rssItem("   ", "https://x/empty", testNow, "no title"),
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	s := NewRSSScanner(httpclient.New(httpclient.Options{}), 2, nil)
	res, err := s.Scan(context.Background(), testRequest(ledger.New(nil, nil), scanner.Source{Name: "feed-a", URL: server.URL}))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(res.Articles))
	}
	a := res.Articles[0]
	if a.SourceType != domain.SourceRSS || a.SourceName != "feed-a" {
		t.Fatalf("unexpected source fields %+v", a)
	}
	if a.Summary != "The bank moved." {
		t.Fatalf("html not stripped: %q", a.Summary)
	}
	if a.NewsType != "business" {
		t.Fatalf("expected business, got %s", a.NewsType)
	}
	if res.Skipped[scanner.SkipStale] != 1 || res.Skipped[scanner.SkipEmptyTitle] != 1 {
		t.Fatalf("unexpected skip counts %v", res.Skipped)
	}
}

func TestRSSScannerIsolatesBrokenFeed(t *testing.T) {
	t.Parallel()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed(rssItem("Good feed story about tennis", "https://x/g", testNow, ""))))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer bad.Close()

	s := NewRSSScanner(nil, 5, nil)
	res, _ := s.Scan(context.Background(), testRequest(ledger.New(nil, nil),
		scanner.Source{Name: "good", URL: good.URL},
		scanner.Source{Name: "bad", URL: bad.URL},
	))

	if len(res.Articles) != 1 || res.BySource["good"] != 1 {
		t.Fatalf("good feed should still produce its article, got %+v", res.BySource)
	}
	if names := res.FailedNames(); len(names) != 1 || names[0] != "bad" {
		t.Fatalf("expected bad to fail, got %v", names)
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"<div>a<script>var x=1;</script>b</div>", "a b"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Fatalf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAPIScannerUsesSuppliedCategory(t *testing.T) {
	t.Parallel()

	var gotKey, gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Api-Key"))
		gotQuery.Store(r.URL.RawQuery)
		fmt.Fprintf(w, `{"status":"ok","articles":[
			{"source":{"name":"Reuters"},"title":"Election results announced","url":"https://x/e","publishedAt":%q,"description":"Votes counted"},
			{"source":{"name":"Reuters"},"title":"Ancient story","url":"https://x/o","publishedAt":%q}
		]}`, testNow.Add(-time.Hour).Format(time.RFC3339), testNow.Add(-72*time.Hour).Format(time.RFC3339))
	}))
	defer server.Close()

	s := NewAPIScanner(nil, APIOptions{APIKey: "secret", MaxRequests: 4}, nil)
	src := scanner.Source{Name: "newsapi-us-sports", URL: server.URL, Options: map[string]string{"country": "us", "category": "sports"}}
	res, err := s.Scan(context.Background(), testRequest(ledger.New(nil, nil), src))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if gotKey.Load() != "secret" {
		t.Fatalf("api key not sent as header")
	}
	q, _ := url.ParseQuery(gotQuery.Load().(string))
	if q.Get("country") != "us" || q.Get("category") != "sports" || q.Get("pageSize") != "100" {
		t.Fatalf("unexpected query %v", q)
	}

	if len(res.Articles) != 1 {
		t.Fatalf("expected 1 fresh article, got %d", len(res.Articles))
	}
	a := res.Articles[0]
	if a.NewsType != "sports" {
		t.Fatalf("supplied category must win, got %s", a.NewsType)
	}
	if a.SourceName != "Reuters" || a.Extra["country"] != "us" || a.Extra["category"] != "sports" {
		t.Fatalf("unexpected metadata %+v", a)
	}
	if res.BySource[src.Name] != 1 {
		t.Fatalf("count should be keyed by source descriptor, got %v", res.BySource)
	}
}

func TestAPIScannerRequestCap(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok","articles":[]}`))
	}))
	defer server.Close()

	var sources []scanner.Source
	for i := 0; i < 6; i++ {
		sources = append(sources, scanner.Source{Name: fmt.Sprintf("s%d", i), URL: server.URL})
	}

	s := NewAPIScanner(nil, APIOptions{APIKey: "k", MaxRequests: 4}, nil)
	res, _ := s.Scan(context.Background(), testRequest(ledger.New(nil, nil), sources...))
	if calls.Load() != 4 {
		t.Fatalf("expected 4 requests, got %d", calls.Load())
	}
	if len(res.Failed) != 0 {
		t.Fatalf("capped sources are not failures, got %v", res.Failed)
	}
}

func TestAPIScannerStatusErrorAndMissingKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"bad key"}`))
	}))
	defer server.Close()
	src := scanner.Source{Name: "api", URL: server.URL}

	res, _ := NewAPIScanner(nil, APIOptions{APIKey: "k"}, nil).Scan(context.Background(), testRequest(ledger.New(nil, nil), src))
	if len(res.Failed) != 1 {
		t.Fatalf("error status should fail the source, got %+v", res)
	}

	res, err := NewAPIScanner(nil, APIOptions{}, nil).Scan(context.Background(), testRequest(ledger.New(nil, nil), src))
	if err != nil || len(res.Failed) != 0 || len(res.Articles) != 0 {
		t.Fatalf("missing key should disable quietly, got %+v, %v", res, err)
	}
}

func TestExtractHeadings(t *testing.T) {
	t.Parallel()

	page := `<html><body>
	<h1><a href="/news/world-1">A long enough world headline</a></h1>
	<a href="https://other.example/story"><h2>Wrapped heading with parent link</h2></a>
	<h2>Short</h2>
	<h3>Heading with no link but long enough</h3>
	<h2>` + strings.Repeat("x", 301) + `</h2>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	base, _ := url.Parse("https://site.example/news/")

	got := extractHeadings(doc, base, "site", 100)
	if len(got) != 3 {
		t.Fatalf("expected 3 headings, got %d: %+v", len(got), got)
	}
	if got[0].Link != "https://site.example/news/world-1" {
		t.Fatalf("relative link not resolved: %s", got[0].Link)
	}
	if got[1].Link != "https://other.example/story" {
		t.Fatalf("parent anchor not used: %s", got[1].Link)
	}
	if got[2].Link != "" || got[2].PublishedAt != nil {
		t.Fatalf("unexpected link/date for bare heading: %+v", got[2])
	}

	if limited := extractHeadings(doc, base, "site", 1); len(limited) != 1 {
		t.Fatalf("heading limit not applied, got %d", len(limited))
	}
}

func TestScrapeScannerIgnoresRecency(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<h2><a href="/a">Football club wins the league title</a></h2>`))
	}))
	defer server.Close()

	s := NewScrapeScanner(nil, 2, 0, nil)
	req := testRequest(ledger.New(nil, nil), scanner.Source{Name: "site", URL: server.URL})
	req.Window = time.Nanosecond

	res, err := s.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Articles) != 1 || res.Articles[0].NewsType != "sports" {
		t.Fatalf("expected one sports article, got %+v", res.Articles)
	}
	if res.Articles[0].Link != server.URL+"/a" {
		t.Fatalf("unexpected link %s", res.Articles[0].Link)
	}
}

func TestSocialScannerParsesListing(t *testing.T) {
	t.Parallel()

	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path + "?" + r.URL.RawQuery)
		fmt.Fprintf(w, `{"data":{"children":[
			{"data":{"title":"NASA launches new telescope","url":"https://x/nasa","created_utc":%d,"score":42,"subreddit":"science"}},
			{"data":{"title":"Self post","url":"","permalink":"/r/science/comments/abc/self_post/","created_utc":%d,"score":1,"subreddit":"science"}},
			{"data":{"title":"Yesterday's news","url":"https://x/old","created_utc":%d,"score":3,"subreddit":"science"}}
		]}}`, testNow.Add(-time.Hour).Unix(), testNow.Unix(), testNow.Add(-30*time.Hour).Unix())
	}))
	defer server.Close()

	s := NewSocialScanner(nil, 2, 50, nil)
	src := scanner.Source{Name: "r/science", URL: server.URL, Options: map[string]string{"subreddit": "science"}}
	res, err := s.Scan(context.Background(), testRequest(ledger.New(nil, nil), src))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if path.Load() != "/r/science/new.json?limit=50" {
		t.Fatalf("unexpected listing url %v", path.Load())
	}
	if len(res.Articles) != 2 {
		t.Fatalf("expected 2 fresh posts, got %d", len(res.Articles))
	}
	first := res.Articles[0]
	if first.Extra["score"] != "42" || first.Extra["subreddit"] != "science" || first.NewsType != "science" {
		t.Fatalf("unexpected metadata %+v", first)
	}
	if res.Articles[1].Link != "https://www.reddit.com/r/science/comments/abc/self_post/" {
		t.Fatalf("permalink fallback not applied: %s", res.Articles[1].Link)
	}
}

func TestSocialScannerRateLimitFailsInIsolation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := httpclient.New(httpclient.Options{Backoff: httpclient.BackoffPolicy{MaxWait: time.Millisecond, Retries: 1}})
	s := NewSocialScanner(client, 1, 0, nil)
	res, err := s.Scan(context.Background(), testRequest(ledger.New(nil, nil),
		scanner.Source{Name: "r/news", URL: server.URL, Options: map[string]string{"subreddit": "news"}}))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Failed) != 1 || !errors.Is(res.Failed[0].Err, httpclient.ErrRateLimited) {
		t.Fatalf("expected a rate-limited failure, got %+v", res.Failed)
	}
}

type stubScanner struct {
	kind domain.SourceType
	err  error
	seen atomic.Int32
}

func (s *stubScanner) Name() domain.SourceType { return s.kind }

func (s *stubScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	s.seen.Add(int32(len(req.Sources)))
	if s.err != nil {
		return scanner.Result{}, s.err
	}
	return scanner.Fanout(ctx, req, 1, nil, func(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
		return []scanner.Candidate{{SourceType: s.kind, Title: "Central Bank Raises Rates", Link: "https://x/1"}}, nil
	}), nil
}

func TestStrategySourcePhases(t *testing.T) {
	t.Parallel()

	for _, parallel := range []bool{false, true} {
		rss := &stubScanner{kind: domain.SourceRSS}
		social := &stubScanner{kind: domain.SourceSocial, err: errors.New("boom")}
		reg := scanner.NewRegistry()
		reg.Register(rss)
		reg.Register(social)

		sources := []config.SourceConfig{
			{Name: "feed-a", Type: domain.SourceRSS, URL: "http://a"},
			{Name: "feed-b", Type: domain.SourceRSS, URL: "http://b"},
			{Name: "feed-off", Type: domain.SourceRSS, URL: "http://c", Disabled: true},
			{Name: "r/news", Type: domain.SourceSocial, URL: "http://r"},
			{Name: "site", Type: domain.SourceScrape, URL: "http://s"},
		}

		src := NewStrategySource(reg, sources, parallel, nil)
		res, err := src.Collect(context.Background(), testRequest(ledger.New(nil, nil)))
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}

		if rss.seen.Load() != 2 {
			t.Fatalf("disabled source must be skipped, rss saw %d", rss.seen.Load())
		}
		if len(res.Articles) != 1 {
			t.Fatalf("parallel=%v: expected one article across feeds, got %d", parallel, len(res.Articles))
		}
		failed := res.FailedNames()
		if len(failed) != 2 || failed[0] != "r/news" || failed[1] != "site" {
			t.Fatalf("parallel=%v: expected social and unregistered scrape to fail, got %v", parallel, failed)
		}
	}
}
