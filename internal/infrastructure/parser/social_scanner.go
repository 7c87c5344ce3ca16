package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/infrastructure/httpclient"
	"NewsCollector/internal/scanner"
)

// SocialScanner reads the public "new" listing of Reddit communities.
type SocialScanner struct {
	client  *httpclient.Client
	workers int
	limit   int
	logger  *slog.Logger
}

var _ scanner.Scanner = (*SocialScanner)(nil)

// NewSocialScanner wires an HTTP client; limit defaults to 100 posts.
func NewSocialScanner(client *httpclient.Client, workers, limit int, log *slog.Logger) *SocialScanner {
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}
	if limit <= 0 {
		limit = 100
	}
	return &SocialScanner{client: client, workers: workers, limit: limit, logger: log}
}

// Name identifies the strategy inside the registry.
func (s *SocialScanner) Name() domain.SourceType {
	return domain.SourceSocial
}

// Scan fetches every community of req.
func (s *SocialScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	return scanner.Fanout(ctx, req, s.workers, s.logger, s.fetch), nil
}

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				URL        string  `json:"url"`
				Permalink  string  `json:"permalink"`
				Selftext   string  `json:"selftext"`
				CreatedUTC float64 `json:"created_utc"`
				Score      int     `json:"score"`
				Subreddit  string  `json:"subreddit"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (s *SocialScanner) fetch(ctx context.Context, src scanner.Source) ([]scanner.Candidate, error) {
	endpoint, err := s.listingURL(src)
	if err != nil {
		return nil, err
	}

	body, err := s.client.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload listing
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	candidates := make([]scanner.Candidate, 0, len(payload.Data.Children))
	for _, child := range payload.Data.Children {
		post := child.Data
		link := post.URL
		if link == "" && post.Permalink != "" {
			link = "https://www.reddit.com" + post.Permalink
		}

		var published *time.Time
		if post.CreatedUTC > 0 {
			sec, frac := math.Modf(post.CreatedUTC)
			t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
			published = &t
		}

		candidates = append(candidates, scanner.Candidate{
			SourceType:  domain.SourceSocial,
			SourceName:  src.Name,
			Title:       post.Title,
			Link:        link,
			PublishedAt: published,
			Summary:     post.Selftext,
			Extra: map[string]string{
				"subreddit": firstNonEmpty(post.Subreddit, src.Options["subreddit"]),
				"score":     strconv.Itoa(post.Score),
			},
		})
	}
	return candidates, nil
}

func (s *SocialScanner) listingURL(src scanner.Source) (string, error) {
	sub := strings.TrimPrefix(strings.TrimSpace(src.Options["subreddit"]), "r/")
	if sub == "" {
		sub = strings.TrimPrefix(src.Name, "r/")
	}
	if sub == "" {
		return "", fmt.Errorf("source %s has no subreddit", src.Name)
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", src.URL, err)
	}
	u = u.JoinPath("r", sub, "new.json")
	q := u.Query()
	q.Set("limit", strconv.Itoa(s.limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
