package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"NewsCollector/internal/domain"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "NEWS_COLLECTOR_CONFIG"
	dataDirEnv       = "NEWS_COLLECTOR_DATA_DIR"
	logLevelEnv      = "LOG_LEVEL"
	newsAPIKeyEnv    = "NEWS_API_KEY"
	redditAgentEnv   = "REDDIT_USER_AGENT"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
)

// ErrNoSources is returned when the configuration enables no source at all.
var ErrNoSources = errors.New("no sources configured")

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Storage       StorageConfig      `yaml:"storage"`
	Ingestion     IngestionConfig    `yaml:"ingestion"`
	Providers     ProviderConfig     `yaml:"providers"`
	Notifications NotificationConfig `yaml:"notifications"`
	FeedsFile     string             `yaml:"feedsFile"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines how often cycles run and how long one may take.
type SchedulerConfig struct {
	IntervalHours int            `yaml:"intervalHours"`
	CycleTimeout  time.Duration  `yaml:"cycleTimeout"`
	Timezone      string         `yaml:"timezone"`
	location      *time.Location `yaml:"-"`
}

// Interval returns the period between two scheduled cycles.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// StorageConfig lays out the data directory.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// TrackingDir holds the ledger, its lock and the run history.
func (s StorageConfig) TrackingDir() string { return filepath.Join(s.DataDir, "tracking") }

// LedgerPath is the durable fingerprint set.
func (s StorageConfig) LedgerPath() string {
	return filepath.Join(s.TrackingDir(), "collected_hashes.json")
}

// HistoryPath is the capped run history.
func (s StorageConfig) HistoryPath() string {
	return filepath.Join(s.TrackingDir(), "collection_history.json")
}

// RawDir holds the per-adapter artifact folders.
func (s StorageConfig) RawDir() string { return filepath.Join(s.DataDir, "raw") }

// CorpusDir receives one artifact pair per cycle.
func (s StorageConfig) CorpusDir() string { return filepath.Join(s.DataDir, "raw", "combined") }

// IndexPath is the SQLite article index consumed by the search layer.
func (s StorageConfig) IndexPath() string { return filepath.Join(s.DataDir, "index", "articles.db") }

// IngestionConfig tunes fetching and filtering.
type IngestionConfig struct {
	RecencyHours   int           `yaml:"recencyHours"`
	Workers        int           `yaml:"workers"`
	ParallelPhases bool          `yaml:"parallelPhases"`
	UserAgent      string        `yaml:"userAgent"`
	HTTPTimeout    time.Duration `yaml:"httpTimeout"`
	ScrapeTimeout  time.Duration `yaml:"scrapeTimeout"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

// RecencyWindow is the freshness span articles must fall into.
func (i IngestionConfig) RecencyWindow() time.Duration {
	return time.Duration(i.RecencyHours) * time.Hour
}

// BackoffConfig bounds retries on rate-limit responses.
type BackoffConfig struct {
	MaxWait time.Duration `yaml:"maxWait"`
	Retries int           `yaml:"retries"`
}

// ProviderConfig groups per-adapter settings.
type ProviderConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
	Reddit  RedditConfig  `yaml:"reddit"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
}

// NewsAPIConfig describes the REST API adapter.
type NewsAPIConfig struct {
	APIKey      string        `yaml:"apiKey"`
	PageSize    int           `yaml:"pageSize"`
	MaxRequests int           `yaml:"maxRequests"`
	Delay       time.Duration `yaml:"delay"`
}

// RedditConfig describes the social adapter.
type RedditConfig struct {
	UserAgent string        `yaml:"userAgent"`
	Limit     int           `yaml:"limit"`
	Delay     time.Duration `yaml:"delay"`
}

// ScrapeConfig describes the HTML heading adapter.
type ScrapeConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxHeadings int           `yaml:"maxHeadings"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SourceConfig describes a single source and the adapter that reads it.
type SourceConfig struct {
	Name     string            `yaml:"name"`
	Type     domain.SourceType `yaml:"type"`
	URL      string            `yaml:"url"`
	Disabled bool              `yaml:"disabled"`
	Options  map[string]string `yaml:"options"`
}

// Load reads .env, the YAML configuration (if any) and environment overrides.
// path wins over NEWS_COLLECTOR_CONFIG. An explicit file that cannot be read
// or parsed is an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		fileCfg := defaultConfig()
		fileCfg.Sources = nil
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if len(fileCfg.Sources) == 0 && fileCfg.FeedsFile == "" {
			fileCfg.Sources = cfg.Sources
		}
		cfg = fileCfg
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if cfg.FeedsFile != "" {
		feeds, err := LoadFeeds(cfg.FeedsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources = append(cfg.Sources, feeds...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFeeds reads a JSON or YAML mapping of feed name to URL into RSS sources,
// ordered by name.
func LoadFeeds(path string) ([]SourceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds %s: %w", path, err)
	}

	var feeds map[string]string
	if err := yaml.Unmarshal(raw, &feeds); err != nil {
		return nil, fmt.Errorf("parse feeds %s: %w", path, err)
	}

	names := make([]string, 0, len(feeds))
	for name := range feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make([]SourceConfig, 0, len(names))
	for _, name := range names {
		url := strings.TrimSpace(feeds[name])
		if url == "" {
			continue
		}
		sources = append(sources, SourceConfig{Name: name, Type: domain.SourceRSS, URL: url})
	}
	return sources, nil
}

// Validate checks the values a cycle cannot run without.
func (c Config) Validate() error {
	if len(c.EnabledSources()) == 0 {
		return ErrNoSources
	}
	for _, src := range c.Sources {
		switch src.Type {
		case domain.SourceRSS, domain.SourceAPI, domain.SourceScrape, domain.SourceSocial:
		default:
			return fmt.Errorf("source %s: unknown type %q", src.Name, src.Type)
		}
	}
	if c.Ingestion.RecencyHours <= 0 {
		return fmt.Errorf("ingestion.recencyHours must be positive, got %d", c.Ingestion.RecencyHours)
	}
	if c.Ingestion.Workers <= 0 {
		return fmt.Errorf("ingestion.workers must be positive, got %d", c.Ingestion.Workers)
	}
	if c.Scheduler.IntervalHours <= 0 {
		return fmt.Errorf("scheduler.intervalHours must be positive, got %d", c.Scheduler.IntervalHours)
	}
	return nil
}

// EnabledSources returns the sources not marked disabled.
func (c Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		if !src.Disabled {
			out = append(out, src)
		}
	}
	return out
}

// SourcesOfType returns the enabled sources read by the given adapter.
func (c Config) SourcesOfType(t domain.SourceType) []SourceConfig {
	var out []SourceConfig
	for _, src := range c.EnabledSources() {
		if src.Type == t {
			out = append(out, src)
		}
	}
	return out
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.DataDir = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(newsAPIKeyEnv); v != "" {
		c.Providers.NewsAPI.APIKey = v
	}

	if v := os.Getenv(redditAgentEnv); v != "" {
		c.Providers.Reddit.UserAgent = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{IntervalHours: 6, CycleTimeout: 30 * time.Minute, Timezone: defaultTimezone, location: tz},
		Storage:   StorageConfig{DataDir: "data"},
		Ingestion: IngestionConfig{
			RecencyHours:  24,
			Workers:       5,
			UserAgent:     "Mozilla/5.0 (compatible; NewsCollector/1.0)",
			HTTPTimeout:   10 * time.Second,
			ScrapeTimeout: 15 * time.Second,
			Backoff:       BackoffConfig{MaxWait: 15 * time.Minute, Retries: 1},
		},
		Providers: ProviderConfig{
			NewsAPI: NewsAPIConfig{PageSize: 100, MaxRequests: 4, Delay: time.Second},
			Reddit:  RedditConfig{UserAgent: "NewsCollector/1.0", Limit: 100, Delay: time.Second},
			Scrape:  ScrapeConfig{Delay: 2 * time.Second, MaxHeadings: 100},
		},
		Sources: defaultSources(),
	}
}

func defaultSources() []SourceConfig {
	sources := []SourceConfig{
		{Name: "BBC_World", Type: domain.SourceRSS, URL: "http://feeds.bbci.co.uk/news/world/rss.xml"},
		{Name: "BBC_Business", Type: domain.SourceRSS, URL: "http://feeds.bbci.co.uk/news/business/rss.xml"},
		{Name: "BBC_Tech", Type: domain.SourceRSS, URL: "http://feeds.bbci.co.uk/news/technology/rss.xml"},
		{Name: "Guardian_World", Type: domain.SourceRSS, URL: "https://www.theguardian.com/world/rss"},
		{Name: "NPR_News", Type: domain.SourceRSS, URL: "https://feeds.npr.org/1001/rss.xml"},
		{Name: "AlJazeera_News", Type: domain.SourceRSS, URL: "https://www.aljazeera.com/xml/rss/all.xml"},
		{Name: "TechCrunch", Type: domain.SourceRSS, URL: "https://techcrunch.com/feed/"},
		{Name: "Hacker_News", Type: domain.SourceRSS, URL: "https://news.ycombinator.com/rss"},

		{Name: "BBC", Type: domain.SourceScrape, URL: "https://www.bbc.com/news"},
		{Name: "Guardian", Type: domain.SourceScrape, URL: "https://www.theguardian.com/international"},
		{Name: "AlJazeera", Type: domain.SourceScrape, URL: "https://www.aljazeera.com/news/"},
		{Name: "France24", Type: domain.SourceScrape, URL: "https://www.france24.com/en/"},
	}

	for _, country := range []string{"us", "fr"} {
		for _, category := range []string{"business", "entertainment", "health", "science", "sports", "technology"} {
			sources = append(sources, SourceConfig{
				Name:    fmt.Sprintf("newsapi-%s-%s", country, category),
				Type:    domain.SourceAPI,
				URL:     "https://newsapi.org/v2/top-headlines",
				Options: map[string]string{"country": country, "category": category},
			})
		}
	}

	for _, sub := range []string{"worldnews", "news", "technology", "science", "business"} {
		sources = append(sources, SourceConfig{
			Name:    "r/" + sub,
			Type:    domain.SourceSocial,
			URL:     "https://www.reddit.com",
			Options: map[string]string{"subreddit": sub},
		})
	}
	return sources
}
