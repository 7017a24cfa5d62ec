package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir      = ".ignblog"
	DefaultConfigFile     = "config.yaml"
	DefaultStoragePath    = ".ignblog/ignblog.db"
	DefaultKeepBuilds     = 10
	DefaultCMSKind        = KindPrismic
	DefaultDocumentType   = "post"
	DefaultCMSTimeout     = 30 * time.Second
	DefaultRateLimit      = 5.0
	DefaultSiteTitle      = "ignblog"
	DefaultLocale         = "pt-BR"
	DefaultTimezone       = "UTC"
	DefaultOutputDir      = "public"
	DefaultPageSize       = 1
	DefaultPrerender      = 13
	DefaultConcurrency    = 4
	DefaultRevalidate     = 6 * time.Hour
	DefaultWordsPerMinute = 200
	DefaultServerAddr     = ":3000"
	DefaultViewTTL        = 30 * time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// CMS kinds.
const (
	KindPrismic = "prismic"
	KindFeed    = "feed"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "6h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	CMS     CMSConfig     `yaml:"cms"`
	Site    SiteConfig    `yaml:"site"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

type CMSConfig struct {
	Kind           string   `yaml:"kind"`
	Endpoint       string   `yaml:"endpoint"`
	AccessTokenEnv string   `yaml:"access_token_env"`
	FeedURL        string   `yaml:"feed_url"`
	DocumentType   string   `yaml:"document_type"`
	Timeout        Duration `yaml:"timeout"`
	RateLimit      float64  `yaml:"rate_limit"`

	// Resolved from env var at load time.
	AccessToken string `yaml:"-"`
}

type SiteConfig struct {
	Title          string   `yaml:"title"`
	Locale         string   `yaml:"locale"`
	Timezone       string   `yaml:"timezone"`
	OutputDir      string   `yaml:"output_dir"`
	PageSize       int      `yaml:"page_size"`
	Prerender      int      `yaml:"prerender"`
	Concurrency    int      `yaml:"concurrency"`
	Revalidate     Duration `yaml:"revalidate"`
	WordsPerMinute int      `yaml:"words_per_minute"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	KeepBuilds int    `yaml:"keep_builds"`
}

// CacheConfig selects the response cache. An empty Address keeps the cache in memory.
type CacheConfig struct {
	Address string   `yaml:"address"`
	TLS     bool     `yaml:"tls"`
	TTL     Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	ViewTTL     Duration `yaml:"view_ttl"`
	DocumentTTL Duration `yaml:"document_ttl"`
	// LoadRate limits view requests per second per client; 0 disables the limit.
	LoadRate float64 `yaml:"load_rate"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.CMS.Kind == "" {
		cfg.CMS.Kind = DefaultCMSKind
	}
	if cfg.CMS.DocumentType == "" {
		cfg.CMS.DocumentType = DefaultDocumentType
	}
	if cfg.CMS.Timeout.Duration == 0 {
		cfg.CMS.Timeout.Duration = DefaultCMSTimeout
	}
	if cfg.CMS.RateLimit == 0 {
		cfg.CMS.RateLimit = DefaultRateLimit
	}
	if cfg.Site.Title == "" {
		cfg.Site.Title = DefaultSiteTitle
	}
	if cfg.Site.Locale == "" {
		cfg.Site.Locale = DefaultLocale
	}
	if cfg.Site.Timezone == "" {
		cfg.Site.Timezone = DefaultTimezone
	}
	if cfg.Site.OutputDir == "" {
		cfg.Site.OutputDir = DefaultOutputDir
	}
	if cfg.Site.PageSize == 0 {
		cfg.Site.PageSize = DefaultPageSize
	}
	if cfg.Site.Prerender == 0 {
		cfg.Site.Prerender = DefaultPrerender
	}
	if cfg.Site.Concurrency == 0 {
		cfg.Site.Concurrency = DefaultConcurrency
	}
	if cfg.Site.Revalidate.Duration == 0 {
		cfg.Site.Revalidate.Duration = DefaultRevalidate
	}
	if cfg.Site.WordsPerMinute == 0 {
		cfg.Site.WordsPerMinute = DefaultWordsPerMinute
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.KeepBuilds == 0 {
		cfg.Storage.KeepBuilds = DefaultKeepBuilds
	}
	if cfg.Cache.TTL.Duration == 0 {
		cfg.Cache.TTL.Duration = cfg.Site.Revalidate.Duration
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Server.ViewTTL.Duration == 0 {
		cfg.Server.ViewTTL.Duration = DefaultViewTTL
	}
	if cfg.Server.DocumentTTL.Duration == 0 {
		cfg.Server.DocumentTTL.Duration = cfg.Site.Revalidate.Duration
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.CMS.AccessTokenEnv != "" {
		cfg.CMS.AccessToken = os.Getenv(cfg.CMS.AccessTokenEnv)
	}
}

func validate(cfg *Config) error {
	switch cfg.CMS.Kind {
	case KindPrismic:
		if err := validateURL(cfg.CMS.Endpoint); err != nil {
			return fmt.Errorf("cms.endpoint: %w", err)
		}
	case KindFeed:
		if err := validateURL(cfg.CMS.FeedURL); err != nil {
			return fmt.Errorf("cms.feed_url: %w", err)
		}
	default:
		return fmt.Errorf("cms.kind: unknown kind %q (want prismic or feed)", cfg.CMS.Kind)
	}
	if cfg.CMS.RateLimit < 0 {
		return errors.New("cms.rate_limit: must not be negative")
	}

	if _, err := language.Parse(cfg.Site.Locale); err != nil {
		return fmt.Errorf("site.locale: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Site.Timezone); err != nil {
		return fmt.Errorf("site.timezone: %w", err)
	}
	if cfg.Site.PageSize < 1 {
		return errors.New("site.page_size: must be at least 1")
	}
	if cfg.Site.Prerender < 0 {
		return errors.New("site.prerender: must not be negative")
	}
	if cfg.Site.Concurrency < 1 {
		return errors.New("site.concurrency: must be at least 1")
	}
	if cfg.Site.WordsPerMinute < 1 {
		return errors.New("site.words_per_minute: must be at least 1")
	}

	if cfg.Server.LoadRate < 0 {
		return errors.New("server.load_rate: must not be negative")
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
		// valid
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	return nil
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", name)
	}
	return level, nil
}

// Location returns the site time zone. validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
