package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_PRISMIC_TOKEN", "tok-secret")

	writeTestYAML(t, dir, DefaultConfigFile, `
cms:
  kind: prismic
  endpoint: https://ignblog.cdn.prismic.io/api/v2
  access_token_env: TEST_PRISMIC_TOKEN
  document_type: article
  timeout: 10s
  rate_limit: 2.5
site:
  title: spacetraveling
  locale: en
  timezone: "America/Sao_Paulo"
  output_dir: dist
  page_size: 5
  prerender: 20
  concurrency: 8
  revalidate: 1h
  words_per_minute: 250
storage:
  path: custom.db
  keep_builds: 3
cache:
  address: 127.0.0.1:6379
  tls: true
  ttl: 30m
server:
  addr: ":8080"
  view_ttl: 5m
log:
  level: debug
  format: json
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// CMS
	if cfg.CMS.AccessToken != "tok-secret" {
		t.Errorf("access_token = %q, want tok-secret", cfg.CMS.AccessToken)
	}
	if cfg.CMS.DocumentType != "article" {
		t.Errorf("document_type = %q", cfg.CMS.DocumentType)
	}
	if cfg.CMS.Timeout.Duration != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", cfg.CMS.Timeout.Duration)
	}
	if cfg.CMS.RateLimit != 2.5 {
		t.Errorf("rate_limit = %v, want 2.5", cfg.CMS.RateLimit)
	}

	// Site
	if cfg.Site.Title != "spacetraveling" {
		t.Errorf("title = %q", cfg.Site.Title)
	}
	if cfg.Site.Locale != "en" {
		t.Errorf("locale = %q", cfg.Site.Locale)
	}
	if cfg.Site.PageSize != 5 || cfg.Site.Prerender != 20 || cfg.Site.Concurrency != 8 {
		t.Errorf("site sizes = %d/%d/%d", cfg.Site.PageSize, cfg.Site.Prerender, cfg.Site.Concurrency)
	}
	if cfg.Site.Revalidate.Duration != time.Hour {
		t.Errorf("revalidate = %v, want 1h", cfg.Site.Revalidate.Duration)
	}
	if cfg.Site.WordsPerMinute != 250 {
		t.Errorf("words_per_minute = %d, want 250", cfg.Site.WordsPerMinute)
	}
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Errorf("location = %s", cfg.Location())
	}

	// Storage
	if cfg.Storage.Path != "custom.db" {
		t.Errorf("storage path = %q, want custom.db", cfg.Storage.Path)
	}
	if cfg.Storage.KeepBuilds != 3 {
		t.Errorf("keep_builds = %d, want 3", cfg.Storage.KeepBuilds)
	}

	// Cache
	if cfg.Cache.Address != "127.0.0.1:6379" || !cfg.Cache.TLS {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.TTL.Duration != 30*time.Minute {
		t.Errorf("cache ttl = %v, want 30m", cfg.Cache.TTL.Duration)
	}

	// Server
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ViewTTL.Duration != 5*time.Minute {
		t.Errorf("view_ttl = %v, want 5m", cfg.Server.ViewTTL.Duration)
	}

	// Log
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
cms:
  endpoint: https://ignblog.cdn.prismic.io/api/v2
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.CMS.Kind != KindPrismic {
		t.Errorf("cms.kind = %q, want %q", cfg.CMS.Kind, KindPrismic)
	}
	if cfg.CMS.DocumentType != DefaultDocumentType {
		t.Errorf("document_type = %q, want %q", cfg.CMS.DocumentType, DefaultDocumentType)
	}
	if cfg.Site.PageSize != DefaultPageSize {
		t.Errorf("page_size = %d, want %d", cfg.Site.PageSize, DefaultPageSize)
	}
	if cfg.Site.Prerender != DefaultPrerender {
		t.Errorf("prerender = %d, want %d", cfg.Site.Prerender, DefaultPrerender)
	}
	if cfg.Site.Revalidate.Duration != DefaultRevalidate {
		t.Errorf("revalidate = %v, want %v", cfg.Site.Revalidate.Duration, DefaultRevalidate)
	}
	if cfg.Site.Locale != DefaultLocale {
		t.Errorf("locale = %q, want %q", cfg.Site.Locale, DefaultLocale)
	}
	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage.path = %q, want %q", cfg.Storage.Path, DefaultStoragePath)
	}
	// cache ttl follows the revalidation period
	if cfg.Cache.TTL.Duration != DefaultRevalidate {
		t.Errorf("cache ttl = %v, want %v", cfg.Cache.TTL.Duration, DefaultRevalidate)
	}
	if cfg.Server.ViewTTL.Duration != DefaultViewTTL {
		t.Errorf("view_ttl = %v, want %v", cfg.Server.ViewTTL.Duration, DefaultViewTTL)
	}
	if cfg.Server.DocumentTTL.Duration != DefaultRevalidate {
		t.Errorf("document_ttl = %v, want %v", cfg.Server.DocumentTTL.Duration, DefaultRevalidate)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_FeedKind(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
cms:
  kind: feed
  feed_url: "https://example.com/feed.xml"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CMS.FeedURL != "https://example.com/feed.xml" {
		t.Errorf("feed_url = %q", cfg.CMS.FeedURL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing endpoint",
			yaml: "cms:\n  kind: prismic\n",
			want: "cms.endpoint",
		},
		{
			name: "feed without url",
			yaml: "cms:\n  kind: feed\n",
			want: "cms.feed_url",
		},
		{
			name: "unknown kind",
			yaml: "cms:\n  kind: wordpress\n",
			want: "unknown kind",
		},
		{
			name: "bad scheme",
			yaml: "cms:\n  endpoint: ftp://example.com/api\n",
			want: "unsupported scheme",
		},
		{
			name: "bad locale",
			yaml: "cms:\n  endpoint: https://x.prismic.io/api/v2\nsite:\n  locale: \"!!\"\n",
			want: "site.locale",
		},
		{
			name: "bad timezone",
			yaml: "cms:\n  endpoint: https://x.prismic.io/api/v2\nsite:\n  timezone: Not/AZone\n",
			want: "site.timezone",
		},
		{
			name: "negative page size",
			yaml: "cms:\n  endpoint: https://x.prismic.io/api/v2\nsite:\n  page_size: -1\n",
			want: "site.page_size",
		},
		{
			name: "bad log level",
			yaml: "cms:\n  endpoint: https://x.prismic.io/api/v2\nlog:\n  level: loud\n",
			want: "log.level",
		},
		{
			name: "bad log format",
			yaml: "cms:\n  endpoint: https://x.prismic.io/api/v2\nlog:\n  format: xml\n",
			want: "log.format",
		},
		{
			name: "negative load rate",
			yaml: "cms:\n  endpoint: https://x.prismic.io/api/v2\nserver:\n  load_rate: -1\n",
			want: "server.load_rate",
		},
	}

	for _, tt := range tests {
		dir := t.TempDir()
		writeTestYAML(t, dir, DefaultConfigFile, tt.yaml)

		_, err := Load(dir)
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %q, want containing %q", tt.name, err, tt.want)
		}
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
cms:
  endpoint: https://x.prismic.io/api/v2
site:
  revalidate: sometimes
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for bad duration")
	}
	if want := "parse duration"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want containing %q", err, want)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if want := "read config"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want containing %q", err, want)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `{{{invalid`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if want := "parse config"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want containing %q", err, want)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := Load("  ")
	if err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: level = %v, want %v", tt.in, got, tt.want)
		}
	}
}
