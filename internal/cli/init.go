package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ignblog/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Initialized %s. Set cms.endpoint, then run 'ignblog build'.\n", configDir)
	} else {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# ignblog configuration

cms:
  kind: prismic              # prismic or feed
  endpoint: "https://your-repo.cdn.prismic.io/api/v2"
  access_token_env: PRISMIC_ACCESS_TOKEN
  # feed_url: "https://example.com/feed.xml"
  document_type: post
  timeout: 30s
  rate_limit: 5

site:
  title: ignblog
  locale: pt-BR
  timezone: America/Sao_Paulo
  output_dir: public
  page_size: 1
  prerender: 13
  concurrency: 4
  revalidate: 6h
  words_per_minute: 200

storage:
  path: .ignblog/ignblog.db
  keep_builds: 10

cache:
  # address: "localhost:6379"   # valkey; empty keeps the cache in memory
  tls: false

server:
  addr: ":3000"
  view_ttl: 30m
  document_ttl: 6h
  load_rate: 0

log:
  level: info
  format: text
`
