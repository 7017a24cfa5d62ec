package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ignblog/internal/cache"
	"github.com/ppiankov/ignblog/internal/config"
	"github.com/ppiankov/ignblog/internal/store"
)

const doctorTimeout = 15 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, storage, cache, and content service",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	cfg, err := loadConfig()
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return errors.New("some checks failed")
	}
	printCheck(true, "config.yaml (%s, document type %q)", cfg.CMS.Kind, cfg.CMS.DocumentType)

	if cfg.CMS.Kind == config.KindPrismic && cfg.CMS.AccessTokenEnv != "" && cfg.CMS.AccessToken == "" {
		printInfo("%s is empty, querying the repository without a token", cfg.CMS.AccessTokenEnv)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	if !checkStore(ctx, cfg) {
		ok = false
	}
	if !checkCache(ctx, cfg) {
		ok = false
	}

	srcs, err := openSources(cfg)
	if err != nil {
		printCheck(false, "content service: %v", err)
		ok = false
	} else {
		defer srcs.Close()
		page, err := srcs.direct.QueryInitialPage(ctx, cfg.CMS.DocumentType, 1)
		if err != nil {
			printCheck(false, "content service: %v", err)
			ok = false
		} else {
			printCheck(true, "content service %s (%d posts on the first page, more: %t)",
				srcs.direct.Name(), len(page.Results), !page.NextPage.Empty())
		}
	}

	if !ok {
		return errors.New("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkStore(ctx context.Context, cfg *config.Config) bool {
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		return false
	}
	defer func() { _ = db.Close() }()

	docs, err := db.CountDocuments(ctx)
	if err != nil {
		printCheck(false, "database: %v", err)
		return false
	}
	printCheck(true, "database %s (%s documents)", cfg.Storage.Path, humanize.Comma(int64(docs)))

	latest, err := db.LatestBuild(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		printInfo("no builds yet, run 'ignblog build'")
	case err != nil:
		printCheck(false, "latest build: %v", err)
		return false
	default:
		age := time.Since(latest.FinishedAt)
		printInfo("latest build %s finished %s", latest.ID, humanize.Time(latest.FinishedAt))
		if age > 2*cfg.Site.Revalidate.Duration {
			printInfo("latest build is older than twice the revalidation period (%s)", cfg.Site.Revalidate.Duration)
		}
	}
	return true
}

func checkCache(ctx context.Context, cfg *config.Config) bool {
	if cfg.Cache.Address == "" {
		printCheck(true, "cache in memory (ttl %s)", cfg.Cache.TTL.Duration)
		return true
	}
	v, err := cache.NewValkey(cfg.Cache.Address, cfg.Cache.TLS)
	if err != nil {
		printCheck(false, "cache: %v", err)
		return false
	}
	defer v.Close()
	if err := v.Ping(ctx); err != nil {
		printCheck(false, "cache %s: %v", cfg.Cache.Address, err)
		return false
	}
	printCheck(true, "cache %s (ttl %s)", cfg.Cache.Address, cfg.Cache.TTL.Duration)
	return true
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
