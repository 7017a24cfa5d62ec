package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ignblog/internal/config"
	"github.com/ppiankov/ignblog/internal/render"
	"github.com/ppiankov/ignblog/internal/site"
	"github.com/ppiankov/ignblog/internal/store"
)

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate the home page and the newest posts",
	RunE:  buildAction,
}

func init() {
	buildCmd.Flags().StringVar(&buildOutput, "output", "", "output directory (default site.output_dir)")
}

func buildAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if buildOutput != "" {
		cfg.Site.OutputDir = buildOutput
	}

	srcs, err := openSources(cfg)
	if err != nil {
		return err
	}
	defer srcs.Close()

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	r, err := newRenderer(cfg)
	if err != nil {
		return err
	}

	b := newBuilder(cfg, srcs, db, r)
	res, err := b.Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	fmt.Printf("Built %s: %d posts on the home page, %d prerendered", res.ID, len(res.Page.Results), len(res.Rendered))
	if len(res.Failed) > 0 {
		fmt.Printf(", %d failed", len(res.Failed))
	}
	fmt.Printf(" in %s → %s\n", res.Duration().Round(time.Millisecond), cfg.Site.OutputDir)
	for _, uid := range res.Failed {
		fmt.Printf("  failed: %s\n", uid)
	}
	return nil
}

func newRenderer(cfg *config.Config) (*render.Renderer, error) {
	r, err := render.New(render.Options{
		SiteTitle:      cfg.Site.Title,
		Locale:         cfg.Site.Locale,
		Location:       cfg.Location(),
		WordsPerMinute: cfg.Site.WordsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	return r, nil
}

func newBuilder(cfg *config.Config, srcs *sources, db *store.Store, r *render.Renderer) *site.Builder {
	return site.NewBuilder(srcs.direct, db, r, site.Options{
		DocumentType: cfg.CMS.DocumentType,
		PageSize:     cfg.Site.PageSize,
		Prerender:    cfg.Site.Prerender,
		Concurrency:  cfg.Site.Concurrency,
		KeepBuilds:   cfg.Storage.KeepBuilds,
		OutputDir:    cfg.Site.OutputDir,
	})
}
