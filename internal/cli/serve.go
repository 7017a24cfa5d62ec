package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/ignblog/internal/server"
	"github.com/ppiankov/ignblog/internal/site"
	"github.com/ppiankov/ignblog/internal/store"
)

var (
	serveAddr    string
	serveRebuild bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the blog and revalidate it periodically",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	serveCmd.Flags().BoolVar(&serveRebuild, "rebuild", false, "build before serving even if a build exists")
}

func serveAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	initial, err := initialSnapshot(ctx, db, b)
	if err != nil {
		return err
	}
	slog.Info("serving snapshot", "build", initial.BuildID, "posts", len(initial.Page.Results))

	reval := site.NewRevalidator(b, cfg.Site.Revalidate.Duration, initial)
	reval.Subscribe(func(s site.Snapshot) {
		slog.Info("published snapshot", "build", s.BuildID, "posts", len(s.Page.Results))
	})

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		DocumentType: cfg.CMS.DocumentType,
		ViewTTL:      cfg.Server.ViewTTL.Duration,
		DocumentTTL:  cfg.Server.DocumentTTL.Duration,
		LoadRate:     cfg.Server.LoadRate,
	}, server.Deps{
		Source:    srcs.cached,
		Store:     db,
		Builder:   b,
		Snapshots: reval,
		Renderer:  r,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := reval.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

// initialSnapshot reuses the latest recorded build, building once when there is none.
func initialSnapshot(ctx context.Context, db *store.Store, b *site.Builder) (site.Snapshot, error) {
	if !serveRebuild {
		snap, err := site.LoadSnapshot(ctx, db)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, site.ErrNoSnapshot) {
			return site.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
		}
	}

	res, err := b.Build(ctx)
	if err != nil {
		return site.Snapshot{}, fmt.Errorf("initial build: %w", err)
	}
	return res.Snapshot(), nil
}
