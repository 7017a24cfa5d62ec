// Package site generates the static blog and keeps its initial page fresh.
package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/metrics"
	"github.com/ppiankov/ignblog/internal/render"
	"github.com/ppiankov/ignblog/internal/store"
)

// Options configures a Builder.
type Options struct {
	DocumentType string
	PageSize     int
	Prerender    int
	Concurrency  int
	KeepBuilds   int
	// OutputDir receives the generated files. Empty builds the snapshot and
	// document cache without writing any HTML.
	OutputDir string
}

// Builder runs static generation.
type Builder struct {
	source   cms.Source
	store    *store.Store
	renderer *render.Renderer
	opts     Options
	now      func() time.Time
}

// Result summarizes one build.
type Result struct {
	ID         string
	Page       cms.Page
	Rendered   []string
	Failed     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the build took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Snapshot returns the initial page this build published.
func (r Result) Snapshot() Snapshot {
	return Snapshot{BuildID: r.ID, Page: r.Page, BuiltAt: r.FinishedAt}
}

// NewBuilder creates a builder.
func NewBuilder(src cms.Source, st *store.Store, r *render.Renderer, opts Options) *Builder {
	if opts.DocumentType == "" {
		opts.DocumentType = "post"
	}
	if opts.PageSize < 1 {
		opts.PageSize = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Builder{source: src, store: st, renderer: r, opts: opts, now: time.Now}
}

// Build fetches the initial page and the prerendered posts, renders them and
// records the build. Only a failure to fetch the initial page or to persist
// the build fails the whole build; a post that cannot be fetched is skipped.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	res, err := b.build(ctx)
	if err != nil {
		metrics.RecordBuild("error")
		return res, err
	}
	metrics.RecordBuild("ok")
	slog.Info("build finished",
		"id", res.ID,
		"posts", len(res.Page.Results),
		"rendered", len(res.Rendered),
		"failed", len(res.Failed),
		"duration", res.Duration().Round(time.Millisecond),
	)
	return res, nil
}

func (b *Builder) build(ctx context.Context) (Result, error) {
	res := Result{ID: uuid.NewString(), StartedAt: b.now()}

	page, err := b.source.QueryInitialPage(ctx, b.opts.DocumentType, b.opts.PageSize)
	if err != nil {
		return res, fmt.Errorf("query initial page: %w", err)
	}
	res.Page = page

	uids, err := b.prerenderUIDs(ctx, page)
	if err != nil {
		return res, fmt.Errorf("query prerender set: %w", err)
	}

	if b.opts.OutputDir != "" {
		if err := os.MkdirAll(b.opts.OutputDir, 0o755); err != nil {
			return res, fmt.Errorf("create output dir: %w", err)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for _, uid := range uids {
		g.Go(func() error {
			err := b.buildPost(gctx, uid)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("skipping post", "uid", uid, "error", err)
				res.Failed = append(res.Failed, uid)
				return nil
			}
			res.Rendered = append(res.Rendered, uid)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	slices.Sort(res.Rendered)
	slices.Sort(res.Failed)

	if b.opts.OutputDir != "" {
		if err := b.writeIndex(page); err != nil {
			return res, err
		}
	}

	res.FinishedAt = b.now()
	if b.store != nil {
		err := b.store.SaveBuild(ctx, store.Build{
			ID:         res.ID,
			Source:     b.source.Name(),
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Page:       page,
			Documents:  len(res.Rendered),
			Failed:     len(res.Failed),
		})
		if err != nil {
			return res, fmt.Errorf("save build: %w", err)
		}
		if b.opts.KeepBuilds > 0 {
			if _, err := b.store.PruneBuilds(ctx, b.opts.KeepBuilds); err != nil {
				slog.Warn("prune builds failed", "error", err)
			}
		}
	}
	return res, nil
}

// prerenderUIDs returns the uids of the first Prerender posts.
func (b *Builder) prerenderUIDs(ctx context.Context, first cms.Page) ([]string, error) {
	if b.opts.Prerender <= 0 {
		return nil, nil
	}
	page := first
	if b.opts.Prerender != b.opts.PageSize {
		var err error
		page, err = b.source.QueryInitialPage(ctx, b.opts.DocumentType, b.opts.Prerender)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	var uids []string
	for _, p := range page.Results {
		if len(uids) == b.opts.Prerender {
			break
		}
		if !seen[p.UID] {
			seen[p.UID] = true
			uids = append(uids, p.UID)
		}
	}
	return uids, nil
}

func (b *Builder) buildPost(ctx context.Context, uid string) error {
	doc, err := b.source.GetByUID(ctx, b.opts.DocumentType, uid)
	if err != nil {
		return err
	}
	return b.publishDocument(ctx, doc)
}

// publishDocument stores doc and, when an output dir is set, renders its page.
func (b *Builder) publishDocument(ctx context.Context, doc cms.Document) error {
	if doc.Type == "" {
		doc.Type = b.opts.DocumentType
	}
	if b.store != nil {
		if err := b.store.SaveDocument(ctx, doc, b.renderer.ReadingTime(doc), b.now()); err != nil {
			return err
		}
	}
	if b.opts.OutputDir == "" {
		return nil
	}

	var buf bytes.Buffer
	if err := b.renderer.Post(&buf, doc); err != nil {
		return err
	}
	return writeFile(filepath.Join(b.opts.OutputDir, "post", doc.UID, "index.html"), buf.Bytes())
}

// Fallback fetches a post that was not prerendered and stores it so the next
// request is served locally.
func (b *Builder) Fallback(ctx context.Context, uid string) (cms.Document, error) {
	doc, err := b.source.GetByUID(ctx, b.opts.DocumentType, uid)
	if err != nil {
		return cms.Document{}, err
	}
	if doc.Type == "" {
		doc.Type = b.opts.DocumentType
	}
	if b.store != nil {
		if err := b.store.SaveDocument(ctx, doc, b.renderer.ReadingTime(doc), b.now()); err != nil {
			slog.Warn("save fallback document failed", "uid", uid, "error", err)
		}
	}
	return doc, nil
}

type postsFile struct {
	Results  []cms.PostSummary `json:"results"`
	NextPage *string           `json:"next_page"`
}

func (b *Builder) writeIndex(page cms.Page) error {
	var buf bytes.Buffer
	err := b.renderer.Home(&buf, render.Home{
		Posts:      page.Results,
		HasMore:    !page.NextPage.Empty(),
		MoreAction: "/views",
	})
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(b.opts.OutputDir, "index.html"), buf.Bytes()); err != nil {
		return err
	}

	pf := postsFile{Results: page.Results}
	if pf.Results == nil {
		pf.Results = []cms.PostSummary{}
	}
	if !page.NextPage.Empty() {
		next := string(page.NextPage)
		pf.NextPage = &next
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal posts.json: %w", err)
	}
	if err := writeFile(filepath.Join(b.opts.OutputDir, "posts.json"), append(data, '\n')); err != nil {
		return err
	}

	return copyStatic(filepath.Join(b.opts.OutputDir, "static"))
}

func copyStatic(dst string) error {
	static := render.Static()
	return fs.WalkDir(static, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(static, path)
		if err != nil {
			return err
		}
		return writeFile(filepath.Join(dst, filepath.FromSlash(path)), data)
	})
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot returns the snapshot of the latest stored build.
func LoadSnapshot(ctx context.Context, st *store.Store) (Snapshot, error) {
	build, err := st.LatestBuild(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, err
	}
	return Snapshot{BuildID: build.ID, Page: build.Page, BuiltAt: build.FinishedAt}, nil
}
