package cms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/ignblog/internal/cache"
	"github.com/ppiankov/ignblog/internal/metrics"
)

// CachedSource serves repeated queries from a cache. Only successful results are stored.
type CachedSource struct {
	next  Source
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with a response cache.
func NewCached(next Source, c cache.Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, cache: c, ttl: ttl}
}

func (c *CachedSource) Name() string {
	return c.next.Name()
}

func (c *CachedSource) QueryInitialPage(ctx context.Context, documentType string, pageSize int) (Page, error) {
	key := fmt.Sprintf("page:initial:%s:%d", documentType, pageSize)
	return cached(ctx, c, key, func() (Page, error) {
		return c.next.QueryInitialPage(ctx, documentType, pageSize)
	})
}

func (c *CachedSource) FetchPage(ctx context.Context, cursor Cursor) (Page, error) {
	sum := sha256.Sum256([]byte(cursor))
	key := "page:cursor:" + hex.EncodeToString(sum[:])
	return cached(ctx, c, key, func() (Page, error) {
		return c.next.FetchPage(ctx, cursor)
	})
}

func (c *CachedSource) GetByUID(ctx context.Context, documentType, uid string) (Document, error) {
	key := fmt.Sprintf("doc:%s:%s", documentType, uid)
	return cached(ctx, c, key, func() (Document, error) {
		return c.next.GetByUID(ctx, documentType, uid)
	})
}

// cached treats cache errors as misses.
func cached[T any](ctx context.Context, c *CachedSource, key string, fetch func() (T, error)) (T, error) {
	var v T
	hit, err := c.cache.Load(ctx, key, &v)
	if err != nil {
		slog.Warn("cache load failed", "key", key, "error", err)
	}
	metrics.RecordCacheLookup(hit && err == nil)
	if hit && err == nil {
		return v, nil
	}

	v, err = fetch()
	if err != nil {
		return v, err
	}
	if err := c.cache.Save(ctx, key, v, c.ttl); err != nil {
		slog.Warn("cache save failed", "key", key, "error", err)
	}
	return v, nil
}
