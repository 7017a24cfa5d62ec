package cli

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/ignblog/internal/cache"
	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/config"
)

// sources holds the content source twice: direct for builds, which must see
// fresh content, and behind the response cache for readers.
type sources struct {
	direct cms.Source
	cached cms.Source
	cache  cache.Cache
}

func (s *sources) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

func openSources(cfg *config.Config) (*sources, error) {
	var (
		src cms.Source
		err error
	)
	switch cfg.CMS.Kind {
	case config.KindFeed:
		src, err = cms.NewFeed(cfg.CMS.FeedURL, cfg.CMS.Timeout.Duration)
	default:
		src, err = cms.NewPrismic(cfg.CMS.Endpoint, cfg.CMS.AccessToken, cfg.CMS.Timeout.Duration, cfg.CMS.RateLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", cfg.CMS.Kind, err)
	}

	var c cache.Cache
	if cfg.Cache.Address != "" {
		v, err := cache.NewValkey(cfg.Cache.Address, cfg.Cache.TLS)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		c = v
		slog.Debug("using valkey cache", "address", cfg.Cache.Address)
	} else {
		c = cache.NewMemory()
	}

	return &sources{
		direct: src,
		cached: cms.NewCached(src, c, cfg.Cache.TTL.Duration),
		cache:  c,
	}, nil
}
