package site

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ppiankov/ignblog/internal/cms"
)

// ErrNoSnapshot is returned when no build has been recorded yet.
var ErrNoSnapshot = errors.New("no build snapshot")

// Snapshot is the initial page published by one build.
type Snapshot struct {
	BuildID string
	Page    cms.Page
	BuiltAt time.Time
}

// Revalidator rebuilds the site on a fixed period and publishes each new snapshot.
type Revalidator struct {
	builder  *Builder
	interval time.Duration

	mu          sync.RWMutex
	current     Snapshot
	subscribers []func(Snapshot)
}

// NewRevalidator creates a revalidator that starts from initial.
func NewRevalidator(b *Builder, interval time.Duration, initial Snapshot) *Revalidator {
	return &Revalidator{builder: b, interval: interval, current: initial}
}

// Current returns the latest published snapshot.
func (r *Revalidator) Current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe registers fn to receive every new snapshot.
func (r *Revalidator) Subscribe(fn func(Snapshot)) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

// Rebuild runs one build. On failure the previous snapshot stays current.
func (r *Revalidator) Rebuild(ctx context.Context) (Snapshot, error) {
	res, err := r.builder.Build(ctx)
	if err != nil {
		return r.Current(), err
	}
	snap := res.Snapshot()

	r.mu.Lock()
	r.current = snap
	subs := slices.Clone(r.subscribers)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap, nil
}

// Run rebuilds every interval until ctx is done.
func (r *Revalidator) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Rebuild(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("revalidation failed, keeping previous snapshot", "build", r.Current().BuildID, "error", err)
			}
		}
	}
}
