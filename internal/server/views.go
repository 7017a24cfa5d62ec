package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/ignblog/internal/metrics"
	"github.com/ppiankov/ignblog/internal/postlist"
)

type view struct {
	list     *postlist.List
	lastSeen time.Time
}

// views holds the post lists of open browser sessions, one per view id.
type views struct {
	mu  sync.Mutex
	m   map[string]*view
	ttl time.Duration
	now func() time.Time
}

func newViews(ttl time.Duration) *views {
	return &views{m: make(map[string]*view), ttl: ttl, now: time.Now}
}

func (v *views) create(list *postlist.List) string {
	id := uuid.NewString()
	v.mu.Lock()
	v.m[id] = &view{list: list, lastSeen: v.now()}
	n := len(v.m)
	v.mu.Unlock()
	metrics.ViewsActive.Set(float64(n))
	return id
}

func (v *views) get(id string) (*postlist.List, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	vw, ok := v.m[id]
	if !ok {
		return nil, false
	}
	vw.lastSeen = v.now()
	return vw.list, true
}

// remove closes and forgets a view.
func (v *views) remove(id string) bool {
	v.mu.Lock()
	vw, ok := v.m[id]
	delete(v.m, id)
	n := len(v.m)
	v.mu.Unlock()
	if !ok {
		return false
	}
	vw.list.Close()
	metrics.ViewsActive.Set(float64(n))
	return true
}

// evictIdle closes views not seen within the ttl.
func (v *views) evictIdle() int {
	if v.ttl <= 0 {
		return 0
	}
	cutoff := v.now().Add(-v.ttl)

	var idle []*view
	v.mu.Lock()
	for id, vw := range v.m {
		if vw.lastSeen.Before(cutoff) {
			idle = append(idle, vw)
			delete(v.m, id)
		}
	}
	n := len(v.m)
	v.mu.Unlock()

	for _, vw := range idle {
		vw.list.Close()
	}
	metrics.ViewsActive.Set(float64(n))
	return len(idle)
}

func (v *views) closeAll() {
	v.mu.Lock()
	all := v.m
	v.m = make(map[string]*view)
	v.mu.Unlock()

	for _, vw := range all {
		vw.list.Close()
	}
	metrics.ViewsActive.Set(0)
}

func (v *views) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.m)
}
