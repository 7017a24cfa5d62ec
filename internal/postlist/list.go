// Package postlist accumulates pages of post summaries behind a load-more cursor.
package postlist

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/ignblog/internal/cms"
)

var (
	// ErrLoadInProgress is returned when LoadMore is called while a previous call is outstanding.
	ErrLoadInProgress = errors.New("load more already in progress")

	// ErrClosed is returned by LoadMore on a closed list.
	ErrClosed = errors.New("post list closed")
)

// Pager fetches the page a cursor points to.
type Pager interface {
	FetchPage(ctx context.Context, cursor cms.Cursor) (cms.Page, error)
}

// Outcome describes what a LoadMore call did.
type Outcome int

const (
	// OutcomeNoop means the cursor was empty and nothing was fetched.
	OutcomeNoop Outcome = iota
	// OutcomeUpdated means a page was applied and more pages remain.
	OutcomeUpdated
	// OutcomeExhausted means a page was applied and the cursor is now empty.
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeUpdated:
		return "updated"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a List.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the displayed posts and the cursor at one point in time.
type Snapshot struct {
	Posts  []cms.PostSummary
	Cursor cms.Cursor
}

// HasMore reports whether the load-more affordance should be shown.
func (s Snapshot) HasMore() bool {
	return !s.Cursor.Empty()
}

// Option configures a List.
type Option func(*List)

// WithObserver registers fn to be called with a snapshot after every applied page.
func WithObserver(fn func(Snapshot)) Option {
	return func(l *List) {
		l.observer = fn
	}
}

// List holds the posts shown to one viewer and the cursor of the next page.
// Posts are only ever appended, in the order the pager returns them.
type List struct {
	pager    Pager
	observer func(Snapshot)

	mu      sync.Mutex
	posts   []cms.PostSummary
	cursor  cms.Cursor
	loading bool
	closed  bool
}

// New creates a list seeded with the initial page.
func New(pager Pager, initial cms.Page, opts ...Option) *List {
	l := &List{
		pager:  pager,
		posts:  append([]cms.PostSummary(nil), initial.Results...),
		cursor: initial.NextPage,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadMore fetches the page at the current cursor and appends its results.
//
// An empty cursor is a no-op. On failure the list is left untouched and the
// error is a *cms.FetchError. The cursor is replaced with the returned one even
// when the page has no results. A response that arrives after Close is discarded.
func (l *List) LoadMore(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return OutcomeNoop, ErrClosed
	}
	if l.cursor.Empty() {
		l.mu.Unlock()
		return OutcomeNoop, nil
	}
	if l.loading {
		l.mu.Unlock()
		return OutcomeNoop, ErrLoadInProgress
	}
	l.loading = true
	cursor := l.cursor
	l.mu.Unlock()

	page, err := l.pager.FetchPage(ctx, cursor)

	l.mu.Lock()
	l.loading = false
	if l.closed {
		l.mu.Unlock()
		return OutcomeNoop, ErrClosed
	}
	if err != nil {
		l.mu.Unlock()
		return OutcomeNoop, cms.AsFetchError("load more", cursor, err)
	}
	if len(page.Results) > 0 {
		l.posts = append(l.posts, page.Results...)
	}
	l.cursor = page.NextPage
	snap := l.snapshotLocked()
	l.mu.Unlock()

	if l.observer != nil {
		l.observer(snap)
	}
	if snap.Cursor.Empty() {
		return OutcomeExhausted, nil
	}
	return OutcomeUpdated, nil
}

// Close tears the list down. Later LoadMore calls return ErrClosed.
func (l *List) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Posts returns a copy of the displayed posts.
func (l *List) Posts() []cms.PostSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]cms.PostSummary(nil), l.posts...)
}

// Cursor returns the cursor of the next page, empty when exhausted.
func (l *List) Cursor() cms.Cursor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// HasMore reports whether another page can be loaded.
func (l *List) HasMore() bool {
	return !l.Cursor().Empty()
}

// Len returns the number of displayed posts.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.posts)
}

// Snapshot returns a consistent copy of posts and cursor.
func (l *List) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *List) snapshotLocked() Snapshot {
	return Snapshot{
		Posts:  append([]cms.PostSummary(nil), l.posts...),
		Cursor: l.cursor,
	}
}

// State reports the current lifecycle state.
func (l *List) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return StateClosed
	case l.loading:
		return StateLoading
	case l.cursor.Empty():
		return StateExhausted
	default:
		return StateIdle
	}
}
