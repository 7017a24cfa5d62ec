package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/cms/richtext"
	"github.com/ppiankov/ignblog/internal/postlist"
	"github.com/ppiankov/ignblog/internal/render"
	"github.com/ppiankov/ignblog/internal/site"
	"github.com/ppiankov/ignblog/internal/store"
)

type fakeSource struct {
	mu      sync.Mutex
	pages   map[cms.Cursor]cms.Page
	pageErr error
	docs    map[string]cms.Document
	docErr  error
	fetches []cms.Cursor
	gets    int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) QueryInitialPage(context.Context, string, int) (cms.Page, error) {
	return cms.Page{}, errors.New("not used")
}

func (f *fakeSource) FetchPage(_ context.Context, cursor cms.Cursor) (cms.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, cursor)
	if f.pageErr != nil {
		return cms.Page{}, &cms.FetchError{Op: "fetch page", URL: string(cursor), Err: f.pageErr}
	}
	return f.pages[cursor], nil
}

func (f *fakeSource) GetByUID(_ context.Context, _, uid string) (cms.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.docErr != nil {
		return cms.Document{}, f.docErr
	}
	doc, ok := f.docs[uid]
	if !ok {
		return cms.Document{}, fmt.Errorf("%s: %w", uid, cms.ErrNotFound)
	}
	return doc, nil
}

type fixedSnapshot struct {
	snap site.Snapshot
}

func (f fixedSnapshot) Current() site.Snapshot { return f.snap }

func summary(uid string) cms.PostSummary {
	return cms.PostSummary{UID: uid, Title: "Title " + uid, Subtitle: "Sub " + uid, Author: "Author"}
}

func document(uid, title string) cms.Document {
	return cms.Document{
		UID:       uid,
		Type:      "post",
		Title:     title,
		BannerURL: "https://images.test/" + uid + ".png",
		Author:    "Author",
		Content: []cms.Section{{
			Heading: "Intro",
			Body:    richtext.Blocks{{Type: richtext.TypeParagraph, Text: "Body of " + uid}},
		}},
	}
}

type testEnv struct {
	srv    *Server
	source *fakeSource
	store  *store.Store
}

func newTestEnv(t *testing.T, initial cms.Page, cfg Config) *testEnv {
	t.Helper()
	src := &fakeSource{
		pages: map[cms.Cursor]cms.Page{
			"cursorA": {Results: []cms.PostSummary{summary("p2"), summary("p3")}, NextPage: "cursorB"},
			"cursorB": {Results: []cms.PostSummary{summary("p4")}},
		},
		docs: map[string]cms.Document{"p1": document("p1", "First post")},
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "ignblog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r, err := render.New(render.Options{SiteTitle: "ignblog", Locale: "pt-BR", Location: time.UTC})
	require.NoError(t, err)

	b := site.NewBuilder(src, st, r, site.Options{DocumentType: "post"})
	srv := New(cfg, Deps{
		Source:    src,
		Store:     st,
		Builder:   b,
		Snapshots: fixedSnapshot{snap: site.Snapshot{BuildID: "build-1", Page: initial}},
		Renderer:  r,
	})
	return &testEnv{srv: srv, source: src, store: st}
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func initialPage() cms.Page {
	return cms.Page{Results: []cms.PostSummary{summary("p1")}, NextPage: "cursorA"}
}

func TestHome(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Title p1")
	assert.Contains(t, body, `action="/views"`)
	assert.Contains(t, body, "Carregar mais posts")
	assert.Empty(t, env.source.fetches)
}

func TestHome_NoMore(t *testing.T) {
	env := newTestEnv(t, cms.Page{Results: []cms.PostSummary{}}, Config{})

	rec := env.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Carregar mais posts")
}

func TestCreateViewWithoutMoreRedirectsHome(t *testing.T) {
	env := newTestEnv(t, cms.Page{Results: []cms.PostSummary{summary("p1")}}, Config{})

	rec := env.do(t, http.MethodPost, "/views")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Zero(t, env.srv.views.count())
	assert.Empty(t, env.source.fetches)
}

func TestViewLifecycle(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodPost, "/views")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/views/"), location)

	rec = env.do(t, http.MethodGet, location)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, uid := range []string{"p1", "p2", "p3"} {
		assert.Contains(t, body, "Title "+uid)
	}
	assert.Less(t, strings.Index(body, "Title p1"), strings.Index(body, "Title p2"))
	assert.Contains(t, body, `action="`+location+`/more"`)

	rec = env.do(t, http.MethodPost, location+"/more")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, location, rec.Header().Get("Location"))

	rec = env.do(t, http.MethodGet, location)
	assert.Contains(t, rec.Body.String(), "Title p4")
	assert.NotContains(t, rec.Body.String(), "Carregar mais posts")

	// exhausted: another load more does not fetch
	rec = env.do(t, http.MethodPost, location+"/more")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []cms.Cursor{"cursorA", "cursorB"}, env.source.fetches)

	rec = env.do(t, http.MethodDelete, location)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, env.srv.views.count())

	rec = env.do(t, http.MethodGet, location)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestViewsAreIndependent(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	first := env.do(t, http.MethodPost, "/views").Header().Get("Location")
	second := env.do(t, http.MethodPost, "/views").Header().Get("Location")
	require.NotEqual(t, first, second)

	env.do(t, http.MethodPost, first+"/more")

	assert.Contains(t, env.do(t, http.MethodGet, first).Body.String(), "Title p4")
	assert.NotContains(t, env.do(t, http.MethodGet, second).Body.String(), "Title p4")
}

func TestLoadMoreFailureKeepsList(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})
	env.source.pageErr = errors.New("connection reset")

	rec := env.do(t, http.MethodPost, "/views")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Title p1")
	assert.Contains(t, body, "Não foi possível carregar mais posts")
	assert.Contains(t, body, "Carregar mais posts")
	require.Equal(t, 1, env.srv.views.count())

	env.source.pageErr = nil
	var id string
	for k := range env.srv.views.m {
		id = k
	}
	rec = env.do(t, http.MethodPost, "/views/"+id+"/more")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []cms.Cursor{"cursorA", "cursorA"}, env.source.fetches)
	assert.Contains(t, env.do(t, http.MethodGet, "/views/"+id).Body.String(), "Title p3")
}

func TestLoadMoreUnknownView(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodPost, "/views/nope/more")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = env.do(t, http.MethodDelete, "/views/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// blockingSource holds FetchPage until release is closed.
type blockingSource struct {
	fakeSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) FetchPage(ctx context.Context, cursor cms.Cursor) (cms.Page, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeSource.FetchPage(ctx, cursor)
}

func TestLoadMoreInProgressConflict(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})
	blocking := &blockingSource{
		fakeSource: fakeSource{pages: env.source.pages},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	id := env.srv.views.create(postlist.New(blocking, initialPage()))

	done := make(chan int, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/views/"+id+"/more").Code
	}()
	<-blocking.started

	rec := env.do(t, http.MethodPost, "/views/"+id+"/more")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(blocking.release)
	assert.Equal(t, http.StatusSeeOther, <-done)
}

func TestEvictIdleViews(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{ViewTTL: time.Minute})
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	env.srv.views.now = func() time.Time { return now }

	list := postlist.New(env.source, initialPage())
	id := env.srv.views.create(list)

	now = now.Add(30 * time.Second)
	assert.Zero(t, env.srv.views.evictIdle())
	_, ok := env.srv.views.get(id)
	require.True(t, ok)

	now = now.Add(61 * time.Second)
	assert.Equal(t, 1, env.srv.views.evictIdle())
	assert.Equal(t, postlist.StateClosed, list.State())

	rec := env.do(t, http.MethodGet, "/views/"+id)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestPost_FallbackThenStored(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodGet, "/post/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>First post</h1>")
	assert.Contains(t, body, "<title>ignblog | First post</title>")
	assert.Contains(t, body, "1 min")
	assert.Equal(t, 1, env.source.gets)

	rec = env.do(t, http.MethodGet, "/post/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.source.gets, "second request must be served from the store")
}

func TestPost_StaleDocumentRefreshed(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{DocumentTTL: time.Hour})
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.store.SaveDocument(context.Background(), document("p1", "Old title"), 1, old))

	rec := env.do(t, http.MethodGet, "/post/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "First post")
	assert.Equal(t, 1, env.source.gets)
}

func TestPost_StaleServedWhenRefreshFails(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{DocumentTTL: time.Hour})
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.store.SaveDocument(context.Background(), document("p1", "Old title"), 1, old))
	env.source.docErr = &cms.FetchError{Op: "get by uid", Err: errors.New("down")}

	rec := env.do(t, http.MethodGet, "/post/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Old title")
}

func TestPost_NotFound(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodGet, "/post/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Post não encontrado")
}

func TestPost_FetchFailure(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})
	env.source.docErr = &cms.FetchError{Op: "get by uid", Err: errors.New("status 500")}

	rec := env.do(t, http.MethodGet, "/post/p1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"build":"build-1"`)

	env.do(t, http.MethodPost, "/views")
	rec = env.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignblog_postlist_load_more_total")
	assert.Contains(t, rec.Body.String(), "ignblog_views_active")
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{})

	rec := env.do(t, http.MethodGet, "/static/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".load-more")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, initialPage(), Config{Addr: "127.0.0.1:0", ViewTTL: time.Minute})
	env.srv.views.create(postlist.New(env.source, initialPage()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Zero(t, env.srv.views.count())
}
