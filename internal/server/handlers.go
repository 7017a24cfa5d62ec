package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/metrics"
	"github.com/ppiankov/ignblog/internal/postlist"
	"github.com/ppiankov/ignblog/internal/render"
	"github.com/ppiankov/ignblog/internal/store"
)

func (s *Server) handleHome(c echo.Context) error {
	snap := s.deps.Snapshots.Current()
	return s.renderHome(c, http.StatusOK, render.Home{
		Posts:      snap.Page.Results,
		HasMore:    !snap.Page.NextPage.Empty(),
		MoreAction: "/views",
	})
}

// handleCreateView starts a view from the published snapshot and loads its
// first extra page, as if the visitor pressed load more on the home page.
func (s *Server) handleCreateView(c echo.Context) error {
	snap := s.deps.Snapshots.Current()
	if snap.Page.NextPage.Empty() {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	list := postlist.New(s.deps.Source, snap.Page, postlist.WithObserver(func(sn postlist.Snapshot) {
		slog.Debug("view updated", "posts", len(sn.Posts), "has_more", sn.HasMore())
	}))
	id := s.views.create(list)
	return s.loadMore(c, id, list)
}

func (s *Server) handleView(c echo.Context) error {
	id := c.Param("id")
	list, ok := s.views.get(id)
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return s.renderView(c, http.StatusOK, id, list, "")
}

func (s *Server) handleLoadMore(c echo.Context) error {
	id := c.Param("id")
	list, ok := s.views.get(id)
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return s.loadMore(c, id, list)
}

func (s *Server) loadMore(c echo.Context, id string, list *postlist.List) error {
	outcome, err := list.LoadMore(c.Request().Context())

	var fe *cms.FetchError
	switch {
	case err == nil:
		metrics.RecordLoadMore(outcome.String())
		return c.Redirect(http.StatusSeeOther, "/views/"+id)
	case errors.Is(err, postlist.ErrLoadInProgress):
		metrics.RecordLoadMore("in_progress")
		return s.renderError(c, http.StatusConflict, err.Error())
	case errors.Is(err, postlist.ErrClosed):
		metrics.RecordLoadMore("closed")
		return c.Redirect(http.StatusSeeOther, "/")
	case errors.As(err, &fe):
		metrics.RecordLoadMore("error")
		slog.Warn("load more failed", "view", id, "error", err)
		return s.renderView(c, http.StatusBadGateway, id, list, s.deps.Renderer.LoadFailed())
	default:
		metrics.RecordLoadMore("error")
		return err
	}
}

func (s *Server) handleDeleteView(c echo.Context) error {
	if !s.views.remove(c.Param("id")) {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}

// handlePost serves a stored document, fetching it on first request. A stored
// document older than the document ttl is refreshed; if that fails the stored
// copy is served.
func (s *Server) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	stored, err := s.deps.Store.GetDocument(ctx, s.cfg.DocumentType, slug)
	switch {
	case err == nil:
		if s.cfg.DocumentTTL <= 0 || s.now().Sub(stored.FetchedAt) < s.cfg.DocumentTTL {
			return s.renderPost(c, stored.Document)
		}
		doc, ferr := s.deps.Builder.Fallback(ctx, slug)
		if ferr != nil {
			slog.Warn("refresh post failed, serving stored copy", "uid", slug, "error", ferr)
			return s.renderPost(c, stored.Document)
		}
		return s.renderPost(c, doc)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	doc, err := s.deps.Builder.Fallback(ctx, slug)
	if errors.Is(err, cms.ErrNotFound) {
		return s.renderError(c, http.StatusNotFound, "")
	}
	var fe *cms.FetchError
	if errors.As(err, &fe) {
		slog.Warn("fallback fetch failed", "uid", slug, "error", err)
		return s.renderError(c, http.StatusBadGateway, fe.Error())
	}
	if err != nil {
		return err
	}
	return s.renderPost(c, doc)
}

func (s *Server) handleHealth(c echo.Context) error {
	snap := s.deps.Snapshots.Current()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"build":  snap.BuildID,
		"views":  s.views.count(),
	})
}

func (s *Server) renderView(c echo.Context, status int, id string, list *postlist.List, message string) error {
	snap := list.Snapshot()
	return s.renderHome(c, status, render.Home{
		Posts:      snap.Posts,
		HasMore:    snap.HasMore(),
		MoreAction: "/views/" + id + "/more",
		Error:      message,
	})
}

func (s *Server) renderHome(c echo.Context, status int, h render.Home) error {
	var buf bytes.Buffer
	if err := s.deps.Renderer.Home(&buf, h); err != nil {
		return err
	}
	return c.HTMLBlob(status, buf.Bytes())
}

func (s *Server) renderPost(c echo.Context, doc cms.Document) error {
	var buf bytes.Buffer
	if err := s.deps.Renderer.Post(&buf, doc); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *Server) renderError(c echo.Context, status int, message string) error {
	var buf bytes.Buffer
	if err := s.deps.Renderer.Error(&buf, status, message); err != nil {
		return err
	}
	return c.HTMLBlob(status, buf.Bytes())
}
