// Package cms fetches post listings and post documents from a headless content service.
package cms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/ignblog/internal/cms/richtext"
)

// ErrNotFound is returned by GetByUID when no document has the requested uid.
var ErrNotFound = errors.New("document not found")

// Cursor is an opaque reference to the next page of results. Empty means no more pages.
type Cursor string

// Empty reports whether the cursor signals that no further pages exist.
func (c Cursor) Empty() bool {
	return c == ""
}

// PostSummary is the listing record for one post.
type PostSummary struct {
	UID             string     `json:"uid"`
	PublicationDate *time.Time `json:"first_publication_date"`
	Title           string     `json:"title"`
	Subtitle        string     `json:"subtitle"`
	Author          string     `json:"author"`
}

// Page is one page of post summaries plus the cursor of the page after it.
type Page struct {
	Results  []PostSummary `json:"results"`
	NextPage Cursor        `json:"next_page"`
}

// Section is a heading followed by a rich text body.
type Section struct {
	Heading string          `json:"heading"`
	Body    richtext.Blocks `json:"body"`
}

// Document is a full post.
type Document struct {
	UID             string     `json:"uid"`
	Type            string     `json:"type"`
	PublicationDate *time.Time `json:"first_publication_date"`
	Title           string     `json:"title"`
	BannerURL       string     `json:"banner_url"`
	Author          string     `json:"author"`
	Content         []Section  `json:"content"`
}

// Source fetches posts from a content service.
type Source interface {
	// Name returns the source identifier (e.g. "prismic").
	Name() string

	// QueryInitialPage returns the first page of documents of the given type.
	QueryInitialPage(ctx context.Context, documentType string, pageSize int) (Page, error)

	// FetchPage follows a cursor returned by a previous page.
	FetchPage(ctx context.Context, cursor Cursor) (Page, error)

	// GetByUID returns one full document, or ErrNotFound.
	GetByUID(ctx context.Context, documentType, uid string) (Document, error)
}

// FetchError reports a transport failure or a malformed response.
type FetchError struct {
	Op  string
	URL string
	Err error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError returns err as a *FetchError, wrapping it when it is not one already.
func AsFetchError(op string, cursor Cursor, err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Op: op, URL: string(cursor), Err: err}
}
