// Package listing formats the state of a post list for the terminal and for export.
package listing

import (
	"io"
	"strings"
	"time"

	"github.com/ppiankov/ignblog/internal/cms"
)

// ListInput is the full input for a listing formatter.
type ListInput struct {
	Site    string
	Source  string
	Posts   []cms.PostSummary
	HasMore bool
	From    int    // index of the first post to print; earlier posts were already shown
	BaseURL string // prefix of post links, e.g. https://blog.example.com

	// FormatDate renders publication dates. Nil uses YYYY-MM-DD.
	FormatDate func(*time.Time) string
}

// Formatter writes a formatted listing to w.
type Formatter interface {
	Format(w io.Writer, input ListInput) error
}

func (in ListInput) date(t *time.Time) string {
	if in.FormatDate != nil {
		return in.FormatDate(t)
	}
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func (in ListInput) link(uid string) string {
	return strings.TrimRight(in.BaseURL, "/") + "/post/" + uid
}

func (in ListInput) visible() []cms.PostSummary {
	if in.From <= 0 {
		return in.Posts
	}
	if in.From >= len(in.Posts) {
		return nil
	}
	return in.Posts[in.From:]
}

func (in ListInput) offset() int {
	return min(max(in.From, 0), len(in.Posts))
}
