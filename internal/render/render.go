// Package render turns post listings and documents into HTML pages.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"github.com/ppiankov/ignblog/internal/cms"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the stylesheet and images served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Options configures a Renderer.
type Options struct {
	SiteTitle      string
	Locale         string
	Location       *time.Location
	WordsPerMinute int
}

// Renderer executes the page templates.
type Renderer struct {
	site   string
	locale locale
	loc    *time.Location
	wpm    int
	pages  map[string]*template.Template
}

// Home is the data of the post list page.
type Home struct {
	Posts []cms.PostSummary
	// HasMore shows the load-more form.
	HasMore bool
	// MoreAction is the form target of the load-more button.
	MoreAction string
	// Error is shown above the list when the last load failed.
	Error string
}

type page struct {
	Site        string
	Lang        string
	Title       string
	Description string
	Labels      labels
	Data        any
}

type labels struct {
	LoadMore string
	Loading  string
	Minutes  string
	BackHome string
}

type postItem struct {
	UID      string
	Title    string
	Subtitle string
	Author   string
	Date     string
}

type homeView struct {
	Posts      []postItem
	HasMore    bool
	MoreAction string
	Error      string
}

type sectionView struct {
	Heading string
	Body    template.HTML
}

type postView struct {
	Title       string
	BannerURL   string
	Author      string
	Date        string
	ReadingTime int
	Sections    []sectionView
}

type errorView struct {
	Status  int
	Message string
}

// New parses the embedded templates.
func New(opts Options) (*Renderer, error) {
	if opts.SiteTitle == "" {
		opts.SiteTitle = "ignblog"
	}
	r := &Renderer{
		site:   opts.SiteTitle,
		locale: matchLocale(opts.Locale),
		loc:    opts.Location,
		wpm:    opts.WordsPerMinute,
		pages:  make(map[string]*template.Template),
	}
	for _, name := range []string{"home.html", "post.html", "error.html"} {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Lang returns the BCP 47 tag of the page language.
func (r *Renderer) Lang() string {
	return r.locale.tag.String()
}

// FormatDate renders a publication date the way the pages show it.
func (r *Renderer) FormatDate(t *time.Time) string {
	return r.locale.formatDate(t, r.loc)
}

// ReadingTime estimates the minutes needed to read doc.
func (r *Renderer) ReadingTime(doc cms.Document) int {
	return ReadingTime(doc.Content, r.wpm)
}

// Home renders the post list.
func (r *Renderer) Home(w io.Writer, h Home) error {
	view := homeView{
		Posts:      make([]postItem, 0, len(h.Posts)),
		HasMore:    h.HasMore,
		MoreAction: h.MoreAction,
		Error:      h.Error,
	}
	for _, p := range h.Posts {
		view.Posts = append(view.Posts, postItem{
			UID:      p.UID,
			Title:    p.Title,
			Subtitle: p.Subtitle,
			Author:   p.Author,
			Date:     r.FormatDate(p.PublicationDate),
		})
	}
	return r.execute(w, "home.html", "Home", "", view)
}

// LoadFailed returns the message shown when a load-more attempt fails.
func (r *Renderer) LoadFailed() string {
	return r.locale.failed
}

// Post renders one full post.
func (r *Renderer) Post(w io.Writer, doc cms.Document) error {
	view := postView{
		Title:       doc.Title,
		BannerURL:   doc.BannerURL,
		Author:      doc.Author,
		Date:        r.FormatDate(doc.PublicationDate),
		ReadingTime: r.ReadingTime(doc),
		Sections:    make([]sectionView, 0, len(doc.Content)),
	}
	for _, s := range doc.Content {
		view.Sections = append(view.Sections, sectionView{
			Heading: s.Heading,
			Body:    Sanitize(s.Body.HTML()),
		})
	}
	return r.execute(w, "post.html", doc.Title, Description(doc), view)
}

// Error renders an error page. An empty message uses the not-found text.
func (r *Renderer) Error(w io.Writer, status int, message string) error {
	if message == "" {
		message = r.locale.notFound
	}
	return r.execute(w, "error.html", message, "", errorView{Status: status, Message: message})
}

func (r *Renderer) execute(w io.Writer, name, title, description string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}
	p := page{
		Site:        r.site,
		Lang:        r.Lang(),
		Title:       title,
		Description: description,
		Labels: labels{
			LoadMore: r.locale.loadMore,
			Loading:  r.locale.loading,
			Minutes:  r.locale.minutes,
			BackHome: r.locale.backHome,
		},
		Data: data,
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
