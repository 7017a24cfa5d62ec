package cms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/ignblog/internal/metrics"
)

const (
	feedSourceName   = "feed"
	feedFetchTimeout = 30 * time.Second
	feedUserAgent    = "Mozilla/5.0 (compatible; ignblog/1.0)"
)

// FeedSource serves posts from an RSS or Atom feed. Cursors carry the offset of
// the next page in the URL fragment.
type FeedSource struct {
	feedURL string
	client  *http.Client
}

// NewFeed creates a feed-backed source.
func NewFeed(feedURL string, timeout time.Duration) (*FeedSource, error) {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("feed: invalid url %q", feedURL)
	}
	if timeout <= 0 {
		timeout = feedFetchTimeout
	}
	u.Fragment = ""
	return &FeedSource{
		feedURL: u.String(),
		client: &http.Client{
			Timeout:   timeout,
			Transport: &feedTransport{base: http.DefaultTransport},
		},
	}, nil
}

func (f *FeedSource) Name() string {
	return feedSourceName
}

func (f *FeedSource) QueryInitialPage(ctx context.Context, _ string, pageSize int) (Page, error) {
	if pageSize < 1 {
		return Page{}, fmt.Errorf("feed: page size must be at least 1, got %d", pageSize)
	}
	feed, err := f.parse(ctx, "query")
	if err != nil {
		return Page{}, err
	}
	return f.page(feed, 0, pageSize)
}

func (f *FeedSource) FetchPage(ctx context.Context, cursor Cursor) (Page, error) {
	offset, size, err := f.decodeCursor(cursor)
	if err != nil {
		return Page{}, &FetchError{Op: "fetch page", URL: string(cursor), Err: err}
	}
	feed, err := f.parse(ctx, "fetch page")
	if err != nil {
		return Page{}, err
	}
	return f.page(feed, offset, size)
}

func (f *FeedSource) GetByUID(ctx context.Context, documentType, uid string) (Document, error) {
	feed, err := f.parse(ctx, "get by uid")
	if err != nil {
		return Document{}, err
	}
	for _, item := range feed.Items {
		if itemUID(item) != uid {
			continue
		}
		doc, err := itemDocument(feed, item)
		if err != nil {
			return Document{}, &FetchError{Op: "get by uid", URL: f.feedURL, Err: err}
		}
		doc.Type = documentType
		return doc, nil
	}
	return Document{}, fmt.Errorf("%s/%s: %w", documentType, uid, ErrNotFound)
}

// feedTransport injects a User-Agent header into every request.
type feedTransport struct {
	base http.RoundTripper
}

func (t *feedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", feedUserAgent)
	return t.base.RoundTrip(req)
}

func (f *FeedSource) parse(ctx context.Context, op string) (*gofeed.Feed, error) {
	start := time.Now()
	fp := gofeed.NewParser()
	fp.Client = f.client
	feed, err := fp.ParseURLWithContext(f.feedURL, ctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordCMSRequest(op, status, time.Since(start).Seconds())

	if err != nil {
		return nil, &FetchError{Op: op, URL: f.feedURL, Err: err}
	}
	return feed, nil
}

func (f *FeedSource) page(feed *gofeed.Feed, offset, size int) (Page, error) {
	page := Page{Results: []PostSummary{}}
	if offset >= len(feed.Items) {
		return page, nil
	}
	end := offset + min(size, len(feed.Items)-offset)
	for _, item := range feed.Items[offset:end] {
		s, err := itemSummary(feed, item)
		if err != nil {
			return Page{}, &FetchError{Op: "decode feed", URL: f.feedURL, Err: err}
		}
		page.Results = append(page.Results, s)
	}
	if end < len(feed.Items) {
		page.NextPage = f.encodeCursor(end, size)
	}
	return page, nil
}

func (f *FeedSource) encodeCursor(offset, size int) Cursor {
	frag := url.Values{}
	frag.Set("offset", strconv.Itoa(offset))
	frag.Set("size", strconv.Itoa(size))
	return Cursor(f.feedURL + "#" + frag.Encode())
}

func (f *FeedSource) decodeCursor(cursor Cursor) (offset, size int, err error) {
	if cursor.Empty() {
		return 0, 0, errors.New("empty cursor")
	}
	base, frag, ok := strings.Cut(string(cursor), "#")
	if !ok || base != f.feedURL {
		return 0, 0, errors.New("cursor does not belong to this feed")
	}
	values, err := url.ParseQuery(frag)
	if err != nil {
		return 0, 0, fmt.Errorf("parse cursor: %w", err)
	}
	offset, err = strconv.Atoi(values.Get("offset"))
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("invalid cursor offset %q", values.Get("offset"))
	}
	size, err = strconv.Atoi(values.Get("size"))
	if err != nil || size < 1 {
		return 0, 0, fmt.Errorf("invalid cursor size %q", values.Get("size"))
	}
	return offset, size, nil
}

func itemSummary(feed *gofeed.Feed, item *gofeed.Item) (PostSummary, error) {
	uid := itemUID(item)
	if uid == "" {
		return PostSummary{}, errors.New("item without link or guid")
	}
	if strings.TrimSpace(item.Title) == "" {
		return PostSummary{}, fmt.Errorf("item %s: missing title", uid)
	}
	author := itemAuthor(feed, item)
	if author == "" {
		return PostSummary{}, fmt.Errorf("item %s: missing author", uid)
	}
	return PostSummary{
		UID:             uid,
		PublicationDate: itemPublished(item),
		Title:           strings.TrimSpace(item.Title),
		Subtitle:        htmlText(item.Description),
		Author:          author,
	}, nil
}

func itemDocument(feed *gofeed.Feed, item *gofeed.Item) (Document, error) {
	summary, err := itemSummary(feed, item)
	if err != nil {
		return Document{}, err
	}
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	sections, firstImage, err := sectionsFromHTML(raw)
	if err != nil {
		return Document{}, fmt.Errorf("item %s: %w", summary.UID, err)
	}
	banner := itemImage(item)
	if banner == "" {
		banner = firstImage
	}
	return Document{
		UID:             summary.UID,
		PublicationDate: summary.PublicationDate,
		Title:           summary.Title,
		BannerURL:       banner,
		Author:          summary.Author,
		Content:         sections,
	}, nil
}

// itemUID derives a URL-safe slug from the item link, falling back to the guid.
func itemUID(item *gofeed.Item) string {
	for _, candidate := range []string{item.Link, item.GUID} {
		if candidate == "" {
			continue
		}
		if u, err := url.Parse(candidate); err == nil && u.Opaque == "" {
			p := strings.TrimRight(u.Path, "/")
			if p == "" {
				continue
			}
			candidate = path.Base(p)
		}
		if s := slugify(candidate); s != "" {
			return s
		}
	}
	return ""
}

func slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

func itemAuthor(feed *gofeed.Feed, item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if feed.Author != nil && feed.Author.Name != "" {
		return feed.Author.Name
	}
	return strings.TrimSpace(feed.Title)
}

func itemPublished(item *gofeed.Item) *time.Time {
	var ts *time.Time
	if item.PublishedParsed != nil {
		ts = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		ts = item.UpdatedParsed
	}
	if ts == nil {
		return nil
	}
	utc := ts.UTC()
	return &utc
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func htmlText(raw string) string {
	if !strings.Contains(raw, "<") {
		return strings.TrimSpace(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
