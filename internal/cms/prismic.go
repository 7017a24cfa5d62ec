package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/ignblog/internal/metrics"
)

const (
	prismicSourceName = "prismic"
	prismicTimeout    = 30 * time.Second
	prismicUserAgent  = "ignblog/1.0"
	prismicMaxBody    = 10 << 20
)

// PrismicSource queries a Prismic-style document API.
type PrismicSource struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewPrismic creates a document API source. ratePerSecond <= 0 disables rate limiting.
func NewPrismic(endpoint, token string, timeout time.Duration, ratePerSecond float64) (*PrismicSource, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("prismic: invalid endpoint %q", endpoint)
	}
	if timeout <= 0 {
		timeout = prismicTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &PrismicSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
	}, nil
}

func (p *PrismicSource) Name() string {
	return prismicSourceName
}

func (p *PrismicSource) QueryInitialPage(ctx context.Context, documentType string, pageSize int) (Page, error) {
	if pageSize < 1 {
		return Page{}, fmt.Errorf("prismic: page size must be at least 1, got %d", pageSize)
	}
	ref, err := p.masterRef(ctx)
	if err != nil {
		return Page{}, err
	}

	q := url.Values{}
	q.Set("ref", ref)
	q.Set("q", fmt.Sprintf(`[[at(document.type,"%s")]]`, documentType))
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("fetch", strings.Join([]string{
		documentType + ".title",
		documentType + ".subtitle",
		documentType + ".author",
	}, ","))
	target := p.endpoint + "/documents/search?" + q.Encode()

	return p.fetchPage(ctx, "query", target)
}

func (p *PrismicSource) FetchPage(ctx context.Context, cursor Cursor) (Page, error) {
	if cursor.Empty() {
		return Page{}, &FetchError{Op: "fetch page", Err: errors.New("empty cursor")}
	}
	u, err := url.Parse(string(cursor))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Page{}, &FetchError{Op: "fetch page", URL: string(cursor), Err: errors.New("cursor is not an absolute http(s) URL")}
	}
	return p.fetchPage(ctx, "fetch page", string(cursor))
}

func (p *PrismicSource) GetByUID(ctx context.Context, documentType, uid string) (Document, error) {
	if strings.TrimSpace(uid) == "" {
		return Document{}, errors.New("prismic: uid is required")
	}
	// a uid cannot hold predicate syntax, so such a slug names no document
	if strings.ContainsAny(uid, `"[]\`) {
		return Document{}, fmt.Errorf("%s/%s: %w", documentType, uid, ErrNotFound)
	}
	ref, err := p.masterRef(ctx)
	if err != nil {
		return Document{}, err
	}

	q := url.Values{}
	q.Set("ref", ref)
	q.Set("q", fmt.Sprintf(`[[at(my.%s.uid,"%s")]]`, documentType, uid))
	q.Set("pageSize", "1")
	target := p.endpoint + "/documents/search?" + q.Encode()

	body, err := p.get(ctx, "get by uid", target)
	if err != nil {
		return Document{}, err
	}
	resp, err := decodeResponse(body)
	if err != nil {
		return Document{}, &FetchError{Op: "get by uid", URL: target, Err: err}
	}
	if len(resp.Results) == 0 {
		return Document{}, fmt.Errorf("%s/%s: %w", documentType, uid, ErrNotFound)
	}
	doc, err := resp.Results[0].toDocument()
	if err != nil {
		return Document{}, &FetchError{Op: "get by uid", URL: target, Err: err}
	}
	return doc, nil
}

type apiRoot struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

// masterRef resolves the ref of the currently published content.
func (p *PrismicSource) masterRef(ctx context.Context) (string, error) {
	body, err := p.get(ctx, "resolve ref", p.endpoint)
	if err != nil {
		return "", err
	}
	var root apiRoot
	if err := json.Unmarshal(body, &root); err != nil {
		return "", &FetchError{Op: "resolve ref", URL: p.endpoint, Err: fmt.Errorf("decode api root: %w", err)}
	}
	for _, r := range root.Refs {
		if r.IsMasterRef && r.Ref != "" {
			return r.Ref, nil
		}
	}
	return "", &FetchError{Op: "resolve ref", URL: p.endpoint, Err: errors.New("no master ref")}
}

func (p *PrismicSource) fetchPage(ctx context.Context, op, target string) (Page, error) {
	body, err := p.get(ctx, op, target)
	if err != nil {
		return Page{}, err
	}
	resp, err := decodeResponse(body)
	if err != nil {
		return Page{}, &FetchError{Op: op, URL: target, Err: err}
	}
	page, err := resp.toPage()
	if err != nil {
		return Page{}, &FetchError{Op: op, URL: target, Err: err}
	}
	return page, nil
}

func (p *PrismicSource) get(ctx context.Context, op, target string) ([]byte, error) {
	start := time.Now()
	body, err := p.doGet(ctx, target)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordCMSRequest(op, status, time.Since(start).Seconds())
	if err != nil {
		return nil, &FetchError{Op: op, URL: target, Err: err}
	}
	return body, nil
}

func (p *PrismicSource) doGet(ctx context.Context, target string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", prismicUserAgent)
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Token "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, prismicMaxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
