package cms

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/ignblog/internal/cms/richtext"
)

// prismicTimeLayout is the CMS timestamp format, e.g. 2021-03-15T19:25:28+0000.
const prismicTimeLayout = "2006-01-02T15:04:05-0700"

type apiResponse struct {
	Page         int           `json:"page"`
	ResultsSize  int           `json:"results_size"`
	TotalResults int           `json:"total_results_size"`
	NextPage     *string       `json:"next_page"`
	Results      []apiDocument `json:"results"`
}

type apiDocument struct {
	ID                   string          `json:"id"`
	UID                  *string         `json:"uid"`
	Type                 string          `json:"type"`
	FirstPublicationDate *string         `json:"first_publication_date"`
	Data                 json.RawMessage `json:"data"`
}

type apiSummaryData struct {
	Title    *string `json:"title"`
	Subtitle *string `json:"subtitle"`
	Author   *string `json:"author"`
}

type apiDocumentData struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	Banner *struct {
		URL *string `json:"url"`
	} `json:"banner"`
	Content *[]struct {
		Heading *string          `json:"heading"`
		Body    *richtext.Blocks `json:"body"`
	} `json:"content"`
}

func decodeResponse(data []byte) (apiResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return apiResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Results == nil {
		return apiResponse{}, errors.New("response has no results field")
	}
	return resp, nil
}

// toPage validates every summary. A single malformed document fails the page.
func (r apiResponse) toPage() (Page, error) {
	page := Page{Results: make([]PostSummary, 0, len(r.Results))}
	for i, doc := range r.Results {
		summary, err := doc.toSummary()
		if err != nil {
			return Page{}, fmt.Errorf("result %d: %w", i, err)
		}
		page.Results = append(page.Results, summary)
	}
	if r.NextPage != nil {
		page.NextPage = Cursor(*r.NextPage)
	}
	return page, nil
}

func (d apiDocument) toSummary() (PostSummary, error) {
	uid, err := d.uid()
	if err != nil {
		return PostSummary{}, err
	}
	published, err := parsePublicationDate(d.FirstPublicationDate)
	if err != nil {
		return PostSummary{}, err
	}

	var data apiSummaryData
	if err := decodeData(d.Data, &data); err != nil {
		return PostSummary{}, err
	}
	missing := missingFields(map[string]*string{
		"title":    data.Title,
		"subtitle": data.Subtitle,
		"author":   data.Author,
	})
	if len(missing) > 0 {
		return PostSummary{}, fmt.Errorf("document %s: missing %s", uid, strings.Join(missing, ", "))
	}

	return PostSummary{
		UID:             uid,
		PublicationDate: published,
		Title:           *data.Title,
		Subtitle:        *data.Subtitle,
		Author:          *data.Author,
	}, nil
}

func (d apiDocument) toDocument() (Document, error) {
	uid, err := d.uid()
	if err != nil {
		return Document{}, err
	}
	published, err := parsePublicationDate(d.FirstPublicationDate)
	if err != nil {
		return Document{}, err
	}

	var data apiDocumentData
	if err := decodeData(d.Data, &data); err != nil {
		return Document{}, err
	}

	var banner *string
	if data.Banner != nil {
		banner = data.Banner.URL
	}
	missing := missingFields(map[string]*string{
		"title":      data.Title,
		"author":     data.Author,
		"banner.url": banner,
	})
	if data.Content == nil {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return Document{}, fmt.Errorf("document %s: missing %s", uid, strings.Join(missing, ", "))
	}

	sections := make([]Section, 0, len(*data.Content))
	for i, c := range *data.Content {
		if c.Heading == nil || c.Body == nil {
			return Document{}, fmt.Errorf("document %s: content[%d]: missing heading or body", uid, i)
		}
		sections = append(sections, Section{Heading: *c.Heading, Body: *c.Body})
	}

	return Document{
		UID:             uid,
		Type:            d.Type,
		PublicationDate: published,
		Title:           *data.Title,
		BannerURL:       *banner,
		Author:          *data.Author,
		Content:         sections,
	}, nil
}

func (d apiDocument) uid() (string, error) {
	if d.UID == nil || strings.TrimSpace(*d.UID) == "" {
		return "", fmt.Errorf("document %q: missing uid", d.ID)
	}
	return *d.UID, nil
}

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// missingFields returns the names of nil fields in a stable order.
func missingFields(fields map[string]*string) []string {
	var missing []string
	for _, name := range []string{"title", "subtitle", "author", "banner.url"} {
		v, ok := fields[name]
		if ok && v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

func parsePublicationDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	for _, layout := range []string{prismicTimeLayout, time.RFC3339} {
		if ts, err := time.Parse(layout, *raw); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("parse first_publication_date %q", *raw)
}
