package listing

import (
	"encoding/json"
	"io"
	"time"
)

type jsonListing struct {
	Meta  jsonMeta   `json:"meta"`
	Posts []jsonPost `json:"posts"`
}

type jsonMeta struct {
	Site    string `json:"site"`
	Source  string `json:"source"`
	Count   int    `json:"count"`
	HasMore bool   `json:"has_more"`
}

type jsonPost struct {
	UID             string `json:"uid"`
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	Author          string `json:"author"`
	PublicationDate string `json:"first_publication_date,omitempty"`
	URL             string `json:"url"`
}

// JSONFormatter formats a post list as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the listing as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, input ListInput) error {
	visible := input.visible()
	out := jsonListing{
		Meta: jsonMeta{
			Site:    input.Site,
			Source:  input.Source,
			Count:   len(input.Posts),
			HasMore: input.HasMore,
		},
		Posts: make([]jsonPost, 0, len(visible)),
	}
	for _, p := range visible {
		jp := jsonPost{
			UID:      p.UID,
			Title:    p.Title,
			Subtitle: p.Subtitle,
			Author:   p.Author,
			URL:      input.link(p.UID),
		}
		if p.PublicationDate != nil {
			jp.PublicationDate = p.PublicationDate.UTC().Format(time.RFC3339)
		}
		out.Posts = append(out.Posts, jp)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
