// Package richtext converts CMS structured text into HTML and plain text.
package richtext

import (
	"html"
	"sort"
	"strings"
	"unicode/utf16"
)

// Block types.
const (
	TypeParagraph    = "paragraph"
	TypePreformatted = "preformatted"
	TypeListItem     = "list-item"
	TypeOListItem    = "o-list-item"
	TypeImage        = "image"
)

// Span types.
const (
	SpanStrong    = "strong"
	SpanEm        = "em"
	SpanHyperlink = "hyperlink"
	SpanLabel     = "label"
)

// Span marks a range of a block's text. Start and End are UTF-16 offsets.
type Span struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  string    `json:"type"`
	Data  *SpanData `json:"data,omitempty"`
}

type SpanData struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Block is one element of structured text: a paragraph, heading, list item or image.
type Block struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Spans []Span `json:"spans,omitempty"`
	URL   string `json:"url,omitempty"`
	Alt   string `json:"alt,omitempty"`
}

// Blocks is a structured text field.
type Blocks []Block

// Text joins the text of every block with sep.
func (b Blocks) Text(sep string) string {
	parts := make([]string, 0, len(b))
	for _, blk := range b {
		if blk.Type == TypeImage {
			continue
		}
		parts = append(parts, blk.Text)
	}
	return strings.Join(parts, sep)
}

// HTML renders the blocks. Consecutive list items are wrapped in a single list.
func (b Blocks) HTML() string {
	var sb strings.Builder
	list := ""

	closeList := func() {
		if list != "" {
			sb.WriteString("</" + list + ">")
			list = ""
		}
	}

	for _, blk := range b {
		wantList := ""
		switch blk.Type {
		case TypeListItem:
			wantList = "ul"
		case TypeOListItem:
			wantList = "ol"
		}
		if wantList != list {
			closeList()
			if wantList != "" {
				sb.WriteString("<" + wantList + ">")
				list = wantList
			}
		}
		writeBlock(&sb, blk)
	}
	closeList()

	return sb.String()
}

func writeBlock(sb *strings.Builder, blk Block) {
	switch {
	case blk.Type == TypeImage:
		sb.WriteString(`<p class="block-img"><img src="`)
		sb.WriteString(html.EscapeString(blk.URL))
		sb.WriteString(`" alt="`)
		sb.WriteString(html.EscapeString(blk.Alt))
		sb.WriteString(`" /></p>`)
	case blk.Type == TypeListItem || blk.Type == TypeOListItem:
		sb.WriteString("<li>" + inline(blk.Text, blk.Spans) + "</li>")
	case blk.Type == TypePreformatted:
		sb.WriteString("<pre>" + inline(blk.Text, blk.Spans) + "</pre>")
	case headingLevel(blk.Type) > 0:
		tag := "h" + blk.Type[len("heading"):]
		sb.WriteString("<" + tag + ">" + inline(blk.Text, blk.Spans) + "</" + tag + ">")
	default:
		sb.WriteString("<p>" + inline(blk.Text, blk.Spans) + "</p>")
	}
}

func headingLevel(t string) int {
	if len(t) != len("heading1") || !strings.HasPrefix(t, "heading") {
		return 0
	}
	n := int(t[len(t)-1] - '0')
	if n < 1 || n > 6 {
		return 0
	}
	return n
}

// inline escapes text and applies spans. Overlapping spans that cross each
// other are closed and reopened so the output stays well-formed.
func inline(text string, spans []Span) string {
	if text == "" {
		return ""
	}

	units := len(utf16.Encode([]rune(text)))
	sorted := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.End > units {
			s.End = units
		}
		if s.Start < 0 || s.Start >= s.End {
			continue
		}
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var (
		sb    strings.Builder
		stack []Span
		next  int
	)

	boundary := func(pos int) {
		deepest := -1
		for i, s := range stack {
			if s.End <= pos {
				deepest = i
				break
			}
		}
		if deepest >= 0 {
			popped := stack[deepest:]
			for i := len(popped) - 1; i >= 0; i-- {
				sb.WriteString(closeTag(popped[i]))
			}
			stack = stack[:deepest]
			for _, s := range popped {
				if s.End > pos {
					sb.WriteString(openTag(s))
					stack = append(stack, s)
				}
			}
		}
		for next < len(sorted) && sorted[next].Start == pos {
			sb.WriteString(openTag(sorted[next]))
			stack = append(stack, sorted[next])
			next++
		}
	}

	offset := 0
	for _, r := range text {
		boundary(offset)
		if r == '\n' {
			sb.WriteString("<br />")
		} else {
			sb.WriteString(html.EscapeString(string(r)))
		}
		offset += len(utf16.Encode([]rune{r}))
	}
	boundary(offset)
	for i := len(stack) - 1; i >= 0; i-- {
		sb.WriteString(closeTag(stack[i]))
	}

	return sb.String()
}

func openTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "<strong>"
	case SpanEm:
		return "<em>"
	case SpanHyperlink:
		href := ""
		target := ""
		if s.Data != nil {
			href = s.Data.URL
			if s.Data.Target != "" {
				target = ` target="` + html.EscapeString(s.Data.Target) + `" rel="noopener"`
			}
		}
		return `<a href="` + html.EscapeString(href) + `"` + target + ">"
	case SpanLabel:
		label := ""
		if s.Data != nil {
			label = s.Data.Label
		}
		return `<span class="` + html.EscapeString(label) + `">`
	default:
		return "<span>"
	}
}

func closeTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "</strong>"
	case SpanEm:
		return "</em>"
	case SpanHyperlink:
		return "</a>"
	default:
		return "</span>"
	}
}
