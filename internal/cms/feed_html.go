package cms

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ppiankov/ignblog/internal/cms/richtext"
)

// sectionsFromHTML splits article HTML into sections at every h1/h2 heading.
// It also returns the first image source it meets.
func sectionsFromHTML(raw string) ([]Section, string, error) {
	sections := []Section{}
	if strings.TrimSpace(raw) == "" {
		return sections, "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("parse content: %w", err)
	}

	s := &sectionSplitter{}
	for _, n := range doc.Find("body").Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			s.visit(c)
		}
	}
	s.flush()

	return append(sections, s.sections...), s.firstImage, nil
}

type sectionSplitter struct {
	sections   []Section
	current    Section
	open       bool
	firstImage string
}

func (s *sectionSplitter) flush() {
	if s.open || len(s.current.Body) > 0 {
		if s.current.Body == nil {
			s.current.Body = richtext.Blocks{}
		}
		s.sections = append(s.sections, s.current)
	}
	s.current = Section{}
	s.open = false
}

func (s *sectionSplitter) add(b richtext.Block) {
	s.current.Body = append(s.current.Body, b)
}

func (s *sectionSplitter) image(n *html.Node) {
	src := attr(n, "src")
	if src == "" {
		return
	}
	if s.firstImage == "" {
		s.firstImage = src
	}
	s.add(richtext.Block{Type: richtext.TypeImage, URL: src, Alt: attr(n, "alt")})
}

func (s *sectionSplitter) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			s.add(richtext.Block{Type: richtext.TypeParagraph, Text: text})
		}
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.Data {
	case "h1", "h2":
		s.flush()
		text, _ := inlineText(n)
		s.current.Heading = text
		s.open = true
	case "h3", "h4", "h5", "h6":
		text, spans := inlineText(n)
		s.add(richtext.Block{Type: "heading" + n.Data[1:], Text: text, Spans: spans})
	case "p", "blockquote":
		for _, img := range findAll(n, "img") {
			s.image(img)
		}
		if text, spans := inlineText(n); text != "" {
			s.add(richtext.Block{Type: richtext.TypeParagraph, Text: text, Spans: spans})
		}
	case "pre":
		s.add(richtext.Block{Type: richtext.TypePreformatted, Text: strings.TrimRight(textContent(n), "\n")})
	case "ul", "ol":
		typ := richtext.TypeListItem
		if n.Data == "ol" {
			typ = richtext.TypeOListItem
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				text, spans := inlineText(c)
				s.add(richtext.Block{Type: typ, Text: text, Spans: spans})
			}
		}
	case "img":
		s.image(n)
	case "div", "section", "article", "main", "figure":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			s.visit(c)
		}
	case "script", "style", "br", "hr", "figcaption":
		// skipped
	default:
		if text, spans := inlineText(n); text != "" {
			s.add(richtext.Block{Type: richtext.TypeParagraph, Text: text, Spans: spans})
		}
	}
}

// inlineBuilder collects text with collapsed whitespace and tracks UTF-16 offsets.
type inlineBuilder struct {
	sb     strings.Builder
	offset int
	space  bool
	spans  []richtext.Span
}

func (b *inlineBuilder) write(text string) {
	for _, r := range text {
		if unicode.IsSpace(r) {
			if b.offset == 0 || b.space {
				continue
			}
			r = ' '
			b.space = true
		} else {
			b.space = false
		}
		b.sb.WriteRune(r)
		b.offset += utf16.RuneLen(r)
	}
}

func (b *inlineBuilder) newline() {
	if b.space && b.offset > 0 {
		// replace the pending space
		s := b.sb.String()
		b.sb.Reset()
		b.sb.WriteString(s[:len(s)-1])
		b.offset--
	}
	b.sb.WriteByte('\n')
	b.offset++
	b.space = true
}

func (b *inlineBuilder) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.write(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	var spanType string
	var data *richtext.SpanData
	switch n.Data {
	case "br":
		b.newline()
		return
	case "img", "script", "style":
		return
	case "strong", "b":
		spanType = richtext.SpanStrong
	case "em", "i":
		spanType = richtext.SpanEm
	case "a":
		if href := attr(n, "href"); href != "" {
			spanType = richtext.SpanHyperlink
			data = &richtext.SpanData{URL: href, Target: attr(n, "target")}
		}
	}

	start := b.offset
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c)
	}
	if spanType != "" && b.offset > start {
		b.spans = append(b.spans, richtext.Span{Start: start, End: b.offset, Type: spanType, Data: data})
	}
}

func inlineText(n *html.Node) (string, []richtext.Span) {
	b := &inlineBuilder{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c)
	}
	text := b.sb.String()
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if len(trimmed) != len(text) {
		units := len(utf16.Encode([]rune(trimmed)))
		for i := range b.spans {
			if b.spans[i].End > units {
				b.spans[i].End = units
			}
		}
		spans := b.spans[:0]
		for _, sp := range b.spans {
			if sp.Start < sp.End {
				spans = append(spans, sp)
			}
		}
		b.spans = spans
	}
	return trimmed, b.spans
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
