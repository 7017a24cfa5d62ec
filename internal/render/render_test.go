package render

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/cms/richtext"
)

func ts(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 19, 25, 28, 0, time.UTC)
	return &t
}

func testDocument() cms.Document {
	return cms.Document{
		UID:             "como-utilizar-hooks",
		Type:            "post",
		PublicationDate: ts(2021, time.March, 15),
		Title:           "Como utilizar Hooks",
		BannerURL:       "https://images.test/banner.png",
		Author:          "Joseph Oliveira",
		Content: []cms.Section{
			{
				Heading: "Proin et varius",
				Body: richtext.Blocks{
					{Type: richtext.TypeParagraph, Text: "Lorem ipsum dolor sit amet. Second sentence here.",
						Spans: []richtext.Span{{Start: 0, End: 5, Type: richtext.SpanStrong}}},
				},
			},
		},
	}
}

func newTestRenderer(t *testing.T, locale string) *Renderer {
	t.Helper()
	r, err := New(Options{SiteTitle: "ignblog", Locale: locale, Location: time.UTC, WordsPerMinute: 200})
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func TestRenderer_Home(t *testing.T) {
	r := newTestRenderer(t, "pt-BR")
	var buf bytes.Buffer
	err := r.Home(&buf, Home{
		Posts: []cms.PostSummary{
			{UID: "como-utilizar-hooks", Title: "Como utilizar Hooks", Subtitle: "Pensando em sincronização",
				Author: "Joseph Oliveira", PublicationDate: ts(2021, time.March, 15)},
			{UID: "sem-data", Title: "Sem <data>", Subtitle: "s", Author: "a"},
		},
		HasMore:    true,
		MoreAction: "/views",
	})
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>ignblog | Home</title>",
		`<html lang="pt-BR">`,
		`href="/post/como-utilizar-hooks"`,
		"<time>15 mar 2021</time>",
		"Pensando em sincronização",
		"Sem &lt;data&gt;",
		`action="/views"`,
		"Carregar mais posts",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("home output missing %q", want)
		}
	}
}

func TestRenderer_HomeWithoutMore(t *testing.T) {
	r := newTestRenderer(t, "pt-BR")
	var buf bytes.Buffer
	if err := r.Home(&buf, Home{Posts: nil, HasMore: false, MoreAction: "/views"}); err != nil {
		t.Fatalf("home: %v", err)
	}
	if strings.Contains(buf.String(), "Carregar mais posts") {
		t.Error("load more button must be hidden without a cursor")
	}
	if strings.Contains(buf.String(), "<form") {
		t.Error("unexpected form")
	}
}

func TestRenderer_HomeError(t *testing.T) {
	r := newTestRenderer(t, "en")
	var buf bytes.Buffer
	if err := r.Home(&buf, Home{HasMore: true, MoreAction: "/views/1/more", Error: r.LoadFailed()}); err != nil {
		t.Fatalf("home: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Could not load more posts") {
		t.Errorf("missing error message: %s", out)
	}
	if !strings.Contains(out, "Load more posts") {
		t.Error("load more must stay available after a failure")
	}
}

func TestRenderer_Post(t *testing.T) {
	r := newTestRenderer(t, "pt-BR")
	var buf bytes.Buffer
	if err := r.Post(&buf, testDocument()); err != nil {
		t.Fatalf("post: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>ignblog | Como utilizar Hooks</title>",
		`<meta name="description" content="Lorem ipsum dolor sit amet.">`,
		`src="https://images.test/banner.png"`,
		"<h1>Como utilizar Hooks</h1>",
		"<li>1 min</li>",
		"<h2>Proin et varius</h2>",
		"<p><strong>Lorem</strong> ipsum dolor sit amet. Second sentence here.</p>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("post output missing %q", want)
		}
	}
}

func TestRenderer_PostSanitizesBody(t *testing.T) {
	r := newTestRenderer(t, "pt-BR")
	doc := testDocument()
	doc.Content[0].Body = richtext.Blocks{
		{Type: richtext.TypeParagraph, Text: "click", Spans: []richtext.Span{
			{Start: 0, End: 5, Type: richtext.SpanHyperlink, Data: &richtext.SpanData{URL: "javascript:alert(1)"}},
		}},
	}
	var buf bytes.Buffer
	if err := r.Post(&buf, doc); err != nil {
		t.Fatalf("post: %v", err)
	}
	if strings.Contains(buf.String(), "javascript:") {
		t.Errorf("unsafe link survived: %s", buf.String())
	}
}

func TestRenderer_Error(t *testing.T) {
	r := newTestRenderer(t, "pt-BR")
	var buf bytes.Buffer
	if err := r.Error(&buf, 404, ""); err != nil {
		t.Fatalf("error page: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<strong>404</strong>") || !strings.Contains(out, "Post não encontrado") {
		t.Errorf("error page = %s", out)
	}
}

func TestStatic(t *testing.T) {
	for _, name := range []string{"style.css", "logo.svg"} {
		if _, err := fs.Stat(Static(), name); err != nil {
			t.Errorf("static %s: %v", name, err)
		}
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		locale string
		date   *time.Time
		want   string
	}{
		{"pt-BR", ts(2021, time.March, 15), "15 mar 2021"},
		{"pt-BR", ts(2021, time.February, 1), "01 fev 2021"},
		{"pt", ts(2020, time.December, 31), "31 dez 2020"},
		{"en", ts(2021, time.March, 15), "15 Mar 2021"},
		{"en-US", ts(2021, time.May, 9), "09 May 2021"},
		{"de", ts(2021, time.March, 15), "15 mar 2021"},
		{"not a locale!", ts(2021, time.March, 15), "15 mar 2021"},
		{"pt-BR", nil, ""},
	}
	for _, tt := range tests {
		r := newTestRenderer(t, tt.locale)
		if got := r.FormatDate(tt.date); got != tt.want {
			t.Errorf("FormatDate(%s) = %q, want %q", tt.locale, got, tt.want)
		}
	}
}

func TestFormatDate_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	r, err := New(Options{Locale: "pt-BR", Location: loc})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	late := time.Date(2021, time.March, 16, 1, 0, 0, 0, time.UTC)
	if got := r.FormatDate(&late); got != "15 mar 2021" {
		t.Errorf("FormatDate = %q, want local date", got)
	}
}

func TestReadingTime(t *testing.T) {
	words := func(n int) string {
		return strings.TrimSpace(strings.Repeat("palavra ", n))
	}
	para := func(text string) richtext.Blocks {
		return richtext.Blocks{{Type: richtext.TypeParagraph, Text: text}}
	}

	tests := []struct {
		name     string
		sections []cms.Section
		wpm      int
		want     int
	}{
		{"no sections", nil, 200, 0},
		{"empty heading and body count one word each", []cms.Section{{Heading: "", Body: richtext.Blocks{}}}, 200, 1},
		{"exactly 200", []cms.Section{{Heading: "Um dois", Body: para(words(198))}}, 200, 1},
		{"201 rounds up", []cms.Section{{Heading: "Um dois", Body: para(words(199))}}, 200, 2},
		{"across sections", []cms.Section{
			{Heading: "A", Body: para(words(150))},
			{Heading: "B", Body: para(words(150))},
		}, 200, 2},
		{"runs of whitespace", []cms.Section{{Heading: "H", Body: para("  um \n\t dois   tres  ")}}, 2, 2},
		{"blocks joined by space", []cms.Section{{Heading: "H", Body: richtext.Blocks{
			{Type: richtext.TypeParagraph, Text: "um"},
			{Type: richtext.TypeListItem, Text: "dois"},
		}}}, 1, 3},
		{"default speed", []cms.Section{{Heading: "H", Body: para(words(399))}}, 0, 2},
	}
	for _, tt := range tests {
		if got := ReadingTime(tt.sections, tt.wpm); got != tt.want {
			t.Errorf("%s: ReadingTime = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"", 160, ""},
		{"One. Two.", 160, "One."},
		{"Why? Because.", 160, "Why?"},
		{"Version 1.2 is out. Next.", 160, "Version 1.2 is out."},
		{"first line\nsecond line", 160, "first line"},
		{"alpha beta gamma delta", 14, "alpha beta..."},
		{"ação reação emoção", 12, "ação..."},
	}
	for _, tt := range tests {
		if got := firstSentence(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("firstSentence(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestDescription_FallsBackToTitle(t *testing.T) {
	doc := cms.Document{Title: "Only title", Content: []cms.Section{{Heading: "H", Body: richtext.Blocks{}}}}
	if got := Description(doc); got != "Only title" {
		t.Errorf("Description = %q", got)
	}
}
