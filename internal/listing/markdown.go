package listing

import (
	"fmt"
	"io"
)

// MarkdownFormatter formats a post list as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the listing as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input ListInput) error {
	fmt.Fprintf(w, "# %s\n\n", input.Site)
	fmt.Fprintf(w, "%d posts from %s\n\n", len(input.Posts), input.Source)

	if len(input.Posts) == 0 {
		fmt.Fprintln(w, "No posts found.")
		return nil
	}

	for _, p := range input.visible() {
		fmt.Fprintf(w, "## [%s](%s)\n\n", p.Title, input.link(p.UID))
		if p.Subtitle != "" {
			fmt.Fprintf(w, "%s\n\n", p.Subtitle)
		}
		if d := input.date(p.PublicationDate); d != "" {
			fmt.Fprintf(w, "*%s · %s*\n\n", d, p.Author)
		} else {
			fmt.Fprintf(w, "*%s*\n\n", p.Author)
		}
	}

	if input.HasMore {
		fmt.Fprintln(w, "*More posts available.*")
	}
	return nil
}
