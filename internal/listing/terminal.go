package listing

import (
	"fmt"
	"io"
)

// TerminalFormatter formats a post list for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes the posts from input.From on, then the load-more prompt.
func (f *TerminalFormatter) Format(w io.Writer, input ListInput) error {
	if input.From <= 0 {
		header := fmt.Sprintf("%s · %s", input.Site, input.Source)
		fmt.Fprintln(w, f.bold(header))
		fmt.Fprintln(w)

		if len(input.Posts) == 0 {
			fmt.Fprintln(w, "No posts found.")
			return nil
		}
	}

	for i, p := range input.visible() {
		n := input.offset() + i + 1
		fmt.Fprintf(w, "  %s %s\n", f.dim(fmt.Sprintf("%2d.", n)), f.bold(p.Title))
		if p.Subtitle != "" {
			fmt.Fprintf(w, "      %s\n", p.Subtitle)
		}
		meta := p.Author
		if d := input.date(p.PublicationDate); d != "" {
			meta = d + " · " + p.Author
		}
		fmt.Fprintf(w, "      %s\n", f.dim(meta))
		fmt.Fprintf(w, "      %s\n", f.dim(input.link(p.UID)))
		fmt.Fprintln(w)
	}

	if input.HasMore {
		fmt.Fprintln(w, f.pink(fmt.Sprintf("%d posts shown. Press Enter to load more, q to quit.", len(input.Posts))))
	} else {
		fmt.Fprintln(w, f.dim(fmt.Sprintf("%d posts, end of list.", len(input.Posts))))
	}
	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) pink(s string) string {
	if !f.color {
		return s
	}
	return "\033[35m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
