package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/listing"
	"github.com/ppiankov/ignblog/internal/postlist"
)

var (
	browseFormat  string
	browseAll     bool
	browseBaseURL string
	noColor       bool
)

// stdin is read by interactive browsing; tests replace it.
var stdin io.Reader = os.Stdin

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List posts, loading more on demand",
	RunE:  browseAction,
}

func init() {
	browseCmd.Flags().StringVar(&browseFormat, "format", "terminal", "output format: terminal, json, markdown")
	browseCmd.Flags().BoolVar(&browseAll, "all", false, "load every page before printing")
	browseCmd.Flags().StringVar(&browseBaseURL, "base-url", "", "prefix for post links")
	browseCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func browseAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var f listing.Formatter
	switch browseFormat {
	case "terminal", "":
		f = listing.NewTerminal(!noColor)
	case "json":
		f = listing.NewJSON()
	case "markdown":
		f = listing.NewMarkdown()
	default:
		return fmt.Errorf("unknown format %q (want terminal, json, or markdown)", browseFormat)
	}

	srcs, err := openSources(cfg)
	if err != nil {
		return err
	}
	defer srcs.Close()

	r, err := newRenderer(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	first, err := srcs.cached.QueryInitialPage(ctx, cfg.CMS.DocumentType, cfg.Site.PageSize)
	if err != nil {
		return fmt.Errorf("query initial page: %w", err)
	}
	list := postlist.New(srcs.cached, first)
	defer list.Close()

	input := listing.ListInput{
		Site:       cfg.Site.Title,
		Source:     srcs.cached.Name(),
		BaseURL:    browseBaseURL,
		FormatDate: r.FormatDate,
	}

	// Non-interactive output prints the list once.
	if (browseFormat != "terminal" && browseFormat != "") || browseAll {
		if browseAll {
			if err := loadAll(ctx, list); err != nil {
				return err
			}
		}
		input.Posts = list.Posts()
		input.HasMore = list.HasMore()
		return f.Format(os.Stdout, input)
	}

	return browseInteractive(ctx, list, f, input)
}

func loadAll(ctx context.Context, list *postlist.List) error {
	for list.HasMore() {
		if _, err := list.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// browseInteractive prints the list, then one more page per line read from
// stdin until the list is exhausted or the user quits.
func browseInteractive(ctx context.Context, list *postlist.List, f listing.Formatter, input listing.ListInput) error {
	input.Posts = list.Posts()
	input.HasMore = list.HasMore()
	if err := f.Format(os.Stdout, input); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdin)
	for list.HasMore() {
		if !scanner.Scan() {
			break
		}
		if answer := strings.TrimSpace(scanner.Text()); strings.EqualFold(answer, "q") {
			break
		}

		shown := list.Len()
		if _, err := list.LoadMore(ctx); err != nil {
			var fe *cms.FetchError
			if !errors.As(err, &fe) {
				return err
			}
			fmt.Printf("Could not load more posts: %v\nPress Enter to try again, q to quit.\n", fe)
			continue
		}

		input.Posts = list.Posts()
		input.HasMore = list.HasMore()
		input.From = shown
		if err := f.Format(os.Stdout, input); err != nil {
			return err
		}
	}
	return scanner.Err()
}
