package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/render"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Print one post",
	Args:  cobra.ExactArgs(1),
	RunE:  showAction,
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "text", "output format: text, html")
}

func showAction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if showFormat != "text" && showFormat != "html" {
		return fmt.Errorf("unknown format %q (want text or html)", showFormat)
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

	doc, err := srcs.cached.GetByUID(cmd.Context(), cfg.CMS.DocumentType, args[0])
	if errors.Is(err, cms.ErrNotFound) {
		return fmt.Errorf("post %q not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}

	if showFormat == "html" {
		return r.Post(os.Stdout, doc)
	}
	printDocument(r, doc)
	return nil
}

func printDocument(r *render.Renderer, doc cms.Document) {
	fmt.Println(doc.Title)
	fmt.Println(strings.Repeat("=", len([]rune(doc.Title))))

	meta := []string{doc.Author, fmt.Sprintf("%d min", r.ReadingTime(doc))}
	if d := r.FormatDate(doc.PublicationDate); d != "" {
		meta = append([]string{d}, meta...)
	}
	fmt.Println(strings.Join(meta, " · "))

	for _, s := range doc.Content {
		fmt.Println()
		if s.Heading != "" {
			fmt.Printf("## %s\n\n", s.Heading)
		}
		fmt.Println(s.Body.Text("\n\n"))
	}
}
