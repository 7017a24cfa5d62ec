package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ignblog/internal/store"
)

var (
	buildsLimit  int
	buildsFormat string
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "List recorded builds",
	RunE:  buildsAction,
}

func init() {
	buildsCmd.Flags().IntVar(&buildsLimit, "limit", 10, "number of builds to show (0 for all)")
	buildsCmd.Flags().StringVar(&buildsFormat, "format", "terminal", "output format: terminal, json")
}

func buildsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	builds, err := db.ListBuilds(cmd.Context(), buildsLimit)
	if err != nil {
		return fmt.Errorf("list builds: %w", err)
	}

	switch buildsFormat {
	case "json":
		return printBuildsJSON(os.Stdout, builds)
	case "terminal", "":
		printBuilds(os.Stdout, builds, time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", buildsFormat)
	}
}

func printBuilds(w io.Writer, builds []store.Build, now time.Time) {
	if len(builds) == 0 {
		fmt.Fprintln(w, "No builds yet. Run 'ignblog build' first.")
		return
	}
	for _, b := range builds {
		line := fmt.Sprintf("%s  %-14s  %d posts, %d documents",
			b.ID, humanize.RelTime(b.FinishedAt, now, "ago", "from now"), b.PostCount, b.Documents)
		if b.Failed > 0 {
			line += fmt.Sprintf(", %d failed", b.Failed)
		}
		line += fmt.Sprintf("  (%s, %s)", b.Source, b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond))
		fmt.Fprintln(w, line)
	}
}

type buildJSON struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Posts      int    `json:"posts"`
	Documents  int    `json:"documents"`
	Failed     int    `json:"failed"`
	HasMore    bool   `json:"has_more"`
}

func printBuildsJSON(w io.Writer, builds []store.Build) error {
	out := make([]buildJSON, 0, len(builds))
	for _, b := range builds {
		out = append(out, buildJSON{
			ID:         b.ID,
			Source:     b.Source,
			StartedAt:  b.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: b.FinishedAt.UTC().Format(time.RFC3339),
			Posts:      b.PostCount,
			Documents:  b.Documents,
			Failed:     b.Failed,
			HasMore:    !b.Page.NextPage.Empty(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"builds": out})
}
