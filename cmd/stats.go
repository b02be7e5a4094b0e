package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/rubiojr/zipindex/pkg/storage"
	"github.com/urfave/cli/v3"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index statistics",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "builds",
				Usage: "Number of recent builds to list",
				Value: 5,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return showStats(c.String("config"), c.Int("builds"))
		},
	}
}

// showStats displays index statistics
func showStats(configPath string, buildLimit int) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}
	archives, err := store.Archives()
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}
	var builds []storage.BuildRecord
	if buildLimit > 0 {
		builds, err = store.Builds(buildLimit)
		if err != nil {
			return fmt.Errorf("listing builds: %w", err)
		}
	}

	formatStats(os.Stdout, store.Path(), stats, archives, builds)
	return nil
}

func formatStats(w io.Writer, dbPath string, stats *storage.Stats, archives []storage.ArchiveSummary, builds []storage.BuildRecord) {
	fmt.Fprintln(w, titleStyle.Render("Index Statistics"))
	fmt.Fprintf(w, "Database:     %s\n", dbPath)
	fmt.Fprintf(w, "Entries:      %s\n", formatNumber(stats.Entries))
	fmt.Fprintf(w, "Archives:     %d\n", stats.Archives)
	fmt.Fprintf(w, "Total size:   %s (%s compressed)\n", formatBytes(stats.TotalSize), formatBytes(stats.CompressedSize))
	if stats.LastBuild != nil {
		fmt.Fprintf(w, "Last build:   %s, %s\n", formatTime(stats.LastBuild.StartedAt), stats.LastBuild.Status)
	} else {
		fmt.Fprintln(w, "Last build:   never")
	}

	if len(archives) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, 0, len(archives))
		for _, a := range archives {
			rows = append(rows, []string{
				a.Name,
				strconv.FormatInt(a.Entries, 10),
				formatBytes(a.Size),
				formatBytes(a.CompressedSize),
			})
		}
		fmt.Fprintln(w, renderTable([]string{"Archive", "Entries", "Size", "Compressed"}, rows))
	}

	if len(builds) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render(heading("recent_builds")))
		rows := make([][]string, 0, len(builds))
		for _, b := range builds {
			took := "-"
			if b.FinishedAt != nil {
				took = formatDuration(b.FinishedAt.Sub(b.StartedAt))
			}
			rows = append(rows, []string{
				formatTime(b.StartedAt),
				heading(string(b.Status)),
				strconv.Itoa(b.Archives),
				strconv.Itoa(b.Skipped),
				formatNumber(int64(b.Entries)),
				took,
			})
		}
		fmt.Fprintln(w, renderTable([]string{"Started", "Status", "Archives", "Skipped", "Entries", "Took"}, rows))
	}
}
