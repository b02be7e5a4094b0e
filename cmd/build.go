package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/urfave/cli/v3"
)

// BuildCommand creates the build command
func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Rebuild the index from a directory of archives",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory to index (defaults to archive_dir from the config)",
			},
			&cli.BoolFlag{
				Name:  "in-place",
				Usage: "Clear the index before reading archives instead of staging the rebuild",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Only print the summary",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return buildIndex(ctx, c.String("config"), buildOptions{
				dir:     c.String("dir"),
				inPlace: c.Bool("in-place"),
				quiet:   c.Bool("quiet"),
			})
		},
	}
}

type buildOptions struct {
	dir     string
	inPlace bool
	quiet   bool
}

func buildIndex(ctx context.Context, configPath string, opts buildOptions) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dir := opts.dir
	if dir == "" {
		dir = cfg.ArchiveDir
	}
	if dir == "" {
		return fmt.Errorf("no directory to index: pass --dir or set archive_dir in %s", configPath)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	builderOpts := []catalog.Option{}
	if opts.inPlace {
		builderOpts = append(builderOpts, catalog.WithStaged(false))
	}
	if !opts.quiet {
		builderOpts = append(builderOpts, catalog.WithProgress(func(e catalog.Event) {
			printEvent(os.Stdout, e)
		}))
	}
	builder := newBuilder(cfg, store, builderOpts...)

	report, err := builder.Build(ctx, dir)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	printReport(os.Stdout, report)
	return nil
}

// printEvent writes one progress line per archive.
func printEvent(w io.Writer, e catalog.Event) {
	switch e.Type {
	case catalog.EventBuildStarted:
		fmt.Fprintf(w, "Indexing %d archives\n", e.Total)
	case catalog.EventArchiveIndexed:
		fmt.Fprintf(w, "  [%d/%d] %s: %s entries\n", e.Index, e.Total, e.Archive, formatNumber(int64(e.Entries)))
	case catalog.EventArchiveSkipped:
		fmt.Fprintf(w, "  [%d/%d] %s\n", e.Index, e.Total, warnStyle.Render(fmt.Sprintf("%s: skipped (%s)", e.Archive, e.Message)))
	}
}

func printReport(w io.Writer, r *catalog.Report) {
	mode := "staged"
	if !r.Staged {
		mode = "in place"
	}
	fmt.Fprintln(w, okStyle.Render("✓ Index rebuilt"))
	fmt.Fprintf(w, "  Directory: %s\n", r.SourceDir)
	fmt.Fprintf(w, "  Archives:  %d indexed, %d skipped\n", r.Archives, r.Skipped)
	fmt.Fprintf(w, "  Entries:   %s\n", formatNumber(int64(r.Entries)))
	fmt.Fprintf(w, "  Took:      %s (%s)\n", formatDuration(r.Duration), mode)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d warnings:", len(r.Warnings))))
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning.String())
		}
	}
}
