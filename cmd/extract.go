package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/rubiojr/zipindex/pkg/extract"
	"github.com/rubiojr/zipindex/pkg/reveal"
	"github.com/urfave/cli/v3"
)

// ExtractCommand creates the extract command
func ExtractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract one indexed entry to disk",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "id",
				Usage: "Index id of the entry, as shown by search",
			},
			&cli.StringFlag{
				Name:  "archive",
				Usage: "Archive path, used with --entry instead of --id",
			},
			&cli.StringFlag{
				Name:  "entry",
				Usage: "Entry name inside the archive",
			},
			&cli.StringFlag{
				Name:  "dest",
				Usage: "Destination directory (defaults to extract.destination from the config)",
			},
			&cli.BoolFlag{
				Name:  "reveal",
				Usage: "Show the extracted file in the file manager",
			},
			&cli.BoolFlag{
				Name:  "no-overwrite",
				Usage: "Fail instead of replacing an existing file",
			},
			&cli.BoolFlag{
				Name:  "preserve-times",
				Usage: "Keep the modification time recorded in the archive",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return extractEntry(ctx, c.String("config"), extractOptions{
				id:            c.Int64("id"),
				archivePath:   c.String("archive"),
				entryName:     c.String("entry"),
				dest:          c.String("dest"),
				reveal:        c.Bool("reveal"),
				noOverwrite:   c.Bool("no-overwrite"),
				preserveTimes: c.Bool("preserve-times"),
			})
		},
	}
}

type extractOptions struct {
	id            int64
	archivePath   string
	entryName     string
	dest          string
	reveal        bool
	noOverwrite   bool
	preserveTimes bool
}

func extractEntry(ctx context.Context, configPath string, opts extractOptions) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	archivePath, entryName := opts.archivePath, opts.entryName
	switch {
	case opts.id != 0:
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		entry, err := store.Get(opts.id)
		closeStore(store)
		if err != nil {
			return fmt.Errorf("looking up entry %d: %w", opts.id, err)
		}
		archivePath, entryName = entry.ArchivePath, entry.Name
	case archivePath == "" || entryName == "":
		return errors.New("pass --id, or both --archive and --entry")
	}

	dest := opts.dest
	if dest == "" {
		dest = cfg.Extract.Destination
	}

	extractOpts := []extract.Option{extract.WithPreserveTimes(opts.preserveTimes)}
	if opts.noOverwrite {
		extractOpts = append(extractOpts, extract.WithOverwrite(false))
	}
	extractor := newExtractor(cfg, extractOpts...)

	path, err := extractor.Extract(archivePath, entryName, dest)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", entryName, err)
	}
	fmt.Println(okStyle.Render("✓ Extracted to " + path))

	if opts.reveal {
		if err := reveal.Reveal(ctx, path); err != nil {
			fmt.Printf("Warning: failed to reveal %s: %v\n", path, err)
		}
	}
	return nil
}
