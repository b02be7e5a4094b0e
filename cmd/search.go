package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/rubiojr/zipindex/pkg/search"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search indexed entries by file name",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Page number, starting at 1",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Entries per page (defaults to search.page_size from the config)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return searchEntries(c.String("config"), c.Args().First(), c.Int("page"), c.Int("limit"))
		},
	}
}

func searchEntries(configPath, query string, page, limit int) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	service := newSearchService(cfg, store)
	if limit == 0 {
		limit = service.PageSize()
	}

	results, err := service.Search(search.Params{Query: query, Page: page, PageSize: limit})
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	printResults(os.Stdout, results)
	return nil
}

func printResults(w io.Writer, results *search.Results) {
	title := "All entries"
	if results.Query != "" {
		title = fmt.Sprintf("Entries matching %q", results.Query)
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	if results.TotalCount == 0 {
		fmt.Fprintln(w, metaStyle.Render("No entries found"))
		return
	}

	if len(results.Entries) > 0 {
		rows := make([][]string, 0, len(results.Entries))
		for _, e := range results.Entries {
			rows = append(rows, []string{
				strconv.FormatInt(e.ID, 10),
				e.Name,
				e.ArchiveName,
				formatBytes(e.Size),
				formatBytes(e.CompressedSize),
			})
		}
		fmt.Fprintln(w, renderTable([]string{"ID", "Name", "Archive", "Size", "Compressed"}, rows))
	}

	meta := fmt.Sprintf("Page %d of %d, %d matching entries", results.Page, results.TotalPages, results.TotalCount)
	if results.HasMore {
		meta += fmt.Sprintf(" (use --page %d for more)", results.Page+1)
	}
	fmt.Fprintln(w, metaStyle.Render(meta))
}
