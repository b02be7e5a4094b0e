package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/rubiojr/zipindex/pkg/storage"
	"github.com/urfave/cli/v3"
)

// OptimizeCommand creates the optimize command
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Catalog optimization and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run an integrity check on the catalog",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), checkDatabase)
				},
			},
			{
				Name:  "analyze",
				Usage: "Run ANALYZE to update query planner statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), maintenanceStep("ANALYZE", (*storage.Store).Analyze))
				},
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the catalog",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), func(store *storage.Store) error {
						fmt.Println("This may take a while for large catalogs...")
						return maintenanceStep("VACUUM", (*storage.Store).Vacuum)(store)
					})
				},
			},
			{
				Name:  "checkpoint",
				Usage: "Run WAL checkpoint to flush changes",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), maintenanceStep("WAL checkpoint", (*storage.Store).WALCheckpoint))
				},
			},
			{
				Name:  "all",
				Usage: "Run all optimization operations (optimize, analyze, checkpoint)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), optimizeAll)
				},
			},
		},
	}
}

func withStore(configPath string, fn func(*storage.Store) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	return fn(store)
}

func maintenanceStep(name string, op func(*storage.Store) error) func(*storage.Store) error {
	return func(store *storage.Store) error {
		fmt.Printf("Running %s on %s...\n", name, store.Path())
		if err := op(store); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("✓ %s completed\n", name)
		return nil
	}
}

func checkDatabase(store *storage.Store) error {
	fmt.Printf("Checking %s... ", store.Path())
	problems, err := store.IntegrityCheck()
	if err != nil {
		fmt.Println("✗ FAILED")
		return err
	}
	if len(problems) > 0 {
		fmt.Println("✗ FAILED")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("integrity check reported %d problems", len(problems))
	}
	fmt.Println("✓ OK")
	return nil
}

func optimizeAll(store *storage.Store) error {
	steps := []func(*storage.Store) error{
		maintenanceStep("PRAGMA optimize", (*storage.Store).Optimize),
		maintenanceStep("ANALYZE", (*storage.Store).Analyze),
		maintenanceStep("WAL checkpoint", (*storage.Store).WALCheckpoint),
	}
	for _, step := range steps {
		if err := step(store); err != nil {
			return err
		}
		fmt.Println()
	}
	fmt.Println("All optimization operations completed successfully")
	return nil
}
