package cmd

import (
	"fmt"

	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/config"
	"github.com/rubiojr/zipindex/pkg/extract"
	"github.com/rubiojr/zipindex/pkg/search"
	"github.com/rubiojr/zipindex/pkg/storage"
)

// openStore opens the catalog named by cfg and makes sure its schema is current.
func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", cfg.DBPath, err)
	}
	if err := store.EnsureSchema(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func closeStore(store *storage.Store) {
	if err := store.Close(); err != nil {
		fmt.Printf("Warning: failed to close catalog: %v\n", err)
	}
}

func newBuilder(cfg *config.Config, store *storage.Store, opts ...catalog.Option) *catalog.Builder {
	opts = append([]catalog.Option{
		catalog.WithExtensions(cfg.Extensions...),
		catalog.WithStaged(cfg.Staged()),
	}, opts...)
	return catalog.NewBuilder(store, opts...)
}

func newSearchService(cfg *config.Config, store *storage.Store) *search.Service {
	return search.NewService(store,
		search.WithPageSize(cfg.Search.PageSize),
		search.WithMaxPageSize(cfg.Search.MaxPageSize),
	)
}

func newExtractor(cfg *config.Config, opts ...extract.Option) *extract.Extractor {
	opts = append([]extract.Option{extract.WithOverwrite(cfg.OverwriteOnExtract())}, opts...)
	return extract.New(opts...)
}
