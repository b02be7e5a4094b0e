package storage

import (
	"errors"
	"fmt"

	"github.com/rubiojr/zipindex/pkg/archive"
)

// ErrRebuildDone is returned when a finished Rebuild is used again.
var ErrRebuildDone = errors.New("storage: rebuild already committed or aborted")

// Rebuild stages a full replacement of the catalog. Batches go to the
// files_build table; Commit swaps them into files in one transaction.
type Rebuild struct {
	s    *Store
	done bool
}

// BeginRebuild discards leftovers of an earlier interrupted rebuild and
// returns an empty staging area.
func (s *Store) BeginRebuild() (*Rebuild, error) {
	if _, err := s.db.Exec("DELETE FROM " + stagingTable); err != nil {
		return nil, fmt.Errorf("%w: clearing staging table: %w", ErrWrite, err)
	}
	return &Rebuild{s: s}, nil
}

// InsertBatch stages one archive's entries atomically.
func (r *Rebuild) InsertBatch(entries []archive.Entry, archiveName, archivePath string) (int, error) {
	if r.done {
		return 0, ErrRebuildDone
	}
	return r.s.insertBatch(stagingTable, entries, archiveName, archivePath)
}

// Commit replaces the live catalog with the staged rows.
func (r *Rebuild) Commit() error {
	if r.done {
		return ErrRebuildDone
	}

	tx, err := r.s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: beginning swap: %w", ErrWrite, err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				r.s.logger.Warnf("failed to rollback swap: %v", err)
			}
		}
	}()

	statements := []string{
		"DELETE FROM " + liveTable,
		`INSERT INTO ` + liveTable + ` (archive_name, file_name, file_size, compressed_size, zip_path)
			SELECT archive_name, file_name, file_size, compressed_size, zip_path FROM ` + stagingTable + ` ORDER BY id`,
		"DELETE FROM " + stagingTable,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w: swapping staged rows: %w", ErrWrite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing swap: %w", ErrWrite, err)
	}
	committed = true
	r.done = true
	return nil
}

// Abort drops the staged rows and leaves the live catalog untouched.
func (r *Rebuild) Abort() error {
	if r.done {
		return nil
	}
	r.done = true
	if _, err := r.s.db.Exec("DELETE FROM " + stagingTable); err != nil {
		return fmt.Errorf("%w: clearing staging table: %w", ErrWrite, err)
	}
	return nil
}
