// Package storage persists the archive catalog in a single SQLite file.
//
// The files table is the durable contract between builds and searches:
//
//	files(id, archive_name, file_name, file_size, compressed_size, zip_path)
//
// with an index on file_name. The schema is created by the embedded
// migrations in pkg/db. Rebuilds normally write into the files_build staging
// table and swap it into files in one transaction (see Rebuild), so readers
// see either the previous catalog or the new one.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/zipindex/pkg/archive"
	"github.com/rubiojr/zipindex/pkg/db"
	"github.com/rubiojr/zipindex/pkg/log"
)

var (
	// ErrWrite wraps failures creating the schema, clearing or inserting rows.
	ErrWrite = errors.New("storage: write failed")

	// ErrQuery wraps failures reading from the catalog.
	ErrQuery = errors.New("storage: query failed")

	// ErrNotFound is returned by Get for unknown ids.
	ErrNotFound = errors.New("storage: entry not found")
)

const (
	liveTable    = "files"
	stagingTable = "files_build"

	entryColumns = "id, archive_name, file_name, file_size, compressed_size, zip_path"
)

// Entry is one indexed, non-directory archive member.
type Entry struct {
	ID             int64  `json:"id"`
	ArchiveName    string `json:"archive_name"`
	Name           string `json:"file_name"`
	Size           int64  `json:"file_size"`
	CompressedSize int64  `json:"compressed_size"`
	ArchivePath    string `json:"zip_path"`
}

// Store is the SQLite backed catalog.
type Store struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// Open opens (creating if needed) the catalog at dbPath. Call EnsureSchema
// before using it.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps the per-connection pragmas below in effect and
	// serializes writers, which SQLite requires anyway.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	return &Store{db: sqlDB, path: dbPath, logger: log.ForService("storage")}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying connection pool for migrations and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies pending migrations. It is safe to call on every start.
func (s *Store) EnsureSchema() error {
	if err := db.InitializeDatabase(s.db); err != nil {
		return fmt.Errorf("%w: ensuring schema: %w", ErrWrite, err)
	}
	return nil
}

// ClearAll removes every row from the catalog.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec("DELETE FROM " + liveTable); err != nil {
		return fmt.Errorf("%w: clearing catalog: %w", ErrWrite, err)
	}
	return nil
}

// InsertBatch appends the non-directory entries of one archive in a single
// transaction: either all rows become visible or none do. It returns the
// number of rows inserted.
func (s *Store) InsertBatch(entries []archive.Entry, archiveName, archivePath string) (int, error) {
	return s.insertBatch(liveTable, entries, archiveName, archivePath)
}

func (s *Store) insertBatch(table string, entries []archive.Entry, archiveName, archivePath string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %w", ErrWrite, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				s.logger.Warnf("failed to rollback transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.Prepare(`INSERT INTO ` + table + ` (archive_name, file_name, file_size, compressed_size, zip_path)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("%w: preparing statement: %w", ErrWrite, err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			s.logger.Warnf("failed to close statement: %v", err)
		}
	}()

	inserted := 0
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		if _, err := stmt.Exec(archiveName, entry.Name, entry.Size, entry.CompressedSize, archivePath); err != nil {
			return 0, fmt.Errorf("%w: inserting %s from %s: %w", ErrWrite, entry.Name, archiveName, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing %s: %w", ErrWrite, archiveName, err)
	}
	committed = true
	return inserted, nil
}

// Search returns the page of entries whose file_name contains query, and the
// total number of matches in the whole catalog. Matching is exact,
// case-sensitive substring containment; LIKE wildcards have no special
// meaning. Rows come back in insertion order. Pages are 1-based.
func (s *Store) Search(query string, page, pageSize int) ([]Entry, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, fmt.Errorf("%w: invalid page %d or page size %d", ErrQuery, page, pageSize)
	}

	where := ""
	var args []any
	if query != "" {
		where = " WHERE instr(file_name, ?) > 0"
		args = append(args, query)
	}

	// Count and page are read in one transaction so they describe the same
	// snapshot of the catalog.
	tx, err := s.db.Begin()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: beginning transaction: %w", ErrQuery, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warnf("failed to end read transaction: %v", err)
		}
	}()

	var total int
	if err := tx.QueryRow("SELECT COUNT(*) FROM "+liveTable+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: counting matches: %w", ErrQuery, err)
	}

	offset := (page - 1) * pageSize
	if total == 0 || offset >= total {
		return []Entry{}, total, nil
	}

	pageArgs := append(args, pageSize, offset)
	rows, err := tx.Query("SELECT "+entryColumns+" FROM "+liveTable+where+" ORDER BY id LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying entries: %w", ErrQuery, err)
	}
	entries, err := s.scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Get returns the entry with the given id.
func (s *Store) Get(id int64) (Entry, error) {
	var e Entry
	err := s.db.QueryRow("SELECT "+entryColumns+" FROM "+liveTable+" WHERE id = ?", id).
		Scan(&e.ID, &e.ArchiveName, &e.Name, &e.Size, &e.CompressedSize, &e.ArchivePath)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: getting entry %d: %w", ErrQuery, id, err)
	}
	return e, nil
}

func (s *Store) scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var size, compressed sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ArchiveName, &e.Name, &size, &compressed, &e.ArchivePath); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %w", ErrQuery, err)
		}
		e.Size = size.Int64
		e.CompressedSize = compressed.Int64
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %w", ErrQuery, err)
	}
	return entries, nil
}

// ArchiveSummary aggregates the rows indexed from one archive.
type ArchiveSummary struct {
	Name           string `json:"archive_name"`
	Path           string `json:"zip_path"`
	Entries        int64  `json:"entries"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressed_size"`
}

// Archives lists the indexed archives in the order they were indexed.
func (s *Store) Archives() ([]ArchiveSummary, error) {
	rows, err := s.db.Query(`
		SELECT archive_name, zip_path, COUNT(*), COALESCE(SUM(file_size), 0), COALESCE(SUM(compressed_size), 0)
		FROM files
		GROUP BY zip_path, archive_name
		ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing archives: %w", ErrQuery, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var archives []ArchiveSummary
	for rows.Next() {
		var a ArchiveSummary
		if err := rows.Scan(&a.Name, &a.Path, &a.Entries, &a.Size, &a.CompressedSize); err != nil {
			return nil, fmt.Errorf("%w: scanning archive row: %w", ErrQuery, err)
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating archive rows: %w", ErrQuery, err)
	}
	return archives, nil
}

// Stats summarizes the catalog.
type Stats struct {
	Entries        int64        `json:"entries"`
	Archives       int64        `json:"archives"`
	TotalSize      int64        `json:"total_size"`
	CompressedSize int64        `json:"compressed_size"`
	LastBuild      *BuildRecord `json:"last_build,omitempty"`
}

func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT zip_path), COALESCE(SUM(file_size), 0), COALESCE(SUM(compressed_size), 0)
		FROM files`).Scan(&stats.Entries, &stats.Archives, &stats.TotalSize, &stats.CompressedSize)
	if err != nil {
		return nil, fmt.Errorf("%w: counting entries: %w", ErrQuery, err)
	}

	last, err := s.LastBuild()
	if err != nil {
		return nil, err
	}
	stats.LastBuild = last
	return stats, nil
}

func (s *Store) Optimize() error {
	_, err := s.db.Exec("PRAGMA optimize")
	return err
}

func (s *Store) Analyze() error {
	_, err := s.db.Exec("ANALYZE")
	return err
}

func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

func (s *Store) WALCheckpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// IntegrityCheck runs PRAGMA integrity_check and returns the reported
// problems, or nil when the database is healthy.
func (s *Store) IntegrityCheck() ([]string, error) {
	rows, err := s.db.Query("PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("%w: integrity check: %w", ErrQuery, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("%w: scanning integrity check: %w", ErrQuery, err)
		}
		if !strings.EqualFold(line, "ok") {
			problems = append(problems, line)
		}
	}
	return problems, rows.Err()
}
