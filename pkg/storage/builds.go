package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type BuildStatus string

const (
	BuildRunning   BuildStatus = "running"
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

// BuildRecord is one row of the builds history table.
type BuildRecord struct {
	ID         string      `json:"id"`
	SourceDir  string      `json:"source_dir"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Archives   int         `json:"archives"`
	Skipped    int         `json:"skipped"`
	Entries    int         `json:"entries"`
	Status     BuildStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
}

// StartBuild records a build as running.
func (s *Store) StartBuild(id, sourceDir string, startedAt time.Time) error {
	_, err := s.db.Exec(`INSERT INTO builds (id, source_dir, started_at, status) VALUES (?, ?, ?, ?)`,
		id, sourceDir, formatTime(startedAt), BuildRunning)
	if err != nil {
		return fmt.Errorf("%w: recording build start: %w", ErrWrite, err)
	}
	return nil
}

// FinishBuild stores the outcome of a build started with StartBuild.
func (s *Store) FinishBuild(rec BuildRecord) error {
	finished := time.Now()
	if rec.FinishedAt != nil {
		finished = *rec.FinishedAt
	}
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE builds
		SET finished_at = ?, archives = ?, skipped = ?, entries = ?, status = ?, error = ?
		WHERE id = ?`,
		formatTime(finished), rec.Archives, rec.Skipped, rec.Entries, rec.Status, errText, rec.ID)
	if err != nil {
		return fmt.Errorf("%w: recording build result: %w", ErrWrite, err)
	}
	return nil
}

// LastBuild returns the most recently started build, or nil if there is none.
func (s *Store) LastBuild() (*BuildRecord, error) {
	builds, err := s.Builds(1)
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, nil
	}
	return &builds[0], nil
}

// Builds returns up to limit builds, newest first.
func (s *Store) Builds(limit int) ([]BuildRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, source_dir, started_at, finished_at, archives, skipped, entries, status, error
		FROM builds
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing builds: %w", ErrQuery, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var builds []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var started string
		var finished, errText sql.NullString
		var status string
		if err := rows.Scan(&rec.ID, &rec.SourceDir, &started, &finished, &rec.Archives, &rec.Skipped, &rec.Entries, &status, &errText); err != nil {
			return nil, fmt.Errorf("%w: scanning build row: %w", ErrQuery, err)
		}
		rec.Status = BuildStatus(status)
		rec.Error = errText.String
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("%w: parsing build start time: %w", ErrQuery, err)
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, fmt.Errorf("%w: parsing build finish time: %w", ErrQuery, err)
			}
			rec.FinishedAt = &t
		}
		builds = append(builds, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating build rows: %w", ErrQuery, err)
	}
	return builds, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, errors.Join(fmt.Errorf("unrecognized timestamp %q", s), err)
	}
	return t, nil
}
