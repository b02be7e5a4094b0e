// Package catalog rebuilds the archive index from a directory of archives.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/zipindex/pkg/archive"
	"github.com/rubiojr/zipindex/pkg/log"
	"github.com/rubiojr/zipindex/pkg/storage"
)

var (
	// ErrDirectoryRead is returned when the source directory cannot be
	// listed. The index is left untouched.
	ErrDirectoryRead = errors.New("catalog: cannot read source directory")

	// ErrBuildInProgress is returned when Build is called while another
	// build on the same Builder is running.
	ErrBuildInProgress = errors.New("catalog: a build is already in progress")
)

// DefaultExtensions are the archive extensions selected when none are configured.
var DefaultExtensions = []string{"zip"}

// Warning records an archive that was skipped during a build.
type Warning struct {
	Archive string `json:"archive"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (w Warning) String() string {
	return fmt.Sprintf("skipped %s: %s", w.Archive, w.Message)
}

// Report summarizes a finished build.
type Report struct {
	BuildID   string        `json:"build_id"`
	SourceDir string        `json:"source_dir"`
	Archives  int           `json:"archives"`
	Skipped   int           `json:"skipped"`
	Entries   int           `json:"entries"`
	Warnings  []Warning     `json:"warnings"`
	Staged    bool          `json:"staged"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Option configures a Builder.
type Option func(*Builder)

// WithExtensions sets the archive extensions to select, without the leading dot.
func WithExtensions(exts ...string) Option {
	return func(b *Builder) {
		if len(exts) > 0 {
			b.extensions = exts
		}
	}
}

// WithStaged selects between a staged rebuild, swapped into place only when
// every archive was processed, and an in-place rebuild that clears the index
// first.
func WithStaged(staged bool) Option {
	return func(b *Builder) {
		b.staged = staged
	}
}

// WithProgress registers a callback invoked synchronously for every build event.
func WithProgress(fn func(Event)) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// Builder rebuilds the index held by a Store.
type Builder struct {
	store      *storage.Store
	extensions []string
	staged     bool
	progress   func(Event)
	logger     *log.Logger

	mu      sync.Mutex
	running atomic.Bool
}

func NewBuilder(store *storage.Store, opts ...Option) *Builder {
	b := &Builder{
		store:      store,
		extensions: DefaultExtensions,
		staged:     true,
		logger:     log.ForService("catalog"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Running reports whether a build is in progress.
func (b *Builder) Running() bool {
	return b.running.Load()
}

// batchInserter is satisfied by *storage.Store (in-place builds) and
// *storage.Rebuild (staged builds).
type batchInserter interface {
	InsertBatch(entries []archive.Entry, archiveName, archivePath string) (int, error)
}

// Build replaces the index with the entries of every archive directly inside
// sourceDir. Archives that cannot be opened or enumerated are skipped and
// reported as warnings. A store write failure or a cancelled ctx aborts the
// build; in staged mode the previous index is then kept.
func (b *Builder) Build(ctx context.Context, sourceDir string) (*Report, error) {
	if !b.mu.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer b.mu.Unlock()
	b.running.Store(true)
	defer b.running.Store(false)

	if err := b.store.EnsureSchema(); err != nil {
		return nil, err
	}

	if abs, err := filepath.Abs(sourceDir); err == nil {
		sourceDir = abs
	}
	children, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDirectoryRead, sourceDir, err)
	}
	candidates := b.candidates(sourceDir, children)

	report := &Report{
		BuildID:   uuid.NewString(),
		SourceDir: sourceDir,
		Warnings:  []Warning{},
		Staged:    b.staged,
		StartedAt: time.Now(),
	}
	if err := b.store.StartBuild(report.BuildID, sourceDir, report.StartedAt); err != nil {
		return nil, err
	}
	b.logger.Infof("Build %s started: %d candidate archives in %s", report.BuildID, len(candidates), sourceDir)
	b.emit(Event{Type: EventBuildStarted, BuildID: report.BuildID, Total: len(candidates)})

	buildErr := b.run(ctx, report, candidates)
	report.Duration = time.Since(report.StartedAt)

	finished := report.StartedAt.Add(report.Duration)
	rec := storage.BuildRecord{
		ID:         report.BuildID,
		FinishedAt: &finished,
		Archives:   report.Archives,
		Skipped:    report.Skipped,
		Entries:    report.Entries,
		Status:     storage.BuildSucceeded,
	}
	if buildErr != nil {
		rec.Status = storage.BuildFailed
		rec.Error = buildErr.Error()
	}
	if err := b.store.FinishBuild(rec); err != nil {
		b.logger.Warnf("failed to record build %s: %v", report.BuildID, err)
	}

	if buildErr != nil {
		b.logger.Errorf("Build %s failed: %v", report.BuildID, buildErr)
		b.emit(Event{Type: EventBuildFailed, BuildID: report.BuildID, Entries: report.Entries, Message: buildErr.Error()})
		return report, buildErr
	}

	b.logger.Infof("Build %s finished: %d entries from %d archives (%d skipped) in %v",
		report.BuildID, report.Entries, report.Archives, report.Skipped, report.Duration)
	b.emit(Event{Type: EventBuildFinished, BuildID: report.BuildID, Entries: report.Entries, Total: len(candidates)})
	return report, nil
}

func (b *Builder) run(ctx context.Context, report *Report, candidates []string) error {
	var sink batchInserter
	var rebuild *storage.Rebuild
	if b.staged {
		var err error
		if rebuild, err = b.store.BeginRebuild(); err != nil {
			return err
		}
		sink = rebuild
		defer func() {
			if err := rebuild.Abort(); err != nil {
				b.logger.Warnf("failed to discard staged rows: %v", err)
			}
		}()
	} else {
		if err := b.store.ClearAll(); err != nil {
			return err
		}
		sink = b.store
	}

	for i, path := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.Base(path)
		n, err := b.indexArchive(sink, path, name)
		if err != nil {
			if errors.Is(err, archive.ErrOpen) || errors.Is(err, archive.ErrEnumeration) {
				w := Warning{Archive: name, Path: path, Message: err.Error(), Err: err}
				report.Warnings = append(report.Warnings, w)
				report.Skipped++
				b.logger.Warnf("Skipping %s: %v", name, err)
				b.emit(Event{Type: EventArchiveSkipped, BuildID: report.BuildID, Archive: name, Index: i + 1, Total: len(candidates), Message: err.Error()})
				continue
			}
			return err
		}

		report.Archives++
		report.Entries += n
		b.logger.Debugf("Indexed %d entries from %s", n, name)
		b.emit(Event{Type: EventArchiveIndexed, BuildID: report.BuildID, Archive: name, Entries: n, Index: i + 1, Total: len(candidates)})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if rebuild != nil {
		return rebuild.Commit()
	}
	return nil
}

// indexArchive reads the whole entry list before writing so that an
// enumeration failure never leaves a partial batch behind.
func (b *Builder) indexArchive(sink batchInserter, path, name string) (int, error) {
	a, err := archive.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			b.logger.Warnf("failed to close archive %s: %v", path, err)
		}
	}()

	entries := make([]archive.Entry, 0, a.Len())
	for entry, err := range a.Entries() {
		if err != nil {
			return 0, err
		}
		if entry.IsDir {
			continue
		}
		entries = append(entries, entry)
	}

	return sink.InsertBatch(entries, name, path)
}

// candidates returns the paths of regular files (symlinks followed) with a
// selected extension, in directory name order.
func (b *Builder) candidates(dir string, children []os.DirEntry) []string {
	var paths []string
	for _, child := range children {
		if !archive.HasExtension(child.Name(), b.extensions) {
			continue
		}
		path := filepath.Join(dir, child.Name())
		info, err := os.Stat(path)
		if err == nil && !info.Mode().IsRegular() {
			b.logger.Debugf("Ignoring %s: not a regular file", path)
			continue
		}
		// Unreadable candidates are kept so the open failure is reported.
		paths = append(paths, path)
	}
	return paths
}

func (b *Builder) emit(e Event) {
	if b.progress == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.progress(e)
}
