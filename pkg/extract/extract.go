// Package extract writes single archive entries to disk.
package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rubiojr/zipindex/pkg/archive"
	"github.com/rubiojr/zipindex/pkg/log"
)

var (
	// ErrWrite wraps failures creating directories or writing the output file.
	ErrWrite = errors.New("extract: write failed")

	// ErrExists is returned when the output file exists and overwriting is disabled.
	ErrExists = errors.New("extract: destination already exists")

	// ErrUnsafePath is returned for entry names that would resolve outside the
	// destination directory.
	ErrUnsafePath = errors.New("extract: unsafe entry path")

	// ErrDirectoryEntry is returned when the named entry is a directory.
	ErrDirectoryEntry = errors.New("extract: entry is a directory")
)

// Replaced in tests.
var (
	link   = os.Link
	rename = os.Rename
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithOverwrite controls whether an existing output file is replaced.
// Overwriting is enabled by default.
func WithOverwrite(overwrite bool) Option {
	return func(e *Extractor) {
		e.overwrite = overwrite
	}
}

// WithPreserveTimes sets the output file's modification time to the one
// recorded in the archive.
func WithPreserveTimes(preserve bool) Option {
	return func(e *Extractor) {
		e.preserveTimes = preserve
	}
}

type Extractor struct {
	overwrite     bool
	preserveTimes bool
	logger        *log.Logger
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		overwrite: true,
		logger:    log.ForService("extract"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract decompresses the entry named entryName from the archive at
// archivePath into destDir, keeping the entry's internal directory
// structure, and returns the path of the written file.
func (e *Extractor) Extract(archivePath, entryName, destDir string) (string, error) {
	a, err := archive.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := a.Close(); err != nil {
			e.logger.Warnf("failed to close archive %s: %v", archivePath, err)
		}
	}()

	entry, err := a.Lookup(entryName)
	if err != nil {
		return "", err
	}
	if entry.IsDir {
		return "", fmt.Errorf("%w: %q in %s", ErrDirectoryEntry, entryName, archivePath)
	}

	destPath, err := outputPath(destDir, entryName)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("%w: creating directories for %s: %w", ErrWrite, destPath, err)
	}

	if info, err := os.Lstat(destPath); err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("%w: %s: %w", ErrWrite, destPath, &fs.PathError{Op: "extract", Path: destPath, Err: errors.New("is a directory")})
		}
		if !e.overwrite {
			return "", fmt.Errorf("%w: %s", ErrExists, destPath)
		}
	}

	r, _, err := a.OpenEntry(entryName)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := r.Close(); err != nil {
			e.logger.Warnf("failed to close entry %s: %v", entryName, err)
		}
	}()

	if err := e.writeAtomic(r, destPath, entry); err != nil {
		return "", err
	}

	e.logger.Debugf("Extracted %s from %s to %s", entryName, archivePath, destPath)
	return destPath, nil
}

// outputPath joins destDir with the entry's internal path, rejecting names
// that are absolute or climb out of destDir.
func outputPath(destDir, entryName string) (string, error) {
	name := strings.TrimSuffix(entryName, "/")
	// A backslash is an ordinary name character except where it separates paths.
	if name == "" || (filepath.Separator == '\\' && strings.Contains(name, `\`)) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, entryName)
	}
	return filepath.Join(destDir, filepath.FromSlash(name)), nil
}

// writeAtomic streams src into a temporary file next to destPath and renames
// it into place once the full entry was written.
func (e *Extractor) writeAtomic(src io.Reader, destPath string, entry archive.Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".zipindex-")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, src)
	if err != nil {
		return fmt.Errorf("%w: copying %s: %w", ErrWrite, entry.Name, err)
	}
	if n != entry.Size {
		return fmt.Errorf("%w: %s: wrote %d bytes, expected %d", ErrWrite, entry.Name, n, entry.Size)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("%w: setting mode: %w", ErrWrite, err)
	}
	if e.preserveTimes && !entry.Modified.IsZero() {
		if err := os.Chtimes(tmpPath, entry.Modified, entry.Modified); err != nil {
			return fmt.Errorf("%w: setting times: %w", ErrWrite, err)
		}
	}

	if err := e.place(tmpPath, destPath); err != nil {
		return err
	}

	success = true
	return nil
}

// place moves the finished temp file to destPath. Without overwrite the file
// is hard linked, which fails if destPath appeared since the existence check.
func (e *Extractor) place(tmpPath, destPath string) error {
	if !e.overwrite {
		err := link(tmpPath, destPath)
		switch {
		case err == nil:
			if err := os.Remove(tmpPath); err != nil {
				e.logger.Warnf("failed to remove temp file %s: %v", tmpPath, err)
			}
			return nil
		case errors.Is(err, fs.ErrExist):
			return fmt.Errorf("%w: %s", ErrExists, destPath)
		}
		// Filesystems without hard links fall back to a checked rename.
		e.logger.Debugf("hard link to %s failed, renaming instead: %v", destPath, err)
		if _, err := os.Lstat(destPath); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, destPath)
		}
	}

	// os.Rename replaces the target atomically except on Windows, where an
	// existing file has to be removed first.
	if e.overwrite && runtime.GOOS == "windows" {
		if err := os.Remove(destPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: replacing %s: %w", ErrWrite, destPath, err)
		}
	}
	if err := rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("%w: renaming to %s: %w", ErrWrite, destPath, err)
	}
	return nil
}
