// Package archive reads entry metadata and content out of zip archives.
//
// Archives are read with github.com/klauspost/compress/zip. Entries stored
// with the Zstandard method (93, and the legacy 20) are decompressed with
// github.com/klauspost/compress/zstd.
package archive

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrOpen is returned when a file cannot be read or is not a well-formed archive.
	ErrOpen = errors.New("archive: cannot open")

	// ErrEnumeration is returned when listing the entries of an opened archive fails.
	ErrEnumeration = errors.New("archive: cannot enumerate entries")

	// ErrNotFound is returned when no entry matches a name.
	ErrNotFound = errors.New("archive: entry not found")

	// ErrRead is returned when decompressing an entry fails.
	ErrRead = errors.New("archive: cannot read entry")
)

func init() {
	zip.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	zip.RegisterDecompressor(zstd.ZipMethodPKWare, zstd.ZipDecompressor())
}

// Entry describes one archive member.
type Entry struct {
	Name           string
	IsDir          bool
	Size           int64
	CompressedSize int64
	Method         uint16
	Modified       time.Time
}

// Archive is an open zip file.
type Archive struct {
	path     string
	rc       *zip.ReadCloser
	byName   map[string]*zip.File
	consumed bool
	closed   bool
}

// Open opens the archive at path and reads its central directory.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}
	return &Archive{path: path, rc: rc}, nil
}

// Path returns the path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Len returns the number of members, directories included.
func (a *Archive) Len() int {
	return len(a.rc.File)
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.rc.Close()
}

// Entries yields the archive members in central directory order. The
// sequence can be ranged over once; later iterations, and iterations after
// Close, yield a single ErrEnumeration error.
func (a *Archive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		switch {
		case a.closed:
			yield(Entry{}, fmt.Errorf("%w: %s: archive is closed", ErrEnumeration, a.path))
			return
		case a.consumed:
			yield(Entry{}, fmt.Errorf("%w: %s: entries already consumed", ErrEnumeration, a.path))
			return
		}
		a.consumed = true

		for _, f := range a.rc.File {
			entry, err := entryFromFile(f)
			if err != nil {
				yield(Entry{}, fmt.Errorf("%w: %s: %w", ErrEnumeration, a.path, err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func entryFromFile(f *zip.File) (Entry, error) {
	if f.Name == "" {
		return Entry{}, errors.New("entry with empty name")
	}
	if f.UncompressedSize64 > math.MaxInt64 || f.CompressedSize64 > math.MaxInt64 {
		return Entry{}, fmt.Errorf("entry %s: size overflows int64", f.Name)
	}
	return Entry{
		Name:           f.Name,
		IsDir:          f.FileInfo().IsDir(),
		Size:           int64(f.UncompressedSize64),
		CompressedSize: int64(f.CompressedSize64),
		Method:         f.Method,
		Modified:       f.Modified,
	}, nil
}

func (a *Archive) lookup(name string) (*zip.File, error) {
	if a.closed {
		return nil, fmt.Errorf("%w: %s: archive is closed", ErrRead, a.path)
	}
	if a.byName == nil {
		a.byName = make(map[string]*zip.File, len(a.rc.File))
		for _, f := range a.rc.File {
			// first occurrence wins for duplicated names
			if _, ok := a.byName[f.Name]; !ok {
				a.byName[f.Name] = f
			}
		}
	}
	f, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, name, a.path)
	}
	return f, nil
}

// Lookup returns the entry whose name is exactly name.
func (a *Archive) Lookup(name string) (Entry, error) {
	f, err := a.lookup(name)
	if err != nil {
		return Entry{}, err
	}
	entry, err := entryFromFile(f)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %w", ErrEnumeration, a.path, err)
	}
	return entry, nil
}

// OpenEntry returns a reader over the decompressed content of name. Read
// errors from the returned reader wrap ErrRead.
func (a *Archive) OpenEntry(name string) (io.ReadCloser, Entry, error) {
	f, err := a.lookup(name)
	if err != nil {
		return nil, Entry{}, err
	}
	entry, err := entryFromFile(f)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%w: %s: %w", ErrEnumeration, a.path, err)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, Entry{}, fmt.Errorf("%w: %q in %s: %w", ErrRead, name, a.path, err)
	}
	return &entryReader{ReadCloser: rc, name: name}, entry, nil
}

type entryReader struct {
	io.ReadCloser
	name string
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %q: %w", ErrRead, r.name, err)
	}
	return n, err
}

// HasExtension reports whether name ends in one of exts. Extensions are
// given without the leading dot and compared case-insensitively.
func HasExtension(name string, exts []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, candidate := range exts {
		if strings.EqualFold(ext, strings.TrimPrefix(candidate, ".")) {
			return true
		}
	}
	return false
}
