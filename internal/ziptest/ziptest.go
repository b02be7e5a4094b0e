// Package ziptest writes zip fixtures for tests.
package ziptest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// File describes one archive member. Names ending in "/" become directory
// entries. Stored writes the body uncompressed; otherwise a zero Method means
// Deflate.
type File struct {
	Name   string
	Body   string
	Method uint16
	Stored bool
}

// Dir returns a directory entry.
func Dir(name string) File {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return File{Name: name}
}

// Write creates a zip archive at path holding files in the given order and
// returns path.
func Write(t testing.TB, path string, files ...File) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating fixture directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture %s: %v", path, err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	for _, file := range files {
		if strings.HasSuffix(file.Name, "/") {
			if _, err := w.Create(file.Name); err != nil {
				t.Fatalf("adding directory %s: %v", file.Name, err)
			}
			continue
		}

		method := file.Method
		switch {
		case file.Stored:
			method = zip.Store
		case method == zip.Store:
			method = zip.Deflate
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: file.Name, Method: method})
		if err != nil {
			t.Fatalf("adding %s: %v", file.Name, err)
		}
		if _, err := fw.Write([]byte(file.Body)); err != nil {
			t.Fatalf("writing %s: %v", file.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return path
}

// WriteCorrupt writes bytes that are not a zip archive and returns path.
func WriteCorrupt(t testing.TB, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("this is definitely not a zip archive"), 0644); err != nil {
		t.Fatalf("writing corrupt fixture: %v", err)
	}
	return path
}

// Truncate cuts the archive at path to half its size, dropping the central
// directory.
func Truncate(t testing.TB, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if err := os.Truncate(path, info.Size()/2); err != nil {
		t.Fatalf("truncating %s: %v", path, err)
	}
}
