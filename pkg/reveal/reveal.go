// Package reveal asks the desktop file manager to show a file.
package reveal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Command returns the program and arguments that reveal path on goos.
// Windows and macOS select the file itself; elsewhere the containing
// directory is opened.
func Command(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "explorer", []string{"/select," + path}
	case "darwin":
		return "open", []string{"-R", path}
	default:
		return "xdg-open", []string{filepath.Dir(path)}
	}
}

// Reveal shows path in the file manager of the current OS. It returns once
// the file manager has been launched.
func Reveal(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("cannot reveal %s: %w", abs, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The file manager outlives the request, so it is not bound to ctx.
	name, args := Command(runtime.GOOS, abs)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching %s: %w", name, err)
	}
	// Reap the child without blocking the caller. explorer.exe exits
	// non-zero even on success, so its status is ignored.
	go func() { _ = cmd.Wait() }()
	return nil
}
