package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rubiojr/zipindex/pkg/archive"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func files(names ...string) []archive.Entry {
	entries := make([]archive.Entry, 0, len(names))
	for i, name := range names {
		entries = append(entries, archive.Entry{Name: name, Size: int64(100 * (i + 1)), CompressedSize: int64(10 * (i + 1))})
	}
	return entries
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestInsertAndSearch(t *testing.T) {
	s := newTestStore(t)

	n, err := s.InsertBatch(files("x.txt", "y.txt"), "a.zip", "/data/a.zip")
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted rows, got %d", n)
	}

	// "y.txt" contains an x too
	if _, total, err := s.Search("x", 1, 10); err != nil || total != 2 {
		t.Fatalf("expected both names to contain \"x\", got total=%d err=%v", total, err)
	}

	entries, total, err := s.Search("x.", 1, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("expected one match, got total=%d len=%d", total, len(entries))
	}
	got := entries[0]
	want := Entry{ID: got.ID, ArchiveName: "a.zip", Name: "x.txt", Size: 100, CompressedSize: 10, ArchivePath: "/data/a.zip"}
	if got != want {
		t.Fatalf("unexpected entry: got %+v, want %+v", got, want)
	}
	if got.ID < 1 {
		t.Fatalf("expected positive id, got %d", got.ID)
	}
}

func TestInsertBatchSkipsDirectories(t *testing.T) {
	s := newTestStore(t)

	entries := []archive.Entry{{Name: "docs/", IsDir: true}, {Name: "docs/readme.md", Size: 5}}
	n, err := s.InsertBatch(entries, "a.zip", "/data/a.zip")
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the file to be inserted, got %d", n)
	}
	_, total, _ := s.Search("", 1, 10)
	if total != 1 {
		t.Fatalf("expected 1 row, got %d", total)
	}
}

func TestInsertBatchIsAtomic(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.InsertBatch(files("keep.txt"), "good.zip", "/data/good.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	_, err := s.db.Exec(`CREATE TRIGGER fail_on_boom BEFORE INSERT ON files
		WHEN NEW.file_name = 'boom'
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END`)
	if err != nil {
		t.Fatalf("creating trigger: %v", err)
	}

	_, err = s.InsertBatch(files("a.txt", "b.txt", "boom", "c.txt"), "bad.zip", "/data/bad.zip")
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}

	entries, total, err := s.Search("", 1, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || !equalStrings(names(entries), []string{"keep.txt"}) {
		t.Fatalf("expected only the earlier batch to remain, got %v", names(entries))
	}
}

func TestSearchPagination(t *testing.T) {
	s := newTestStore(t)

	var all []string
	for i := 0; i < 23; i++ {
		all = append(all, fmt.Sprintf("file-%02d.txt", i))
	}
	if _, err := s.InsertBatch(files(all...), "a.zip", "/data/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	var seen []string
	for page := 1; page <= 5; page++ {
		entries, total, err := s.Search("file", page, 5)
		if err != nil {
			t.Fatalf("Search page %d: %v", page, err)
		}
		if total != 23 {
			t.Fatalf("page %d: expected total 23, got %d", page, total)
		}
		wantLen := 5
		if page == 5 {
			wantLen = 3
		}
		if len(entries) != wantLen {
			t.Fatalf("page %d: expected %d entries, got %d", page, wantLen, len(entries))
		}
		seen = append(seen, names(entries)...)
	}
	if !equalStrings(seen, all) {
		t.Fatalf("pages did not cover the matches in order:\n got %v\nwant %v", seen, all)
	}

	entries, total, err := s.Search("file", 6, 5)
	if err != nil {
		t.Fatalf("Search beyond last page: %v", err)
	}
	if total != 23 || len(entries) != 0 {
		t.Fatalf("expected empty page with total 23, got len=%d total=%d", len(entries), total)
	}
}

func TestSearchMatching(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("Readme.TXT", "readme.txt", "README.md", "100%_done.txt", "other.txt"), "a.zip", "/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"readme", []string{"readme.txt"}},
		{"README", []string{"README.md"}},
		{"TXT", []string{"Readme.TXT"}},
		{"%", []string{"100%_done.txt"}},
		{"_", []string{"100%_done.txt"}},
		{"nothing", []string{}},
		{"", []string{"Readme.TXT", "readme.txt", "README.md", "100%_done.txt", "other.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			entries, total, err := s.Search(tt.query, 1, 50)
			if err != nil {
				t.Fatalf("Search(%q): %v", tt.query, err)
			}
			if total != len(tt.want) {
				t.Errorf("total = %d, want %d", total, len(tt.want))
			}
			if !equalStrings(names(entries), tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.query, names(entries), tt.want)
			}
		})
	}
}

func TestSearchRejectsInvalidPaging(t *testing.T) {
	s := newTestStore(t)
	for _, tc := range [][2]int{{0, 10}, {1, 0}, {-1, -1}} {
		if _, _, err := s.Search("", tc[0], tc[1]); !errors.Is(err, ErrQuery) {
			t.Errorf("Search(page=%d, size=%d): expected ErrQuery, got %v", tc[0], tc[1], err)
		}
	}
}

func TestGet(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("x.txt"), "a.zip", "/data/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	entries, _, _ := s.Search("x.txt", 1, 1)

	got, err := s.Get(entries[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != entries[0] {
		t.Fatalf("Get returned %+v, want %+v", got, entries[0])
	}

	if _, err := s.Get(9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("x.txt", "y.txt"), "a.zip", "/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	_, total, err := s.Search("", 1, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected empty catalog, got %d rows", total)
	}
}

func TestRebuildCommitSwapsCatalog(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("old.txt"), "old.zip", "/old.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	rb, err := s.BeginRebuild()
	if err != nil {
		t.Fatalf("BeginRebuild: %v", err)
	}
	if _, err := rb.InsertBatch(files("new-1.txt", "new-2.txt"), "new.zip", "/new.zip"); err != nil {
		t.Fatalf("staged InsertBatch: %v", err)
	}

	entries, _, _ := s.Search("", 1, 10)
	if !equalStrings(names(entries), []string{"old.txt"}) {
		t.Fatalf("staged rows leaked into live catalog: %v", names(entries))
	}

	if err := rb.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, total, _ := s.Search("", 1, 10)
	if total != 2 || !equalStrings(names(entries), []string{"new-1.txt", "new-2.txt"}) {
		t.Fatalf("expected staged rows after commit, got %v", names(entries))
	}
	if entries[0].ID != 1 {
		t.Fatalf("expected ids to restart after swap, got %d", entries[0].ID)
	}

	var staged int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files_build").Scan(&staged); err != nil {
		t.Fatalf("counting staging rows: %v", err)
	}
	if staged != 0 {
		t.Fatalf("expected empty staging table after commit, got %d", staged)
	}

	if err := rb.Commit(); !errors.Is(err, ErrRebuildDone) {
		t.Fatalf("expected ErrRebuildDone on second commit, got %v", err)
	}
}

func TestRebuildAbortKeepsCatalog(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("old.txt"), "old.zip", "/old.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	rb, err := s.BeginRebuild()
	if err != nil {
		t.Fatalf("BeginRebuild: %v", err)
	}
	if _, err := rb.InsertBatch(files("new.txt"), "new.zip", "/new.zip"); err != nil {
		t.Fatalf("staged InsertBatch: %v", err)
	}
	if err := rb.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	entries, _, _ := s.Search("", 1, 10)
	if !equalStrings(names(entries), []string{"old.txt"}) {
		t.Fatalf("expected old catalog after abort, got %v", names(entries))
	}
	if _, err := rb.InsertBatch(files("late.txt"), "late.zip", "/late.zip"); !errors.Is(err, ErrRebuildDone) {
		t.Fatalf("expected ErrRebuildDone after abort, got %v", err)
	}
}

func TestStatsAndArchives(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("x.txt", "y.txt"), "a.zip", "/data/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if _, err := s.InsertBatch(files("z.txt"), "b.zip", "/data/b.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 3 || stats.Archives != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.TotalSize != 400 || stats.CompressedSize != 40 {
		t.Fatalf("unexpected sizes: %+v", stats)
	}
	if stats.LastBuild != nil {
		t.Fatalf("expected no build history, got %+v", stats.LastBuild)
	}

	archives, err := s.Archives()
	if err != nil {
		t.Fatalf("Archives: %v", err)
	}
	if len(archives) != 2 || archives[0].Name != "a.zip" || archives[0].Entries != 2 || archives[1].Path != "/data/b.zip" {
		t.Fatalf("unexpected archives: %+v", archives)
	}
}

func TestBuildHistory(t *testing.T) {
	s := newTestStore(t)

	first := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	if err := s.StartBuild("b1", "/data", first); err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	finished := first.Add(time.Second)
	err := s.FinishBuild(BuildRecord{ID: "b1", FinishedAt: &finished, Archives: 2, Skipped: 1, Entries: 7, Status: BuildSucceeded})
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	second := first.Add(time.Hour)
	if err := s.StartBuild("b2", "/other", second); err != nil {
		t.Fatalf("StartBuild: %v", err)
	}

	last, err := s.LastBuild()
	if err != nil {
		t.Fatalf("LastBuild: %v", err)
	}
	if last == nil || last.ID != "b2" || last.Status != BuildRunning || last.FinishedAt != nil {
		t.Fatalf("unexpected last build: %+v", last)
	}

	builds, err := s.Builds(10)
	if err != nil {
		t.Fatalf("Builds: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(builds))
	}
	b1 := builds[1]
	if b1.ID != "b1" || b1.Entries != 7 || b1.Skipped != 1 || b1.Status != BuildSucceeded {
		t.Fatalf("unexpected first build: %+v", b1)
	}
	if !b1.StartedAt.Equal(first) || b1.FinishedAt == nil || !b1.FinishedAt.Equal(finished) {
		t.Fatalf("timestamps not preserved: %+v", b1)
	}
}

func TestMaintenance(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertBatch(files("x.txt"), "a.zip", "/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	for name, fn := range map[string]func() error{
		"optimize":   s.Optimize,
		"analyze":    s.Analyze,
		"checkpoint": s.WALCheckpoint,
		"vacuum":     s.Vacuum,
	} {
		if err := fn(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	problems, err := s.IntegrityCheck()
	if err != nil {
		t.Fatalf("IntegrityCheck: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected integrity problems: %v", problems)
	}
}
