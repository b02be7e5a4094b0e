package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/search"
	"github.com/rubiojr/zipindex/pkg/storage"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0K"},
		{15300, "15.3K"},
		{2500000, "2.5M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-1, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90*time.Second + 400*time.Millisecond, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		in   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-50 * time.Hour), "2 days ago"},
	}
	for _, tt := range tests {
		if got := formatTime(tt.in); got != tt.want {
			t.Errorf("formatTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeading(t *testing.T) {
	if got := heading("build_finished"); got != "Build Finished" {
		t.Errorf("heading = %q", got)
	}
	if got := heading("succeeded"); got != "Succeeded" {
		t.Errorf("heading = %q", got)
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, catalog.Event{Type: catalog.EventBuildStarted, Total: 2})
	printEvent(&buf, catalog.Event{Type: catalog.EventArchiveIndexed, Archive: "a.zip", Entries: 3, Index: 1, Total: 2})
	printEvent(&buf, catalog.Event{Type: catalog.EventArchiveSkipped, Archive: "bad.zip", Message: "not a valid zip file", Index: 2, Total: 2})
	printEvent(&buf, catalog.Event{Type: catalog.EventBuildFinished})

	out := buf.String()
	for _, want := range []string{
		"Indexing 2 archives",
		"[1/2] a.zip: 3 entries",
		"[2/2]",
		"bad.zip: skipped (not a valid zip file)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("expected 3 lines, got %d:\n%s", lines, out)
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &catalog.Report{
		SourceDir: "/data/archives",
		Archives:  2,
		Skipped:   1,
		Entries:   1200,
		Staged:    false,
		Duration:  2 * time.Second,
		Warnings: []catalog.Warning{
			{Archive: "bad.zip", Message: "not a valid zip file", Err: errors.New("zip: not a valid zip file")},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"/data/archives",
		"2 indexed, 1 skipped",
		"1.2K",
		"2.0s (in place)",
		"1 warnings:",
		"skipped bad.zip: not a valid zip file",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, &search.Results{
		Entries: []storage.Entry{
			{ID: 7, ArchiveName: "a.zip", Name: "docs/report.pdf", Size: 2048, CompressedSize: 1024},
		},
		TotalCount: 3,
		TotalPages: 3,
		HasMore:    true,
		Page:       1,
		PageSize:   1,
		Query:      "report",
	})

	out := buf.String()
	for _, want := range []string{
		`Entries matching "report"`,
		"docs/report.pdf",
		"a.zip",
		"2.0 KiB",
		"1.0 KiB",
		"Page 1 of 3, 3 matching entries",
		"--page 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, &search.Results{Page: 1, PageSize: 30})

	out := buf.String()
	if !strings.Contains(out, "All entries") || !strings.Contains(out, "No entries found") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestFormatStats(t *testing.T) {
	started := time.Now().Add(-2 * time.Hour)
	finished := started.Add(1500 * time.Millisecond)
	last := &storage.BuildRecord{StartedAt: started, FinishedAt: &finished, Archives: 1, Entries: 2, Status: storage.BuildSucceeded}

	var buf bytes.Buffer
	formatStats(&buf, "/tmp/cache.sqlite",
		&storage.Stats{Entries: 2, Archives: 1, TotalSize: 10, CompressedSize: 8, LastBuild: last},
		[]storage.ArchiveSummary{{Name: "a.zip", Path: "/data/a.zip", Entries: 2, Size: 10, CompressedSize: 8}},
		[]storage.BuildRecord{*last},
	)

	out := buf.String()
	for _, want := range []string{
		"/tmp/cache.sqlite",
		"Archives:     1",
		"10 B (8 B compressed)",
		"2 hours ago, succeeded",
		"a.zip",
		"Recent Builds",
		"Succeeded",
		"1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatsNeverBuilt(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, "/tmp/cache.sqlite", &storage.Stats{}, nil, nil)
	if !strings.Contains(buf.String(), "Last build:   never") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
