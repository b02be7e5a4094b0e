package api

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/storage"
)

type EntryResponse struct {
	ID                  int64  `json:"id"`
	ArchiveName         string `json:"archive_name"`
	FileName            string `json:"file_name"`
	FileSize            int64  `json:"file_size"`
	FileSizeHuman       string `json:"file_size_human"`
	CompressedSize      int64  `json:"compressed_size"`
	CompressedSizeHuman string `json:"compressed_size_human"`
	ZipPath             string `json:"zip_path"`
}

func newEntryResponse(e storage.Entry) EntryResponse {
	return EntryResponse{
		ID:                  e.ID,
		ArchiveName:         e.ArchiveName,
		FileName:            e.Name,
		FileSize:            e.Size,
		FileSizeHuman:       humanBytes(e.Size),
		CompressedSize:      e.CompressedSize,
		CompressedSizeHuman: humanBytes(e.CompressedSize),
		ZipPath:             e.ArchivePath,
	}
}

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SearchResponse struct {
	Query      string          `json:"query"`
	Entries    []EntryResponse `json:"entries"`
	Count      int             `json:"count"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
	HasMore    bool            `json:"has_more"`
}

type BuildRequest struct {
	Dir string `json:"dir"`
}

type BuildResponse struct {
	BuildID    string            `json:"build_id"`
	SourceDir  string            `json:"source_dir"`
	Archives   int               `json:"archives"`
	Skipped    int               `json:"skipped"`
	Entries    int               `json:"entries"`
	Warnings   []catalog.Warning `json:"warnings"`
	Staged     bool              `json:"staged"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMS int64             `json:"duration_ms"`
}

type ExtractRequest struct {
	ID          *int64 `json:"id,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	EntryName   string `json:"entry_name,omitempty"`
	Destination string `json:"destination,omitempty"`
	Reveal      bool   `json:"reveal,omitempty"`
}

type ExtractResponse struct {
	Path     string `json:"path"`
	Revealed bool   `json:"revealed"`
	// RevealError is set when extraction succeeded but the file manager
	// could not be launched.
	RevealError string `json:"reveal_error,omitempty"`
}

type StatsResponse struct {
	Entries             int64                    `json:"entries"`
	Archives            int64                    `json:"archives"`
	TotalSize           int64                    `json:"total_size"`
	TotalSizeHuman      string                   `json:"total_size_human"`
	CompressedSize      int64                    `json:"compressed_size"`
	CompressedSizeHuman string                   `json:"compressed_size_human"`
	LastBuild           *storage.BuildRecord     `json:"last_build,omitempty"`
	ArchiveList         []storage.ArchiveSummary `json:"archive_list"`
	Building            bool                     `json:"building"`
	DatabasePath        string                   `json:"database_path"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// InitMessage is the first websocket message of a build events session.
type InitMessage struct {
	Type      string               `json:"type"`
	Building  bool                 `json:"building"`
	LastBuild *storage.BuildRecord `json:"last_build,omitempty"`
}
