package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/rubiojr/zipindex/pkg/archive"
	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/extract"
	"github.com/rubiojr/zipindex/pkg/search"
	"github.com/rubiojr/zipindex/pkg/storage"
	"github.com/rubiojr/zipindex/pkg/version"
)

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) HandleBuild(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	dir := req.Dir
	if dir == "" {
		dir = s.options().ArchiveDir
	}
	if dir == "" {
		s.writeError(w, http.StatusBadRequest, "Missing directory", "No archive directory given and none configured")
		return
	}

	// A client disconnect must not abort a rebuild half way.
	report, err := s.builder.Build(context.WithoutCancel(r.Context()), dir)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrBuildInProgress):
			s.writeError(w, http.StatusConflict, "Build in progress", err.Error())
		case errors.Is(err, catalog.ErrDirectoryRead):
			s.writeError(w, http.StatusBadRequest, "Cannot read directory", err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, "Build failed", err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, BuildResponse{
		BuildID:    report.BuildID,
		SourceDir:  report.SourceDir,
		Archives:   report.Archives,
		Skipped:    report.Skipped,
		Entries:    report.Entries,
		Warnings:   report.Warnings,
		Staged:     report.Staged,
		StartedAt:  report.StartedAt,
		DurationMS: report.Duration.Milliseconds(),
	})
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params, err := s.search.ParseParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid parameters", err.Error())
		return
	}

	results, err := s.search.Search(params)
	if err != nil {
		if errors.Is(err, search.ErrInvalidParams) {
			s.writeError(w, http.StatusBadRequest, "Invalid parameters", err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	entries := make([]EntryResponse, len(results.Entries))
	for i, e := range results.Entries {
		entries[i] = newEntryResponse(e)
	}

	s.writeJSON(w, http.StatusOK, SearchResponse{
		Query:      results.Query,
		Entries:    entries,
		Count:      len(entries),
		TotalCount: results.TotalCount,
		Page:       results.Page,
		Limit:      results.PageSize,
		TotalPages: results.TotalPages,
		HasMore:    results.HasMore,
	})
}

func (s *Server) HandleEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid id", fmt.Sprintf("Entry id %q is not a number", r.PathValue("id")))
		return
	}

	entry, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Entry not found", err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to get entry", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, newEntryResponse(entry))
}

func (s *Server) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	archivePath, entryName := req.ArchivePath, req.EntryName
	if req.ID != nil {
		entry, err := s.store.Get(*req.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "Entry not found", err.Error())
				return
			}
			s.writeError(w, http.StatusInternalServerError, "Failed to get entry", err.Error())
			return
		}
		archivePath, entryName = entry.ArchivePath, entry.Name
	}
	if archivePath == "" || entryName == "" {
		s.writeError(w, http.StatusBadRequest, "Missing entry", "Either 'id' or both 'archive_path' and 'entry_name' are required")
		return
	}

	opts := s.options()
	dest := req.Destination
	if dest == "" {
		dest = opts.Destination
	}
	if dest == "" {
		s.writeError(w, http.StatusBadRequest, "Missing destination", "No destination given and none configured")
		return
	}

	path, err := s.extractor.Extract(archivePath, entryName, dest)
	if err != nil {
		status, title := extractErrorStatus(err)
		s.writeError(w, status, title, err.Error())
		return
	}

	resp := ExtractResponse{Path: path}
	if req.Reveal {
		if err := opts.Reveal(r.Context(), path); err != nil {
			s.logger.Warnf("failed to reveal %s: %v", path, err)
			resp.RevealError = err.Error()
		} else {
			resp.Revealed = true
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func extractErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "Entry not found"
	case errors.Is(err, archive.ErrOpen) && errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "Archive not found"
	case errors.Is(err, archive.ErrOpen):
		return http.StatusInternalServerError, "Cannot open archive"
	case errors.Is(err, extract.ErrExists):
		return http.StatusConflict, "Destination exists"
	case errors.Is(err, extract.ErrUnsafePath), errors.Is(err, extract.ErrDirectoryEntry):
		return http.StatusBadRequest, "Cannot extract entry"
	default:
		return http.StatusInternalServerError, "Extraction failed"
	}
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get stats", err.Error())
		return
	}
	archives, err := s.store.Archives()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list archives", err.Error())
		return
	}
	if archives == nil {
		archives = []storage.ArchiveSummary{}
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{
		Entries:             stats.Entries,
		Archives:            stats.Archives,
		TotalSize:           stats.TotalSize,
		TotalSizeHuman:      humanBytes(stats.TotalSize),
		CompressedSize:      stats.CompressedSize,
		CompressedSizeHuman: humanBytes(stats.CompressedSize),
		LastBuild:           stats.LastBuild,
		ArchiveList:         archives,
		Building:            s.builder.Running(),
		DatabasePath:        s.store.Path(),
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
