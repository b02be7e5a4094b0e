package search

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rubiojr/zipindex/pkg/storage"
)

const (
	// DefaultPageSize is used when a request does not name a page size.
	DefaultPageSize = 30

	// DefaultMaxPageSize bounds the page size a caller may request.
	DefaultMaxPageSize = 500
)

// ErrInvalidParams is returned for a page or page size below 1 and for
// malformed query string values.
var ErrInvalidParams = errors.New("search: invalid parameters")

// Params describes one search request.
type Params struct {
	// Query is the substring to look for in entry names.
	// An empty query matches every entry.
	Query string

	// Page is the 1-based page number.
	Page int

	// PageSize is the maximum number of entries per page.
	// Values above the service maximum are clamped.
	PageSize int
}

// Results is one page of matches plus pagination metadata.
type Results struct {
	// Entries are the matches on this page, in index order.
	Entries []storage.Entry

	// TotalCount is the number of matches across all pages.
	TotalCount int

	// TotalPages is ceil(TotalCount / PageSize); zero when nothing matched.
	TotalPages int

	// HasMore reports whether pages after this one hold matches.
	HasMore bool

	// Page is the requested page.
	Page int

	// PageSize is the effective page size, after clamping.
	PageSize int

	// Query is the search term used.
	Query string
}

// Store is the subset of *storage.Store the service needs.
type Store interface {
	Search(query string, page, pageSize int) ([]storage.Entry, int, error)
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets the page size used when a request omits one.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxPageSize sets the largest page size a request may use.
func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// Service executes searches against the index store.
type Service struct {
	store       Store
	pageSize    int
	maxPageSize int
}

// NewService creates a search service backed by store.
//
// Parameters:
//   - store: the index store, usually a *storage.Store
//   - opts: page size defaults and limits
//
// Returns:
//   - *Service: a service ready to execute searches
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		pageSize:    DefaultPageSize,
		maxPageSize: DefaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize > s.maxPageSize {
		s.pageSize = s.maxPageSize
	}
	return s
}

// PageSize returns the default page size.
func (s *Service) PageSize() int {
	return s.pageSize
}

// Search executes a search with the provided parameters.
//
// The search operation:
// 1. Rejects a page or page size below 1 with ErrInvalidParams
// 2. Clamps the page size to the configured maximum
// 3. Reads the page and the total match count from the store
// 4. Derives TotalPages and HasMore
//
// A page past the last one is not an error: it yields no entries and the
// same TotalCount as any other page.
//
// Example:
//
//	results, err := service.Search(search.Params{Query: "invoice", Page: 2, PageSize: 20})
func (s *Service) Search(params Params) (*Results, error) {
	if params.Page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1, got %d", ErrInvalidParams, params.Page)
	}
	if params.PageSize < 1 {
		return nil, fmt.Errorf("%w: page size must be at least 1, got %d", ErrInvalidParams, params.PageSize)
	}
	pageSize := min(params.PageSize, s.maxPageSize)

	entries, total, err := s.store.Search(params.Query, params.Page, pageSize)
	if err != nil {
		return nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &Results{
		Entries:    entries,
		TotalCount: total,
		TotalPages: totalPages,
		HasMore:    params.Page < totalPages,
		Page:       params.Page,
		PageSize:   pageSize,
		Query:      params.Query,
	}, nil
}

// ParseParams parses HTTP query parameters using the service's default page
// size.
//
// Supported parameters:
//   - q: search query string
//   - page: page number, defaults to 1
//   - limit: entries per page, defaults to the configured page size
//
// Values that are present but not integers are rejected with
// ErrInvalidParams. Range checks happen in Search.
func (s *Service) ParseParams(values map[string][]string) (Params, error) {
	return parseParams(values, s.pageSize)
}

// ParseParams parses HTTP query parameters with DefaultPageSize as the
// page size default.
func ParseParams(values map[string][]string) (Params, error) {
	return parseParams(values, DefaultPageSize)
}

func parseParams(values map[string][]string, pageSize int) (Params, error) {
	params := Params{
		Page:     1,
		PageSize: pageSize,
	}

	if q := values["q"]; len(q) > 0 {
		params.Query = q[0]
	}

	if limit := values["limit"]; len(limit) > 0 && limit[0] != "" {
		parsed, err := strconv.Atoi(limit[0])
		if err != nil {
			return params, fmt.Errorf("%w: limit %q is not a number", ErrInvalidParams, limit[0])
		}
		params.PageSize = parsed
	}

	if page := values["page"]; len(page) > 0 && page[0] != "" {
		parsed, err := strconv.Atoi(page[0])
		if err != nil {
			return params, fmt.Errorf("%w: page %q is not a number", ErrInvalidParams, page[0])
		}
		params.Page = parsed
	}

	return params, nil
}
