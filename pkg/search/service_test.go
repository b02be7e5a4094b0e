package search

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/rubiojr/zipindex/pkg/archive"
	"github.com/rubiojr/zipindex/pkg/storage"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected Params
		hasError bool
	}{
		{
			name:     "basic query",
			query:    "q=test&page=2&limit=50",
			expected: Params{Query: "test", Page: 2, PageSize: 50},
		},
		{
			name:     "defaults when no params",
			query:    "",
			expected: Params{Page: 1, PageSize: 30},
		},
		{
			name:     "empty values use defaults",
			query:    "q=&page=&limit=",
			expected: Params{Page: 1, PageSize: 30},
		},
		{
			name:     "zero page is parsed and left for validation",
			query:    "page=0",
			expected: Params{Page: 0, PageSize: 30},
		},
		{
			name:     "invalid limit returns error",
			query:    "q=test&limit=invalid",
			hasError: true,
		},
		{
			name:     "invalid page returns error",
			query:    "page=two",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("Failed to parse query string: %v", err)
			}

			params, err := ParseParams(values)

			if tt.hasError {
				if !errors.Is(err, ErrInvalidParams) {
					t.Errorf("Expected ErrInvalidParams, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if params != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, params)
			}
		})
	}
}

func TestServiceParseParamsUsesConfiguredPageSize(t *testing.T) {
	service := NewService(nil, WithPageSize(15))
	params, err := service.ParseParams(url.Values{"q": {"x"}})
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if params.PageSize != 15 {
		t.Errorf("expected configured page size 15, got %d", params.PageSize)
	}
}

func newTestService(t *testing.T, n int, opts ...Option) *Service {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	entries := make([]archive.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, archive.Entry{Name: fmt.Sprintf("dir/file-%03d.txt", i), Size: int64(i)})
	}
	if _, err := store.InsertBatch(entries, "a.zip", "/data/a.zip"); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	return NewService(store, opts...)
}

func TestSearchPagesCoverAllMatches(t *testing.T) {
	service := newTestService(t, 47)

	seen := map[string]bool{}
	var order []string
	for page := 1; ; page++ {
		results, err := service.Search(Params{Query: "file", Page: page, PageSize: 10})
		if err != nil {
			t.Fatalf("Search page %d: %v", page, err)
		}
		if results.TotalCount != 47 || results.TotalPages != 5 {
			t.Fatalf("page %d: unexpected totals %d/%d", page, results.TotalCount, results.TotalPages)
		}
		for _, e := range results.Entries {
			if seen[e.Name] {
				t.Fatalf("entry %s returned twice", e.Name)
			}
			seen[e.Name] = true
			order = append(order, e.Name)
		}
		if !results.HasMore {
			if page != 5 {
				t.Fatalf("HasMore false on page %d", page)
			}
			break
		}
	}

	if len(order) != 47 {
		t.Fatalf("expected 47 entries across pages, got %d", len(order))
	}
	for i, name := range order {
		if want := fmt.Sprintf("dir/file-%03d.txt", i); name != want {
			t.Fatalf("entry %d: got %s, want %s", i, name, want)
		}
	}
}

func TestSearchPastLastPage(t *testing.T) {
	service := newTestService(t, 3)
	results, err := service.Search(Params{Query: "file", Page: 4, PageSize: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results.Entries) != 0 || results.TotalCount != 3 || results.HasMore {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchNoMatches(t *testing.T) {
	service := newTestService(t, 3)
	results, err := service.Search(Params{Query: "FILE", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.TotalCount != 0 || results.TotalPages != 0 || len(results.Entries) != 0 {
		t.Fatalf("expected no matches for differently cased query, got %+v", results)
	}
}

func TestSearchValidation(t *testing.T) {
	service := newTestService(t, 1)
	tests := []Params{
		{Query: "x", Page: 0, PageSize: 10},
		{Query: "x", Page: 1, PageSize: 0},
		{Query: "x", Page: -3, PageSize: -1},
	}
	for _, params := range tests {
		if _, err := service.Search(params); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("Search(%+v): expected ErrInvalidParams, got %v", params, err)
		}
	}
}

func TestSearchClampsPageSize(t *testing.T) {
	service := newTestService(t, 12, WithMaxPageSize(5))
	results, err := service.Search(Params{Page: 1, PageSize: 1000})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.PageSize != 5 || len(results.Entries) != 5 || results.TotalPages != 3 {
		t.Fatalf("expected clamped page size, got %+v", results)
	}
}

func TestNewServiceCapsDefaultPageSize(t *testing.T) {
	service := NewService(nil, WithPageSize(100), WithMaxPageSize(20))
	if service.PageSize() != 20 {
		t.Fatalf("expected default page size capped at 20, got %d", service.PageSize())
	}
}

func ExampleParseParams() {
	values, _ := url.ParseQuery("q=invoice&page=2&limit=10")
	params, err := ParseParams(values)
	if err != nil {
		panic(err)
	}

	fmt.Println("Query:", params.Query)
	fmt.Println("Page:", params.Page)
	fmt.Println("PageSize:", params.PageSize)

	// Output:
	// Query: invoice
	// Page: 2
	// PageSize: 10
}
