// Package search answers paged substring queries against the archive catalog.
//
// # Overview
//
// The Service validates pagination, clamps oversized pages and passes the
// query through to the index store. Every result page carries the exact
// number of matches across the whole catalog together with the derived page
// metadata, so callers can render "page 2 of 7" without extra queries.
//
// # Matching
//
// A query matches an entry when it is a substring of the entry's path inside
// its archive:
//
//   - Matching is case-sensitive ("readme" does not match "README.md")
//   - SQL wildcards such as % and _ are matched literally
//   - An empty query matches every entry
//   - Results come back in the order entries were indexed
//
// # Usage
//
// Searching programmatically:
//
//	service := search.NewService(store, search.WithPageSize(50))
//	results, err := service.Search(search.Params{
//		Query:    "report",
//		Page:     1,
//		PageSize: 50,
//	})
//
// Parsing HTTP parameters:
//
//	params, err := service.ParseParams(r.URL.Query())
//	if err != nil {
//		// malformed page or limit
//		return
//	}
//	results, err := service.Search(params)
//
// # Integration
//
// This package is used by:
//
//   - pkg/api: GET /api/search
//   - cmd/search.go: the search command
package search
