package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/build", s.guarded(s.HandleBuild))
	mux.HandleFunc("GET /api/build/events", s.HandleBuildEvents)
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/entries/{id}", s.HandleEntry)
	mux.HandleFunc("POST /api/extract", s.guarded(s.HandleExtract))
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
