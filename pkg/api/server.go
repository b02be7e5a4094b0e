package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/rubiojr/zipindex/pkg/catalog"
	"github.com/rubiojr/zipindex/pkg/extract"
	"github.com/rubiojr/zipindex/pkg/log"
	"github.com/rubiojr/zipindex/pkg/realtime"
	"github.com/rubiojr/zipindex/pkg/reveal"
	"github.com/rubiojr/zipindex/pkg/search"
	"github.com/rubiojr/zipindex/pkg/storage"
)

// Options carries the defaults used when a request leaves them out.
type Options struct {
	// ArchiveDir is built when POST /api/build has no "dir".
	ArchiveDir string

	// Destination receives extracted files when a request names none.
	Destination string

	// Reveal shows an extracted file in the file manager. Defaults to reveal.Reveal.
	Reveal func(ctx context.Context, path string) error

	// AllowedOrigins lists browser origins, besides the server's own, that may
	// call state-changing routes and open the event stream.
	AllowedOrigins []string
}

type Server struct {
	store     *storage.Store
	builder   *catalog.Builder
	search    *search.Service
	extractor *extract.Extractor
	hub       *realtime.Hub
	logger    *log.Logger

	mu   sync.RWMutex
	opts Options
}

func NewServer(store *storage.Store, builder *catalog.Builder, searchService *search.Service, extractor *extract.Extractor, hub *realtime.Hub, opts Options) *Server {
	if opts.Reveal == nil {
		opts.Reveal = reveal.Reveal
	}
	return &Server{
		store:     store,
		builder:   builder,
		search:    searchService,
		extractor: extractor,
		hub:       hub,
		opts:      opts,
		logger:    log.ForService("api"),
	}
}

// SetOptions replaces the request defaults, e.g. after a config reload.
func (s *Server) SetOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.Reveal == nil {
		opts.Reveal = s.opts.Reveal
	}
	s.opts = opts
}

func (s *Server) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warnf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// originAllowed accepts requests without an Origin header (non-browser
// clients), same-origin requests and the configured extra origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) originAllowed(r *http.Request) bool {
	return originAllowed(r, s.options().AllowedOrigins)
}

// guarded wraps state-changing handlers: foreign origins get 403 and
// non-JSON bodies 415.
func (s *Server) guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.originAllowed(r) {
			s.writeError(w, http.StatusForbidden, "Origin not allowed", fmt.Sprintf("Requests from %s are not accepted", r.Header.Get("Origin")))
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			s.writeError(w, http.StatusUnsupportedMediaType, "Unsupported content type", "Request body must be application/json")
			return
		}
		next(w, r)
	}
}

// CorsMiddleware answers preflights and grants cross-origin access to the
// origins in allowed only. Same-origin requests need no CORS headers.
func CorsMiddleware(next http.Handler, allowed ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		permitted := origin != "" && slices.Contains(allowed, origin)
		if permitted {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		w.Header().Add("Vary", "Origin")

		if r.Method == "OPTIONS" {
			if permitted {
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusForbidden)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}
