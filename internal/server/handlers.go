package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openstats-labs/statcube/pkg/core"
)

// defaultPageSize applies when a preview request carries no page_size.
const defaultPageSize = 50

// Router builds the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/revisions/{revisionID}", func(r chi.Router) {
		r.Post("/cube", s.handleBuild)
		r.Delete("/cube", s.handleDeleteCube)
		r.Get("/preview", s.handlePreview)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBuild assembles the revision's cube. The build outcome is always a
// BuildResult; its embedded error payload decides the response status.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	revisionID := chi.URLParam(r, "revisionID")

	result := s.builder.Build(r.Context(), revisionID)

	status := http.StatusOK
	if result.Errors != nil {
		status = result.Errors.Status
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleDeleteCube(w http.ResponseWriter, r *http.Request) {
	revisionID := chi.URLParam(r, "revisionID")

	if err := s.builder.Teardown(r.Context(), revisionID); err != nil {
		s.logger.Error("cube teardown failed", "revision", revisionID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, &core.ErrorResponse{
			Status: http.StatusInternalServerError,
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	revisionID := chi.URLParam(r, "revisionID")
	q := r.URL.Query()

	pageNumber := intParam(q.Get("page_number"), 1)
	pageSize := intParam(q.Get("page_size"), defaultPageSize)
	raw := q.Get("raw") == "true"

	page, errResp := s.preview.GetPreview(r.Context(), revisionID,
		pageNumber, pageSize, s.requestLocale(r), raw)
	if errResp != nil {
		s.writeJSON(w, errResp.Status, errResp)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// requestLocale resolves the preview locale from the locale query parameter,
// then the Accept-Language header, defaulting to English. An explicit locale
// that matches nothing passes through unresolved so the preview service can
// report it.
func (s *Server) requestLocale(r *http.Request) core.Locale {
	if q := r.URL.Query().Get("locale"); q != "" {
		if locale, ok := s.catalog.MatchLocale(q); ok {
			return locale
		}
		return core.Locale(q)
	}

	if al := r.Header.Get("Accept-Language"); al != "" {
		first := strings.TrimSpace(strings.SplitN(al, ",", 2)[0])
		first = strings.SplitN(first, ";", 2)[0]
		if locale, ok := s.catalog.MatchLocale(first); ok {
			return locale
		}
	}
	return core.LocaleEnglish
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// intParam parses a positive-int query parameter; malformed values become 0
// so range validation reports them.
func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
