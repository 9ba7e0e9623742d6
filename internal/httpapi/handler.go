// Package httpapi exposes the query engine over REST. Every list-style
// endpoint takes the same query grammar: filter params, sort, fields,
// search, populate and paging controls.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opsgrid/backoffice/internal/auth"
	"github.com/opsgrid/backoffice/internal/domain"
	"github.com/opsgrid/backoffice/internal/export"
	"github.com/opsgrid/backoffice/internal/query"
)

type Handler struct {
	engine   *query.Engine
	catalog  *domain.Catalog
	exporter *export.Service
	logger   zerolog.Logger
}

func NewHandler(engine *query.Engine, catalog *domain.Catalog, exporter *export.Service, logger zerolog.Logger) *Handler {
	return &Handler{engine: engine, catalog: catalog, exporter: exporter, logger: logger}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entities", h.handleCatalog)
	mux.HandleFunc("GET /api/{entity}", h.handleList)
	mux.HandleFunc("GET /api/{entity}/report", h.handleReport)
	mux.HandleFunc("GET /api/{entity}/export", h.handleExport)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	req, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Execute(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReport serves the grouped form of a listing: one row per bucket
// with counts and an optional summed metric. groupBy is required here,
// unlike on the plain list route where it is rejected-if-invalid only.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.buildRequest(w, r)
	if !ok {
		return
	}
	if v := r.URL.Query().Get("groupBy"); v == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("groupBy parameter is required for reports"))
		return
	}
	// Reports aggregate the current state; serving stale buckets is worse
	// than the extra execution.
	req.BypassCache = true

	result, err := h.engine.Execute(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.buildRequest(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatXLSX
	}
	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if format == export.FormatCSV {
		contentType = "text/csv"
	} else if format != export.FormatXLSX {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported export format "+strconv.Quote(format)))
		return
	}

	// Build the whole file before touching the response so compile and
	// execution errors still reach the caller with the right status.
	var buf bytes.Buffer
	if _, err := h.exporter.Export(r.Context(), req, format, &buf); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+h.exporter.Filename(req.Entity, format)+`"`)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error().Err(err).Str("entity", req.Entity).Msg("export write interrupted")
	}
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names()
	entities := make([]map[string]any, 0, len(names))
	for _, name := range names {
		cfg, err := h.catalog.Lookup(name)
		if err != nil {
			continue
		}
		entities = append(entities, map[string]any{
			"name":         cfg.Name,
			"fields":       cfg.AllowedFields,
			"sortFields":   cfg.AllowedSortFields,
			"searchFields": cfg.SearchFields,
			"expansions":   expansionPaths(cfg.Expansions),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

// buildRequest resolves the entity config and authenticated scope. It
// writes the error response itself when the request cannot be built.
func (h *Handler) buildRequest(w http.ResponseWriter, r *http.Request) (query.Request, bool) {
	entity := r.PathValue("entity")
	cfg, err := h.catalog.Lookup(entity)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return query.Request{}, false
	}

	sec, ok := auth.SecurityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody("missing tenant scope"))
		return query.Request{}, false
	}

	return query.Request{
		Entity:   entity,
		Params:   r.URL.Query(),
		Security: sec,
		Config:   cfg,
	}, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *query.StorageError
	switch {
	case query.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case query.IsTimeout(err):
		writeJSON(w, http.StatusGatewayTimeout, errorBody("query exceeded execution deadline"))
	case errors.As(err, &storageErr):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("storage failure")
		writeJSON(w, http.StatusBadGateway, errorBody("upstream storage unavailable"))
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled query error")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func expansionPaths(m query.ExpansionMap) []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	return paths
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": strings.TrimSpace(msg)}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
