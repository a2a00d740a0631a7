// Package handler is the thin HTTP layer over the pipeline. Transport
// concerns stop here: pagination bounds are enforced at this boundary, not
// inside the core.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registrar/internal/registry/models"
)

// Pipeline is the accept side of the service.
type Pipeline[T models.Ref] interface {
	Accept(ctx context.Context, req models.BulkRequest[T], op models.Operation) (*models.BulkResponse, error)
	AcceptOne(ctx context.Context, md models.RequestMetadata, entity T, op models.Operation) (*models.BulkResponse, error)
}

// Searcher is the read side, usually the repository.
type Searcher[T models.Ref, C models.Criteria] interface {
	Search(ctx context.Context, crit C) ([]T, int64, error)
}

// Handler serves one domain's endpoints.
type Handler[T models.Ref, C models.Criteria] struct {
	domain      string
	pipeline    Pipeline[T]
	searcher    Searcher[T, C]
	newCriteria func() C
	limitMax    int
	logger      *slog.Logger
}

// New builds a handler. newCriteria returns an empty criteria value for the
// search decoder to fill.
func New[T models.Ref, C models.Criteria](
	domain string,
	pipeline Pipeline[T],
	searcher Searcher[T, C],
	newCriteria func() C,
	limitMax int,
	logger *slog.Logger,
) *Handler[T, C] {
	return &Handler[T, C]{
		domain:      domain,
		pipeline:    pipeline,
		searcher:    searcher,
		newCriteria: newCriteria,
		limitMax:    limitMax,
		logger:      logger,
	}
}

// Register mounts the domain routes on the router.
func (h *Handler[T, C]) Register(r chi.Router) {
	r.Route("/"+h.domain+"/v1", func(r chi.Router) {
		r.Post("/_create", h.handleCreateOne)
		r.Post("/_search", h.handleSearch)
		r.Post("/bulk/_create", h.handleBulk(models.OpCreate))
		r.Post("/bulk/_update", h.handleBulk(models.OpUpdate))
		r.Post("/bulk/_delete", h.handleBulk(models.OpDelete))
	})
}

func (h *Handler[T, C]) handleBulk(op models.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.BulkRequest[T]
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if len(req.Entities) == 0 {
			h.writeError(w, http.StatusBadRequest, "entities must not be empty")
			return
		}

		resp, err := h.pipeline.Accept(r.Context(), req, op)
		if err != nil {
			h.logger.Error("accept failed", "domain", h.domain, "operation", string(op), "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		h.writeJSON(w, http.StatusAccepted, resp)
	}
}

func (h *Handler[T, C]) handleCreateOne(w http.ResponseWriter, r *http.Request) {
	var req models.SingleRequest[T]
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := h.pipeline.AcceptOne(r.Context(), req.Metadata, req.Entity, models.OpCreate)
	if err != nil {
		h.logger.Error("accept failed", "domain", h.domain, "operation", "CREATE", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler[T, C]) handleSearch(w http.ResponseWriter, r *http.Request) {
	var envelope struct {
		Metadata models.RequestMetadata `json:"requestInfo"`
		Criteria json.RawMessage        `json:"criteria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	crit := h.newCriteria()
	if len(envelope.Criteria) > 0 {
		if err := json.Unmarshal(envelope.Criteria, crit); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed criteria")
			return
		}
	}

	core := crit.Core()
	if core.TenantId == "" {
		h.writeError(w, http.StatusBadRequest, "tenantId is mandatory")
		return
	}
	if core.Offset < 0 {
		h.writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}
	if core.Limit > h.limitMax {
		h.writeError(w, http.StatusBadRequest, "limit exceeds maximum")
		return
	}
	if core.Limit <= 0 {
		core.Limit = 100
	}

	entities, total, err := h.searcher.Search(r.Context(), crit)
	if err != nil {
		h.logger.Error("search failed", "domain", h.domain, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entities == nil {
		entities = []T{}
	}
	h.writeJSON(w, http.StatusOK, models.SearchResponse[T]{
		Metadata:   envelope.Metadata,
		Entities:   entities,
		TotalCount: total,
	})
}

func (h *Handler[T, C]) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", "domain", h.domain, "error", err)
	}
}

func (h *Handler[T, C]) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
