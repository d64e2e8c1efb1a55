// Package transport provides HTTP handlers for recurring plans.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/splitledger/internal/apperr"
	"github.com/pendergraft/splitledger/internal/auth"
	"github.com/pendergraft/splitledger/internal/recurring/domain"
	"github.com/pendergraft/splitledger/internal/validation"
)

// Service defines the plan service interface for HTTP transport.
type Service interface {
	Create(ctx context.Context, req domain.CreatePlanRequest) (*domain.Plan, error)
	Get(ctx context.Context, id string) (*domain.Plan, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
	Cancel(ctx context.Context, id, actor string) (*domain.Plan, error)
}

// Handler handles HTTP requests for recurring plans.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewHandler creates a new plans HTTP handler.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterReadRoutes registers read-only plan routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
}

// RegisterWriteRoutes registers write plan routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Post("/{id}/cancel", h.handleCancel)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	var active *bool
	if v := q.Get("active"); v != "" {
		b := v == "true"
		active = &b
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		CampaignID: q.Get("campaign"),
		Payer:      q.Get("payer"),
		Active:     active,
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	data := make([]PlanResponse, len(result.Plans))
	for i := range result.Plans {
		data[i] = FromDomain(&result.Plans[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": map[string]any{
			"limit":      limit,
			"hasMore":    result.HasMore,
			"nextCursor": result.NextCursor,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(plan))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if body.Payer == "" {
		body.Payer = auth.ActorFromContext(r.Context())
	}
	if body.Payer == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "payer is required")
		return
	}
	if err := validation.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	plan, err := h.svc.Create(r.Context(), body.ToDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromDomain(plan))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(plan))
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("plan request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		message = "The ledger is temporarily unavailable"
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
	}
	writeError(w, status, apperr.Code(err), message)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
