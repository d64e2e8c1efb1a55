// Package transport provides HTTP handlers for the splits domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/splitledger/internal/apperr"
	"github.com/pendergraft/splitledger/internal/auth"
	"github.com/pendergraft/splitledger/internal/splits/domain"
	"github.com/pendergraft/splitledger/internal/validation"
)

// Service defines the split service interface for HTTP transport.
type Service interface {
	Create(ctx context.Context, req domain.CreateRequest) (*domain.SplitRequest, error)
	Get(ctx context.Context, id string) (*domain.SplitRequest, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
	MarkLinePaid(ctx context.Context, id, recipient string, paidAt time.Time) (*domain.SplitRequest, error)
	Reject(ctx context.Context, id, actor string) (*domain.SplitRequest, error)
	Progress(ctx context.Context, id string) (*domain.ProgressView, error)
}

// Handler handles HTTP requests for split requests.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewHandler creates a new splits HTTP handler.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterReadRoutes registers read-only split routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/progress", h.handleProgress)
}

// RegisterWriteRoutes registers write split routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Post("/{id}/lines/{recipient}/paid", h.handleMarkPaid)
	r.Post("/{id}/reject", h.handleReject)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		Creator:    q.Get("creator"),
		CampaignID: q.Get("campaign"),
		Status:     domain.Status(q.Get("status")),
		Sort:       q.Get("sort"),
		Desc:       q.Get("order") != "asc",
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	data := make([]SplitResponse, len(result.Requests))
	for i := range result.Requests {
		data[i] = FromDomain(&result.Requests[i])
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
	req, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(req))
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressFromDomain(view))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if body.Creator == "" {
		body.Creator = auth.ActorFromContext(r.Context())
	}
	if body.Creator == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "creator is required")
		return
	}
	if err := validation.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	created, err := h.svc.Create(r.Context(), body.ToDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromDomain(created))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var body MarkPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	var paidAt time.Time
	if body.PaidAt != nil {
		paidAt = *body.PaidAt
	}

	req, err := h.svc.MarkLinePaid(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "recipient"), paidAt)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(req))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())

	req, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(req))
}

// writeDomainError maps an apperr kind to a response. Server-side failures
// are logged and their details withheld from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("split request failed",
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
