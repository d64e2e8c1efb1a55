// Package transport provides HTTP handlers for the DAO verification gate.
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
	"github.com/pendergraft/splitledger/internal/dao/domain"
	splits "github.com/pendergraft/splitledger/internal/splits/domain"
	splitstransport "github.com/pendergraft/splitledger/internal/splits/transport"
	"github.com/pendergraft/splitledger/internal/validation"
)

// legacyLimit caps each kind returned by the legacy listing.
const legacyLimit = 100

// Service defines the DAO service interface for HTTP transport.
type Service interface {
	Membership(ctx context.Context, campaignID, address string) (*domain.Record, error)
	SetVerification(ctx context.Context, campaignID, address string, status domain.Status, actor string) (*domain.Record, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Record, error)
}

// SplitLister lists split requests for the legacy listing.
type SplitLister interface {
	List(ctx context.Context, filter splits.ListFilter, pagination splits.PaginationParams) (*splits.ListResult, error)
}

// Handler handles HTTP requests for DAO verification records.
type Handler struct {
	svc    Service
	splits SplitLister
	logger *slog.Logger
}

// NewHandler creates a new DAO HTTP handler. splits may be nil, in which case
// the legacy listing only serves records.
func NewHandler(svc Service, splits SplitLister, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, splits: splits, logger: logger}
}

// RegisterReadRoutes registers read-only DAO routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{campaign}/{address}", h.handleCheck)
}

// RegisterWriteRoutes registers write DAO routes (authority required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Put("/{campaign}/{address}", h.handleSet)
}

// LegacyHandler serves GET /api/dao.
func (h *Handler) LegacyHandler() http.HandlerFunc {
	return h.handleLegacy
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context(), listFilter(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	data := make([]RecordResponse, len(records))
	for i := range records {
		data[i] = FromDomain(&records[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Membership(r.Context(), chi.URLParam(r, "campaign"), chi.URLParam(r, "address"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(rec))
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	var body SetVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if err := validation.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	rec, err := h.svc.SetVerification(r.Context(),
		chi.URLParam(r, "campaign"),
		chi.URLParam(r, "address"),
		domain.Status(body.Status),
		auth.ActorFromContext(r.Context()),
	)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(rec))
}

func (h *Handler) handleLegacy(w http.ResponseWriter, r *http.Request) {
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "records":
		filter := listFilter(r)
		filter.Limit = legacyLimit
		records, err := h.svc.List(r.Context(), filter)
		if err != nil {
			h.legacyFailure(w, r, err)
			return
		}
		data := make([]RecordResponse, len(records))
		for i := range records {
			data[i] = FromDomain(&records[i])
		}
		writeJSON(w, http.StatusOK, legacyResponse{Success: true, Data: data, Count: len(data)})

	case "splits":
		if h.splits == nil {
			writeJSON(w, http.StatusNotFound, legacyError{Error: "split listing is not available"})
			return
		}
		q := r.URL.Query()
		result, err := h.splits.List(r.Context(), splits.ListFilter{
			Creator:    q.Get("creator"),
			CampaignID: q.Get("campaign"),
			Status:     splits.Status(q.Get("status")),
			Sort:       q.Get("sort"),
			Desc:       q.Get("order") != "asc",
		}, splits.PaginationParams{Limit: legacyLimit})
		if err != nil {
			h.legacyFailure(w, r, err)
			return
		}
		data := make([]splitstransport.SplitResponse, len(result.Requests))
		for i := range result.Requests {
			data[i] = splitstransport.FromDomain(&result.Requests[i])
		}
		writeJSON(w, http.StatusOK, legacyResponse{Success: true, Data: data, Count: len(data)})

	default:
		writeJSON(w, http.StatusBadRequest, legacyError{Error: "kind must be splits or records"})
	}
}

// legacyFailure logs err and writes the legacy error envelope. Every failure
// is a 500 on this route.
func (h *Handler) legacyFailure(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("legacy dao listing failed",
		"request_id", middleware.GetReqID(r.Context()),
		"kind", r.URL.Query().Get("kind"),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, legacyError{Error: "Failed to load DAO data"})
}

func listFilter(r *http.Request) domain.ListFilter {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	return domain.ListFilter{
		CampaignID: q.Get("campaign"),
		Address:    q.Get("address"),
		Status:     domain.Status(q.Get("status")),
		Sort:       q.Get("sort"),
		Desc:       q.Get("order") != "asc",
		Limit:      limit,
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("dao request failed",
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
