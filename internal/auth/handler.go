package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/splitledger/internal/validation"
)

// LoginRequest is the HTTP request body for wallet sign-in.
type LoginRequest struct {
	Address   string `json:"address" validate:"required,eth_addr"`
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// Handler serves the wallet sign-in endpoints.
type Handler struct {
	login  *WalletLogin
	logger *slog.Logger
}

// NewHandler creates a new sign-in handler.
func NewHandler(login *WalletLogin, logger *slog.Logger) *Handler {
	return &Handler{login: login, logger: logger}
}

// RegisterRoutes registers sign-in routes (no auth required).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/nonce", h.handleNonce)
	r.Post("/login", h.handleLogin)
}

func (h *Handler) handleNonce(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "address query parameter is required")
		return
	}

	message, expires, err := h.login.Challenge(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   message,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	token, expires, err := h.login.Login(req.Address, req.Message, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrSignerMismatch), errors.Is(err, ErrUnknownNonce):
			h.logger.Warn("wallet sign-in rejected", "address", req.Address, "error", err)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
		default:
			h.logger.Error("wallet sign-in failed", "address", req.Address, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
