package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/CinitSwift/divide/internal/auth"
	"github.com/CinitSwift/divide/internal/domain"
)

// AuthService is the slice of the auth service the handler needs.
type AuthService interface {
	Login(ctx context.Context, input auth.LoginInput) (*auth.LoginResult, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input auth.UpdateProfileInput) (*domain.User, error)
}

// AuthHandler serves login and profile endpoints.
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, logger: logger.With("component", "api")}
}

// Login handles POST /api/auth/login. It exchanges the provider login
// code for an identity and returns a bearer token plus the user record.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input auth.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Login(r.Context(), input)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// Me handles GET /api/user/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	user, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /api/user/profile. Name and avatar changes
// pushed here propagate into the snapshots of any room the user is in.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireAuth(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var input auth.UpdateProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), userID, input)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, user)
}
