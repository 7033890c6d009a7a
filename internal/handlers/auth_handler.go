package handlers

import (
	"net/http"
	"time"

	"github.com/sensus/peek/internal/middleware"
	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/services"
)

// AdminKeyHeader carries the shared admin key on /auth/create_user.
const AdminKeyHeader = "X-Admin-Key"

type AuthHandler struct {
	auth    *services.AuthService
	timeout time.Duration
}

func NewAuthHandler(auth *services.AuthService, timeout time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, timeout: timeout}
}

// CreateUser sets a user's password. Requires the admin key.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}
	if req.UserID != "" && !validUserID(req.UserID) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Invalid user id"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	tok, err := h.auth.CreateUser(ctx, r.Header.Get(AdminKeyHeader), req)
	if err != nil {
		writeError(w, r, "CreateUser", req.UserID, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(tok))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	tok, err := h.auth.Login(ctx, req)
	if err != nil {
		writeError(w, r, "Login", req.UserID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(tok))
}

// Refresh rotates the caller's token. Runs behind BearerAuth.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.CodeUnauthorized, "Unauthorized"))
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	tok, err := h.auth.Refresh(ctx, userID)
	if err != nil {
		writeError(w, r, "Refresh", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(tok))
}
