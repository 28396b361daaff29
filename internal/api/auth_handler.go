package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
)

// AccountManager is the account functionality the HTTP layer needs.
type AccountManager interface {
	Register(ctx context.Context, email, password string) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
}

// AuthHandler serves registration, login and the account endpoint.
type AuthHandler struct {
	accounts      AccountManager
	jwtService    auth.JWTService
	tokenLifetime time.Duration
	timeFunc      func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts AccountManager, jwtService auth.JWTService, authConfig config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		jwtService:    jwtService,
		tokenLifetime: time.Duration(authConfig.TokenLifetimeMinutes) * time.Minute,
		timeFunc:      time.Now,
	}
}

// WithTimeFunc replaces the clock used for token expiry times.
func (h *AuthHandler) WithTimeFunc(timeFunc func() time.Time) *AuthHandler {
	h.timeFunc = timeFunc
	return h
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, domain.NewValidationError("body", "must be a JSON object with email and password", nil),
			"Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	account, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, account.ID)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, domain.NewValidationError("body", "must be a JSON object with email and password", nil),
			"Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	account, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.respondWithToken(w, r, http.StatusOK, account.ID)
}

// GetAccount handles GET /api/account.
func (h *AuthHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AccountResponse{
		ID:      account.ID,
		Email:   account.Email,
		Credits: account.Credits,
	})
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, accountID uuid.UUID) {
	token, err := h.jwtService.GenerateToken(r.Context(), accountID)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), slog.Default()).Error("failed to generate token",
			slog.String("account_id", accountID.String()))
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	shared.RespondWithJSON(w, r, status, AuthResponse{
		AccountID:   accountID,
		AccessToken: token,
		ExpiresAt:   h.timeFunc().Add(h.tokenLifetime).UTC().Format(time.RFC3339),
	})
}
