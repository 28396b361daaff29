package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
)

const codeUnauthorized = "UNAUTHORIZED"

// AuthMiddleware authenticates requests carrying a bearer token.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate rejects requests without a valid bearer token and stores the
// token's account ID in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, codeUnauthorized, "Authorization header required")
			return
		}
		accountID, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.WithAccountID(r.Context(), accountID)))
	})
}

// OptionalAuthenticate lets anonymous requests through. A request that does
// present a token must present a valid one.
func (m *AuthMiddleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		accountID, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.WithAccountID(r.Context(), accountID)))
	})
}

// authenticate validates the Authorization header, writing a 401 response
// when it is unusable.
func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, codeUnauthorized, "Invalid authorization format")
		return uuid.Nil, false
	}

	claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, codeUnauthorized, "Token expired", err)
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, codeUnauthorized, "Invalid token", err,
				shared.WithElevatedLogLevel())
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Authentication error", err)
		}
		return uuid.Nil, false
	}
	if claims == nil || claims.AccountID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, codeUnauthorized, "Invalid token")
		return uuid.Nil, false
	}

	logger.FromContextOrDefault(r.Context(), slog.Default()).
		Debug("request authenticated", slog.String("account_id", claims.AccountID.String()))
	return claims.AccountID, true
}
