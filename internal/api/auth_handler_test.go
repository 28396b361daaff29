package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/mocks"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthConfig = config.AuthConfig{TokenLifetimeMinutes: 60}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		payload     map[string]interface{}
		registerErr error
		wantStatus  int
		wantCode    string
	}{
		{
			name:       "valid registration",
			payload:    map[string]interface{}{"email": "ann@example.com", "password": "correct-horse-battery"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid email",
			payload:    map[string]interface{}{"email": "not-an-email", "password": "correct-horse-battery"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "password too short",
			payload:    map[string]interface{}{"email": "ann@example.com", "password": "short"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "missing email",
			payload:    map[string]interface{}{"password": "correct-horse-battery"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:        "email taken",
			payload:     map[string]interface{}{"email": "ann@example.com", "password": "correct-horse-battery"},
			registerErr: store.ErrEmailExists,
			wantStatus:  http.StatusConflict,
			wantCode:    CodeEmailExists,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			accountID := uuid.New()
			accounts := &fakeAccounts{
				RegisterFn: func(ctx context.Context, email, password string) (*domain.Account, error) {
					if tc.registerErr != nil {
						return nil, tc.registerErr
					}
					return &domain.Account{ID: accountID, Email: email, Credits: 100}, nil
				},
			}
			h := NewAuthHandler(accounts, mocks.NewMockJWTServiceForAccount(accountID), testAuthConfig).
				WithTimeFunc(fixedClock)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.payload))
			w := httptest.NewRecorder()
			h.Register(w, req)

			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, decodeError(t, w).Code)
				return
			}

			var resp AuthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, accountID, resp.AccountID)
			assert.Equal(t, "test-token", resp.AccessToken)
			assert.Equal(t, "2026-03-01T13:00:00Z", resp.ExpiresAt)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()

	tests := []struct {
		name       string
		body       string
		loginErr   error
		tokenErr   error
		wantStatus int
		wantCode   string
	}{
		{"valid", `{"email":"ann@example.com","password":"correct-horse-battery"}`, nil, nil, http.StatusOK, ""},
		{"wrong password", `{"email":"ann@example.com","password":"nope"}`, service.ErrInvalidCredentials, nil,
			http.StatusUnauthorized, CodeUnauthorized},
		{"malformed body", `{"email":`, nil, nil, http.StatusBadRequest, CodeValidation},
		{"token failure", `{"email":"ann@example.com","password":"correct-horse-battery"}`, nil,
			errors.New("signing key missing"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			accounts := &fakeAccounts{
				LoginFn: func(ctx context.Context, email, password string) (*domain.Account, error) {
					if tc.loginErr != nil {
						return nil, tc.loginErr
					}
					return &domain.Account{ID: accountID, Email: email}, nil
				},
			}
			jwtService := &mocks.MockJWTService{Token: "login-token", Err: tc.tokenErr}
			h := NewAuthHandler(accounts, jwtService, testAuthConfig)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.Login(w, req)

			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantCode != "" {
				resp := decodeError(t, w)
				assert.Equal(t, tc.wantCode, resp.Code)
				assert.NotContains(t, resp.Error, "signing key")
				return
			}
			var resp AuthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "login-token", resp.AccessToken)
		})
	}
}

func TestGetAccount(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()
	accounts := &fakeAccounts{
		GetAccountFn: func(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
			if id != accountID {
				return nil, store.ErrAccountNotFound
			}
			return &domain.Account{ID: id, Email: "ann@example.com", Credits: 80}, nil
		},
	}
	h := NewAuthHandler(accounts, &mocks.MockJWTService{}, testAuthConfig)

	t.Run("returns balance", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		h.GetAccount(w, asAccount(httptest.NewRequest(http.MethodGet, "/api/account", nil), accountID))

		require.Equal(t, http.StatusOK, w.Code)
		var resp AccountResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, AccountResponse{ID: accountID, Email: "ann@example.com", Credits: 80}, resp)
	})

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		h.GetAccount(w, asAccount(httptest.NewRequest(http.MethodGet, "/api/account", nil), uuid.New()))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		h.GetAccount(w, httptest.NewRequest(http.MethodGet, "/api/account", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
