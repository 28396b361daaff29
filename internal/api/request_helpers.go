package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/platform/logger"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// Pagination defaults for list endpoints.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxPageNumber keeps (page-1)*limit within an int.
	MaxPageNumber = math.MaxInt / MaxPageLimit
)

// getPathUUID parses the named chi URL parameter as a UUID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// requireAccount returns the authenticated account, writing a 401 response
// when there is none.
func requireAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, ok := shared.AccountIDFromRequest(r)
	if !ok {
		logger.FromContextOrDefault(r.Context(), slog.Default()).
			Warn("account ID not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return uuid.Nil, false
	}
	return accountID, true
}

// handleAccountAndPathUUID extracts the authenticated account and a UUID
// path parameter, writing an error response if either is missing.
func handleAccountAndPathUUID(w http.ResponseWriter, r *http.Request, paramName string) (uuid.UUID, uuid.UUID, bool) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, pathID, true
}

// parsePage reads the page and limit query parameters. Missing values take
// defaults and limit is capped at MaxPageLimit.
func parsePage(r *http.Request) (store.Page, error) {
	page := store.Page{Number: 1, Limit: DefaultPageLimit}
	verr := &domain.ValidationError{Err: domain.ErrValidation}

	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil || n < 1:
			verr.Add("page", "must be a positive integer")
		case n > MaxPageNumber:
			verr.Add("page", fmt.Sprintf("must be at most %d", MaxPageNumber))
		default:
			page.Number = n
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			verr.Add("limit", "must be a positive integer")
		} else {
			page.Limit = min(n, MaxPageLimit)
		}
	}

	if verr.HasErrors() {
		return store.Page{}, verr
	}
	return page, nil
}

// parseTaskFilter reads the status and kind query parameters.
func parseTaskFilter(r *http.Request) (store.TaskFilter, error) {
	var filter store.TaskFilter
	verr := &domain.ValidationError{Err: domain.ErrValidation}

	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		filter.State = domain.TaskState(raw)
		if !filter.State.Valid() {
			verr.Add("status", "must be processing, completed, failed or cancelled")
		}
	}
	if raw := q.Get("kind"); raw != "" {
		filter.Kind = domain.TaskKind(raw)
		if !filter.Kind.Valid() {
			verr.Add("kind", "must be text-to-image or image-to-image")
		}
	}

	if verr.HasErrors() {
		return store.TaskFilter{}, verr
	}
	return filter, nil
}
