package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/shared"
)

// URLParamUUID parses a chi route parameter as a UUID.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, shared.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter, returning fallback when absent.
func QueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, shared.NewValidationError(name, "must be true or false")
	}
	return v, nil
}

// QueryPeriod parses an optional YYYY-MM query parameter.
func QueryPeriod(r *http.Request, name string) (*shared.Period, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	p, err := shared.ParsePeriod(raw)
	if err != nil {
		return nil, shared.NewValidationError(name, "must use YYYY-MM format")
	}
	if err := p.Validate(); err != nil {
		return nil, shared.NewValidationError(name, "year must be between 2000 and 2100")
	}
	return &p, nil
}

// QueryDate parses an optional YYYY-MM-DD query parameter as UTC midnight.
func QueryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, shared.NewValidationError(name, "must use YYYY-MM-DD format")
	}
	return &t, nil
}

// CurrentPrincipal returns the principal attached by the authentication middleware.
func CurrentPrincipal(r *http.Request) (shared.Principal, error) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		return shared.Principal{}, shared.ErrUnauthorized
	}
	return *p, nil
}
