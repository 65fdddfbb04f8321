package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/shared"
)

type stubValidator struct {
	principal    *shared.Principal
	err          error
	lastToken    string
	lastRequired []string
	calls        int
}

func (s *stubValidator) Validate(_ context.Context, token string, required []string) (*shared.Principal, error) {
	s.calls++
	s.lastToken = token
	s.lastRequired = required
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

func okHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		require.NotNil(t, principal, "principal must be attached to the request context")
		w.Header().Set("X-User", fmt.Sprintf("%d", principal.UserID))
		w.WriteHeader(http.StatusOK)
	}
}

func problemCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestProtectPassesRegistryPermissions(t *testing.T) {
	validator := &stubValidator{principal: &shared.Principal{UserID: 7}}
	guard := Guard{
		Tokens:   validator,
		Registry: shared.AuthzRegistry{"roles.list": {shared.PermRoleRead}},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	guard.Protect("roles.list")(okHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-User"))
	assert.Equal(t, "abc", validator.lastToken)
	assert.Equal(t, []string{shared.PermRoleRead}, validator.lastRequired)
}

func TestProtectMissingAuthorizationHeader(t *testing.T) {
	validator := &stubValidator{}
	guard := Guard{Tokens: validator, Registry: shared.AuthzRegistry{}}

	rec := httptest.NewRecorder()
	guard.Protect("roles.list")(okHandler(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", problemCode(t, rec))
	assert.Zero(t, validator.calls, "validator must not run without a token")
}

func TestProtectMalformedAuthorizationHeader(t *testing.T) {
	validator := &stubValidator{}
	guard := Guard{Tokens: validator, Registry: shared.AuthzRegistry{}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	guard.Protect("roles.list")(okHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", problemCode(t, rec))
	assert.Zero(t, validator.calls)
}

func TestProtectDeniedPermission(t *testing.T) {
	validator := &stubValidator{err: fmt.Errorf("auth: %w", httpx.ErrPermissionDenied)}
	guard := Guard{
		Tokens:   validator,
		Registry: shared.AuthzRegistry{"roles.create": {shared.PermRoleCreate}},
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	guard.Protect("roles.create")(okHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", problemCode(t, rec))
}

func TestProtectRegistryEntryWinsOverGroupDefault(t *testing.T) {
	validator := &stubValidator{principal: &shared.Principal{UserID: 1}}
	guard := Guard{
		Tokens: validator,
		Registry: shared.AuthzRegistry{
			"roles.list":    {shared.PermRoleRead},
			"roles.restore": {shared.PermRoleRestore},
		},
	}

	r := chi.NewRouter()
	r.Use(guard.Default("roles.list"))
	r.With(guard.Protect("roles.restore")).Post("/restore", okHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/restore", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{shared.PermRoleRestore}, validator.lastRequired)
}

func TestProtectFallsBackToGroupDefault(t *testing.T) {
	validator := &stubValidator{principal: &shared.Principal{UserID: 1}}
	guard := Guard{
		Tokens:   validator,
		Registry: shared.AuthzRegistry{"roles.list": {shared.PermRoleRead}},
	}

	r := chi.NewRouter()
	r.Use(guard.Default("roles.list"))
	// operation without its own registry entry
	r.With(guard.Protect("roles.export")).Get("/export", okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/export", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{shared.PermRoleRead}, validator.lastRequired)
}

type stubObserver struct {
	results []string
}

func (s *stubObserver) ObserveTokenCheck(result string) {
	s.results = append(s.results, result)
}

func TestProtectCountsValidationOutcomes(t *testing.T) {
	observer := &stubObserver{}
	validator := &stubValidator{principal: &shared.Principal{UserID: 7}}
	guard := Guard{
		Tokens:   validator,
		Registry: shared.AuthzRegistry{"roles.list": {shared.PermRoleRead}},
		Observer: observer,
	}

	handler := guard.Protect("roles.list")(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	validator.err = fmt.Errorf("auth: %w", httpx.ErrTokenExpired)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	validator.err = fmt.Errorf("auth: %w", httpx.ErrPermissionDenied)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"ok", "missing_token", "token_expired", "permission_denied"}, observer.results)
}

func TestProtectNilRegistryEntryOnlyRequiresValidToken(t *testing.T) {
	validator := &stubValidator{principal: &shared.Principal{UserID: 1}}
	guard := Guard{
		Tokens:   validator,
		Registry: shared.AuthzRegistry{"auth.me": nil},
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	guard.Protect("auth.me")(okHandler(t)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, validator.lastRequired)
}
