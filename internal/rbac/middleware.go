package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/shared"
)

// TokenValidator is the single choke point every protected operation passes
// through. Implemented by the auth token service.
type TokenValidator interface {
	Validate(ctx context.Context, token string, requiredPermissions []string) (*shared.Principal, error)
}

// TokenCheckObserver records token validation outcomes. Implemented by
// observability.Metrics.
type TokenCheckObserver interface {
	ObserveTokenCheck(result string)
}

// Guard enforces the operation → required-permission registry on HTTP routes.
// It extracts the bearer token, resolves the principal and attaches it to the
// request context. Services never self-enforce authorization.
type Guard struct {
	Tokens   TokenValidator
	Registry shared.AuthzRegistry
	Logger   *slog.Logger
	Observer TokenCheckObserver
}

// Protect guards an operation. The registry entry for operationID wins over
// any group-level default; with neither, the operation only requires a valid
// token.
func (g Guard) Protect(operationID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			required, ok := g.Registry[operationID]
			if !ok {
				required = shared.DefaultPermissionsFromContext(r.Context())
			}

			token, err := bearerToken(r)
			if err != nil {
				g.observe(err)
				httpx.RespondError(w, err)
				return
			}

			principal, err := g.Tokens.Validate(r.Context(), token, required)
			g.observe(err)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Warn("token validation failed",
						slog.String("operation", operationID),
						slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// Default declares a group-level permission requirement. It does not enforce
// anything itself; a nested Protect picks it up unless the operation has its
// own registry entry.
func (g Guard) Default(operationID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithDefaultPermissions(r.Context(), g.Registry[operationID])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g Guard) observe(err error) {
	if g.Observer == nil {
		return
	}
	g.Observer.ObserveTokenCheck(checkResult(err))
}

// checkResult maps a validation outcome to the stable label set exposed on
// the token validation counter. Labels match the problem codes clients see.
func checkResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, httpx.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, httpx.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, httpx.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, httpx.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, httpx.ErrPermissionDenied):
		return "permission_denied"
	default:
		return "error"
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", httpx.ErrMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", httpx.ErrInvalidToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", httpx.ErrMissingToken
	}
	return token, nil
}
