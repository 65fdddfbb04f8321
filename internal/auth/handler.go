package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/rbac"
	"github.com/scriptassist/masterapp/internal/shared"
)

// LoginRequest carries credential login input.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Handler wires authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Guard
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers auth routes. Login is rate limited per client
// IP to slow credential stuffing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.With(h.guard.Protect(shared.OpAuthMe)).Get("/me", h.me)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("auth: invalid request body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("auth: %v: %w", err, httpx.ErrValidation))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	signed, token, err := h.service.Issue(r.Context(), user)
	if err != nil {
		h.respondError(w, "issue token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Token: signed, ExpiresAt: token.ExpiresAt})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	envelope := bearerValue(r)
	if envelope != "" {
		if err := h.service.Revoke(r.Context(), envelope); err != nil {
			h.respondError(w, "logout", err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, fmt.Errorf("auth: %w", httpx.ErrUnauthorized))
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

func bearerValue(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
