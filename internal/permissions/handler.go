package permissions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/rbac"
	"github.com/scriptassist/masterapp/internal/shared"
)

// Handler wires HTTP endpoints for the permission catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    rbac.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Protect(shared.OpPermissionsList)).Get("/", h.list)
	r.With(h.guard.Protect(shared.OpPermissionsCatalog)).Get("/catalog", h.catalog)
	r.With(h.guard.Protect(shared.OpPermissionsGet)).Get("/{id}", h.get)
	r.With(h.guard.Protect(shared.OpPermissionsCreate)).Post("/", h.create)
	r.With(h.guard.Protect(shared.OpPermissionsUpdate)).Patch("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 50 {
		perPage = 50
	}
	req := ListPermissionsRequest{
		Search:  q.Get("search"),
		Module:  q.Get("module"),
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
		Page:    page,
		PerPage: perPage,
	}
	perms, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: perms, Meta: shared.NewPagination(req.Page, req.PerPage, total)})
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.Catalog(r.Context())
	if err != nil {
		h.respondError(w, "catalog", err)
		return
	}
	httpx.JSON(w, http.StatusOK, apps)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("permissions: invalid id: %w", httpx.ErrValidation))
		return
	}
	perm, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("permissions: invalid id: %w", httpx.ErrValidation))
		return
	}
	var req UpdatePermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondError(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

type listResponse struct {
	Data []Permission      `json:"data"`
	Meta shared.Pagination `json:"meta"`
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("permissions: invalid request body: %w", httpx.ErrValidation)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("permissions: %v: %w", err, httpx.ErrValidation)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
