package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scriptassist/masterapp/internal/permissions"
	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/rbac"
	"github.com/scriptassist/masterapp/internal/shared"
)

// GroupedCatalogPort reshapes the catalog for the grouped-permissions view.
type GroupedCatalogPort interface {
	GroupedByModule(ctx context.Context) ([]permissions.ModuleGroup, error)
}

// Handler wires HTTP endpoints for role management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	grouped  GroupedCatalogPort
	guard    rbac.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, grouped GroupedCatalogPort, guard rbac.Guard) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		grouped:  grouped,
		guard:    guard,
		validate: validator.New(),
	}
}

// MountRoutes registers role routes. Role reads are the group default; every
// mutating operation carries its own registry entry.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Default(shared.OpRolesList))

	r.With(h.guard.Protect(shared.OpRolesList)).Get("/", h.list)
	r.With(h.guard.Protect(shared.OpRolesDropdown)).Get("/dropdown", h.dropdown)
	r.With(h.guard.Protect(shared.OpRolesTrashed)).Get("/trashed", h.trashed)
	r.With(h.guard.Protect(shared.OpRolesGrouped)).Get("/grouped-permissions", h.groupedPermissions)
	r.With(h.guard.Protect(shared.OpRolesGet)).Get("/{id}", h.get)
	r.With(h.guard.Protect(shared.OpRolesCreate)).Post("/", h.create)
	r.With(h.guard.Protect(shared.OpRolesUpdate)).Patch("/{id}", h.update)
	r.With(h.guard.Protect(shared.OpRolesDelete)).Delete("/{id}", h.remove)
	r.With(h.guard.Protect(shared.OpRolesDelete)).Delete("/", h.removeBatch)
	r.With(h.guard.Protect(shared.OpRolesPurge)).Delete("/purge", h.purge)
	r.With(h.guard.Protect(shared.OpRolesRestore)).Post("/restore", h.restore)
	r.With(h.guard.Protect(shared.OpRolesStatus)).Post("/status", h.changeStatus)
	r.With(h.guard.Protect(shared.OpRolesAssignPerms)).Put("/{id}/permissions", h.assignPermissions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := listRequestFromQuery(r)
	roles, total, err := h.service.ListPaginated(r.Context(), req)
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: roles, Meta: shared.NewPagination(req.Page, req.PerPage, total)})
}

func (h *Handler) dropdown(w http.ResponseWriter, r *http.Request) {
	req := listRequestFromQuery(r)
	roles, total, err := h.service.Dropdown(r.Context(), req)
	if err != nil {
		h.respondError(w, "dropdown roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: roles, Meta: shared.NewPagination(req.Page, req.PerPage, total)})
}

func (h *Handler) trashed(w http.ResponseWriter, r *http.Request) {
	req := listRequestFromQuery(r)
	roles, total, err := h.service.ListTrashed(r.Context(), req)
	if err != nil {
		h.respondError(w, "trashed roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: roles, Meta: shared.NewPagination(req.Page, req.PerPage, total)})
}

func (h *Handler) groupedPermissions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.grouped.GroupedByModule(r.Context())
	if err != nil {
		h.respondError(w, "grouped permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), []int64{id}); err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeBatch(w http.ResponseWriter, r *http.Request) {
	var req RoleIDsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), req.IDs); err != nil {
		h.respondError(w, "remove roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	var req RoleIDsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.HardDelete(r.Context(), req.IDs); err != nil {
		h.respondError(w, "purge roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	var req RoleIDsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Restore(r.Context(), req.IDs); err != nil {
		h.respondError(w, "restore roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeStatusRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ChangeStatus(r.Context(), req.IDs, RoleStatus(req.Status)); err != nil {
		h.respondError(w, "change role status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AssignPermissionsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.AssignAllPermissions(r.Context(), id, req.PermissionIDs)
	if err != nil {
		h.respondError(w, "assign permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type listResponse struct {
	Data []Role            `json:"data"`
	Meta shared.Pagination `json:"meta"`
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("roles: invalid request body: %w", httpx.ErrValidation)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("roles: %v: %w", err, httpx.ErrValidation)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("roles: invalid id: %w", httpx.ErrValidation)
	}
	return id, nil
}

func listRequestFromQuery(r *http.Request) ListRolesRequest {
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
	return ListRolesRequest{
		Search:  q.Get("search"),
		Status:  q.Get("status"),
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
		Page:    page,
		PerPage: perPage,
	}
}
