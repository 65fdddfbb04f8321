package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scriptassist/masterapp/internal/permissions"
	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

var sortColumns = map[string]string{
	"id":        "r.id",
	"name":      "r.name",
	"status":    "r.status",
	"roleType":  "r.role_type",
	"createdAt": "r.created_at",
}

// CatalogPort resolves permission ids against the catalog.
type CatalogPort interface {
	ResolveIDs(ctx context.Context, ids []int64) ([]permissions.Permission, error)
}

// CachePort invalidates cached effective permission sets after mutations.
type CachePort interface {
	Invalidate(ctx context.Context) error
}

// Service orchestrates role mutations and listings.
type Service struct {
	repo    Repository
	catalog CatalogPort
	cache   CachePort
	logger  *slog.Logger
}

// NewService constructs a role service.
func NewService(repo Repository, catalog CatalogPort, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, cache: cache, logger: logger}
}

// Create validates the permission set against the catalog, rejects duplicate
// names, and persists the role with its associations in one transaction.
// Roles created through this path are never primary.
func (s *Service) Create(ctx context.Context, req CreateRoleRequest) (Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: name required: %w", httpx.ErrValidation)
	}
	permIDs, err := s.resolvePermissionSet(ctx, req.PermissionIDs)
	if err != nil {
		return Role{}, err
	}

	role := Role{
		Name:        name,
		Slug:        slugify(name),
		Description: strings.TrimSpace(req.Description),
		Status:      StatusActive,
		RoleType:    "other",
		IsPrimary:   false,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.FindByName(ctx, name); err == nil {
			return fmt.Errorf("roles: name %q already exists: %w", name, httpx.ErrConflict)
		} else if !isNotFound(err) {
			return err
		}
		id, err := tx.Insert(ctx, role)
		if err != nil {
			return err
		}
		role.ID = id
		return tx.ReplacePermissions(ctx, id, permIDs)
	})
	if err != nil {
		return Role{}, err
	}
	role.PermissionCount = len(permIDs)
	// No invalidation: a brand-new role has no users holding it yet.
	return role, nil
}

// Update merges name/description changes and, when permission ids are
// supplied, replaces the role's permission set wholesale.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRoleRequest) (Role, error) {
	var permIDs []int64
	if req.PermissionIDs != nil {
		resolved, err := s.resolvePermissionSet(ctx, req.PermissionIDs)
		if err != nil {
			return Role{}, err
		}
		permIDs = resolved
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetMany(ctx, []int64{id}, false)
		if err != nil {
			return err
		}
		if len(existing) != 1 {
			return fmt.Errorf("roles: id %d: %w", id, httpx.ErrNotFound)
		}
		role := existing[0]
		if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
			role.Name = strings.TrimSpace(*req.Name)
			role.Slug = slugify(role.Name)
		}
		if req.Description != nil {
			role.Description = strings.TrimSpace(*req.Description)
		}
		if err := tx.Update(ctx, role); err != nil {
			return err
		}
		if permIDs != nil {
			return tx.ReplacePermissions(ctx, id, permIDs)
		}
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	s.invalidateCache(ctx)
	return s.repo.Get(ctx, id)
}

// Get fetches a role with its permissions.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.Get(ctx, id)
}

// ListPaginated returns a page of non-primary, non-deleted roles with their
// derived permission counts.
func (s *Service) ListPaginated(ctx context.Context, req ListRolesRequest) ([]Role, int, error) {
	req.Trashed = false
	return s.list(ctx, req)
}

// Dropdown returns active non-primary roles for selection lists.
func (s *Service) Dropdown(ctx context.Context, req ListRolesRequest) ([]Role, int, error) {
	req.Trashed = false
	req.ActiveOnly = true
	return s.list(ctx, req)
}

// ListTrashed returns soft-deleted roles.
func (s *Service) ListTrashed(ctx context.Context, req ListRolesRequest) ([]Role, int, error) {
	req.Trashed = true
	return s.list(ctx, req)
}

// Remove soft-deletes a batch of roles. The whole batch fails when any
// target is missing, primary, or still assigned to users.
func (s *Service) Remove(ctx context.Context, ids []int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		targets, err := tx.GetMany(ctx, ids, false)
		if err != nil {
			return err
		}
		if len(targets) != len(dedupe(ids)) {
			return fmt.Errorf("roles: %w", httpx.ErrNotFound)
		}
		for _, role := range targets {
			if role.IsPrimary {
				return fmt.Errorf("roles: cannot delete primary role %q: %w", role.Name, httpx.ErrConflict)
			}
		}
		assigned, err := tx.AssignedUserCount(ctx, ids)
		if err != nil {
			return err
		}
		if assigned > 0 {
			return fmt.Errorf("roles: role in use: %w", httpx.ErrConflict)
		}
		return tx.SoftDelete(ctx, ids)
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// HardDelete permanently removes a batch of roles. Primary roles and roles
// still assigned to users are protected the same way as Remove.
func (s *Service) HardDelete(ctx context.Context, ids []int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		targets, err := tx.GetMany(ctx, ids, true)
		if err != nil {
			return err
		}
		if len(targets) != len(dedupe(ids)) {
			return fmt.Errorf("roles: %w", httpx.ErrNotFound)
		}
		for _, role := range targets {
			if role.IsPrimary {
				return fmt.Errorf("roles: cannot delete primary role %q: %w", role.Name, httpx.ErrConflict)
			}
		}
		assigned, err := tx.AssignedUserCount(ctx, ids)
		if err != nil {
			return err
		}
		if assigned > 0 {
			return fmt.Errorf("roles: role in use: %w", httpx.ErrConflict)
		}
		return tx.HardDelete(ctx, ids)
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// Restore clears the soft-delete marker on a batch of roles.
func (s *Service) Restore(ctx context.Context, ids []int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		targets, err := tx.GetMany(ctx, ids, true)
		if err != nil {
			return err
		}
		if len(targets) != len(dedupe(ids)) {
			return fmt.Errorf("roles: %w", httpx.ErrNotFound)
		}
		return tx.Restore(ctx, ids)
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// AssignAllPermissions replaces a role's permission set wholesale, with the
// same catalog validation as Create.
func (s *Service) AssignAllPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (Role, error) {
	permIDs, err := s.resolvePermissionSet(ctx, permissionIDs)
	if err != nil {
		return Role{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		targets, err := tx.GetMany(ctx, []int64{roleID}, false)
		if err != nil {
			return err
		}
		if len(targets) != 1 {
			return fmt.Errorf("roles: id %d: %w", roleID, httpx.ErrNotFound)
		}
		return tx.ReplacePermissions(ctx, roleID, permIDs)
	})
	if err != nil {
		return Role{}, err
	}
	s.invalidateCache(ctx)
	return s.repo.Get(ctx, roleID)
}

// ChangeStatus applies a status transition to a batch of roles,
// all-or-nothing. Soft-deleted targets are a conflict, not a silent skip.
func (s *Service) ChangeStatus(ctx context.Context, ids []int64, status RoleStatus) error {
	if !ValidStatus(status) {
		return fmt.Errorf("roles: unknown status %q: %w", status, httpx.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		targets, err := tx.GetMany(ctx, ids, true)
		if err != nil {
			return err
		}
		if len(targets) != len(dedupe(ids)) {
			return fmt.Errorf("roles: %w", httpx.ErrNotFound)
		}
		for _, role := range targets {
			if role.DeletedAt != nil {
				return fmt.Errorf("roles: role %q is deleted: %w", role.Name, httpx.ErrConflict)
			}
			if !CanTransition(role.Status, status) {
				return fmt.Errorf("roles: cannot move role %q from %s to %s: %w", role.Name, role.Status, status, httpx.ErrConflict)
			}
		}
		return tx.UpdateStatus(ctx, ids, status)
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *Service) list(ctx context.Context, req ListRolesRequest) ([]Role, int, error) {
	if req.SortBy == "" {
		req.SortBy = "createdAt"
		if req.SortDir == "" {
			req.SortDir = "desc"
		}
	}
	column, ok := sortColumns[req.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("roles: sort column %q not allowed: %w", req.SortBy, httpx.ErrValidation)
	}
	switch strings.ToLower(req.SortDir) {
	case "", "asc":
		req.SortDir = "ASC"
	case "desc":
		req.SortDir = "DESC"
	default:
		return nil, 0, fmt.Errorf("roles: sort direction %q not allowed: %w", req.SortDir, httpx.ErrValidation)
	}
	req.SortBy = column
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = 10
	}
	if req.PerPage > 50 {
		req.PerPage = 50
	}
	if req.Status != "" && !ValidStatus(RoleStatus(req.Status)) {
		return nil, 0, fmt.Errorf("roles: unknown status filter %q: %w", req.Status, httpx.ErrValidation)
	}
	return s.repo.List(ctx, req)
}

// resolvePermissionSet deduplicates the requested ids and requires every one
// of them to resolve to a live catalog entry. Validation happens before any
// write is attempted.
func (s *Service) resolvePermissionSet(ctx context.Context, ids []int64) ([]int64, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil, fmt.Errorf("roles: at least one permission required: %w", httpx.ErrValidation)
	}
	resolved, err := s.catalog.ResolveIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(resolved) != len(unique) {
		return nil, fmt.Errorf("roles: one or more permission ids are unknown or deleted: %w", httpx.ErrValidation)
	}
	return unique, nil
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("invalidate permission cache", slog.Any("error", err))
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound)
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return slug
}
