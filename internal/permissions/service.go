package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

var sortColumns = map[string]string{
	"id":        "id",
	"slug":      "slug",
	"module":    "module",
	"action":    "action",
	"createdAt": "created_at",
}

// CachePort invalidates cached effective permission sets after catalog
// mutations.
type CachePort interface {
	Invalidate(ctx context.Context) error
}

// Service manages the permission catalog.
type Service struct {
	repo   Repository
	cache  CachePort
	logger *slog.Logger
}

// NewService constructs a catalog service.
func NewService(repo Repository, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Create derives the slug from (app, module, action) and persists a new
// catalog entry. A non-deleted entry with the same slug is a conflict.
func (s *Service) Create(ctx context.Context, req CreatePermissionRequest) (Permission, error) {
	p := Permission{
		App:         capitalizeWords(req.App),
		Module:      capitalizeWords(req.Module),
		Action:      capitalizeWords(req.Action),
		GroupName:   "Default",
		Slug:        DeriveSlug(req.App, req.Module, req.Action),
		Description: strings.TrimSpace(req.Description),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Update merges the supplied fields and recomputes the slug.
func (s *Service) Update(ctx context.Context, id int64, req UpdatePermissionRequest) (Permission, error) {
	var updated Permission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.App != nil {
			p.App = capitalizeWords(*req.App)
		}
		if req.Module != nil {
			p.Module = capitalizeWords(*req.Module)
		}
		if req.Action != nil {
			p.Action = capitalizeWords(*req.Action)
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		p.Slug = DeriveSlug(p.App, p.Module, p.Action)
		if err := tx.Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return Permission{}, err
	}
	// A slug rename changes every holding role's effective set.
	s.invalidateCache(ctx)
	return updated, nil
}

// Get fetches a single catalog entry.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug fetches a catalog entry by its canonical slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Permission, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// Delete soft-deletes a catalog entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// List returns a page of catalog entries. Sort column and direction must be
// in the allow-list; anything else is rejected rather than ignored.
func (s *Service) List(ctx context.Context, req ListPermissionsRequest) ([]Permission, int, error) {
	if req.SortBy == "" {
		req.SortBy = "createdAt"
		if req.SortDir == "" {
			req.SortDir = "desc"
		}
	}
	column, ok := sortColumns[req.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("permissions: sort column %q not allowed: %w", req.SortBy, httpx.ErrValidation)
	}
	dir, err := normalizeSortDir(req.SortDir)
	if err != nil {
		return nil, 0, err
	}
	req.SortBy = column
	req.SortDir = dir
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = 10
	}
	if req.PerPage > 50 {
		req.PerPage = 50
	}
	return s.repo.List(ctx, req)
}

// Catalog reshapes all active permissions into app → module → entries for
// management UIs. Pure read.
func (s *Service) Catalog(ctx context.Context) ([]CatalogApp, error) {
	perms, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byApp := make(map[string]map[string][]CatalogPermission)
	for _, p := range perms {
		if byApp[p.App] == nil {
			byApp[p.App] = make(map[string][]CatalogPermission)
		}
		byApp[p.App][p.Module] = append(byApp[p.App][p.Module], CatalogPermission{
			ID:          p.ID,
			Action:      p.Action,
			Slug:        p.Slug,
			Description: p.Description,
		})
	}
	apps := make([]CatalogApp, 0, len(byApp))
	for app, modules := range byApp {
		entry := CatalogApp{App: app}
		for name, list := range modules {
			entry.Modules = append(entry.Modules, CatalogModule{Name: name, Permissions: list})
		}
		sort.Slice(entry.Modules, func(i, j int) bool { return entry.Modules[i].Name < entry.Modules[j].Name })
		apps = append(apps, entry)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].App < apps[j].App })
	return apps, nil
}

// GroupedByModule reshapes active permissions into module → group → entries.
func (s *Service) GroupedByModule(ctx context.Context) ([]ModuleGroup, error) {
	perms, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byModule := make(map[string]map[string][]Permission)
	for _, p := range perms {
		if byModule[p.Module] == nil {
			byModule[p.Module] = make(map[string][]Permission)
		}
		byModule[p.Module][p.GroupName] = append(byModule[p.Module][p.GroupName], p)
	}
	modules := make([]ModuleGroup, 0, len(byModule))
	for name, groups := range byModule {
		entry := ModuleGroup{Module: name}
		for group, list := range groups {
			entry.Groups = append(entry.Groups, GroupEntry{Name: group, Permissions: list})
		}
		sort.Slice(entry.Groups, func(i, j int) bool { return entry.Groups[i].Name < entry.Groups[j].Name })
		modules = append(modules, entry)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Module < modules[j].Module })
	return modules, nil
}

// ResolveIDs returns the active permissions matching ids. Callers compare
// result size against the request to detect missing or deleted entries.
func (s *Service) ResolveIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	return s.repo.ResolveIDs(ctx, ids)
}

// invalidateCache bumps the cache namespace version. A new entry belongs to
// no role yet, so Create does not call this.
func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("invalidate permission cache", slog.Any("error", err))
	}
}

func normalizeSortDir(dir string) (string, error) {
	switch strings.ToLower(dir) {
	case "", "asc":
		return "ASC", nil
	case "desc":
		return "DESC", nil
	default:
		return "", fmt.Errorf("permissions: sort direction %q not allowed: %w", dir, httpx.ErrValidation)
	}
}
