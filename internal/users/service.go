package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/roles"
	"github.com/scriptassist/masterapp/internal/shared"
)

// RolesPort is the slice of the role store the user service depends on.
type RolesPort interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// CachePort invalidates cached permission sets after a role change.
type CachePort interface {
	Invalidate(ctx context.Context) error
}

// Service manages user accounts and their single-role association.
type Service struct {
	repo   Repository
	roles  RolesPort
	cache  CachePort
	logger *slog.Logger
}

func NewService(repo Repository, rolesPort RolesPort, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: rolesPort, cache: cache, logger: logger}
}

func (s *Service) Create(ctx context.Context, req CreateUserRequest) (User, error) {
	role, err := s.roles.Get(ctx, req.RoleID)
	if err != nil {
		return User{}, fmt.Errorf("users: role %d: %w", req.RoleID, httpx.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	user := User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Status:       StatusActive,
		RoleID:       role.ID,
	}
	id, err := s.repo.Insert(ctx, user)
	if err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, req ListUsersRequest) ([]User, shared.Pagination, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage < 1 {
		req.PerPage = 10
	}
	if req.PerPage > 50 {
		req.PerPage = 50
	}
	list, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// ChangeRole swaps the user's role for another existing role. Cached
// permission sets are invalidated so the new role takes effect on the
// next authorization check.
func (s *Service) ChangeRole(ctx context.Context, userID, roleID int64) (User, error) {
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return User{}, err
	}
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return User{}, fmt.Errorf("users: role %d: %w", roleID, httpx.ErrValidation)
	}
	if err := s.repo.UpdateRole(ctx, userID, roleID); err != nil {
		return User{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate permission cache", "error", err)
		}
	}
	return s.repo.Get(ctx, userID)
}

// PermissionSlugs returns the user's effective permission slugs.
func (s *Service) PermissionSlugs(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.PermissionSlugs(ctx, userID)
}
