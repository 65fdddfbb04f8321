package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/roles"
)

type mockRepository struct {
	users  map[int64]User
	perms  map[int64][]string
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[int64]User), perms: make(map[int64][]string), nextID: 1}
}

func (m *mockRepository) Get(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("users: id %d: %w", id, httpx.ErrNotFound)
	}
	return u, nil
}

func (m *mockRepository) GetByEmail(_ context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("users: %w", httpx.ErrNotFound)
}

func (m *mockRepository) List(_ context.Context, req ListUsersRequest) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockRepository) Insert(_ context.Context, user User) (int64, error) {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return 0, fmt.Errorf("users: email %q already exists: %w", user.Email, httpx.ErrConflict)
		}
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	return user.ID, nil
}

func (m *mockRepository) UpdateRole(_ context.Context, userID, roleID int64) error {
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("users: id %d: %w", userID, httpx.ErrNotFound)
	}
	u.RoleID = roleID
	m.users[userID] = u
	return nil
}

func (m *mockRepository) PermissionSlugs(_ context.Context, userID int64) ([]string, error) {
	return m.perms[userID], nil
}

type mockRoles struct {
	known map[int64]roles.Role
}

func (m *mockRoles) Get(_ context.Context, id int64) (roles.Role, error) {
	role, ok := m.known[id]
	if !ok {
		return roles.Role{}, fmt.Errorf("roles: id %d: %w", id, httpx.ErrNotFound)
	}
	return role, nil
}

type mockCache struct {
	invalidations int
}

func (m *mockCache) Invalidate(_ context.Context) error {
	m.invalidations++
	return nil
}

func newTestService(roleIDs ...int64) (*Service, *mockRepository, *mockCache) {
	repo := newMockRepository()
	rolesPort := &mockRoles{known: make(map[int64]roles.Role)}
	for _, id := range roleIDs {
		rolesPort.known[id] = roles.Role{ID: id, Status: roles.StatusActive}
	}
	cache := &mockCache{}
	return NewService(repo, rolesPort, cache, slog.Default()), repo, cache
}

func TestCreateUser(t *testing.T) {
	svc, repo, _ := newTestService(3)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Name:     " Agent ",
		Email:    " Agent@Example.COM ",
		Password: "hunter22!",
		RoleID:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Agent", user.Name)
	assert.Equal(t, "agent@example.com", user.Email)
	assert.Equal(t, int64(3), user.RoleID)
	assert.Equal(t, StatusActive, user.Status)

	stored := repo.users[user.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter22!")))
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Name: "Agent", Email: "agent@example.com", Password: "hunter22!", RoleID: 99,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(3)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Name: "Agent", Email: "agent@example.com", Password: "hunter22!", RoleID: 3,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateUserRequest{
		Name: "Other", Email: "agent@example.com", Password: "hunter22!", RoleID: 3,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrConflict))
}

func TestChangeRole(t *testing.T) {
	svc, repo, cache := newTestService(3, 4)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Name: "Agent", Email: "agent@example.com", Password: "hunter22!", RoleID: 3,
	})
	require.NoError(t, err)
	invalidationsBefore := cache.invalidations

	updated, err := svc.ChangeRole(context.Background(), user.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated.RoleID)
	assert.Equal(t, int64(4), repo.users[user.ID].RoleID)
	assert.Greater(t, cache.invalidations, invalidationsBefore)
}

func TestChangeRoleRejectsUnknownTargets(t *testing.T) {
	svc, _, _ := newTestService(3)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Name: "Agent", Email: "agent@example.com", Password: "hunter22!", RoleID: 3,
	})
	require.NoError(t, err)

	_, err = svc.ChangeRole(context.Background(), 999, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))

	_, err = svc.ChangeRole(context.Background(), user.ID, 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestListCapsPageSize(t *testing.T) {
	svc, _, _ := newTestService(3)

	_, meta, err := svc.List(context.Background(), ListUsersRequest{Page: 0, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Page)
	assert.Equal(t, 50, meta.PerPage)
}
