package permissions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

type mockRepository struct {
	perms  map[int64]Permission
	nextID int64

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{perms: make(map[int64]Permission), nextID: 1}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) Get(_ context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok || p.DeletedAt != nil {
		return Permission{}, fmt.Errorf("permissions: %w", httpx.ErrNotFound)
	}
	return p, nil
}

func (m *mockRepository) GetBySlug(_ context.Context, slug string) (Permission, error) {
	for _, p := range m.perms {
		if p.Slug == slug && p.DeletedAt == nil {
			return p, nil
		}
	}
	return Permission{}, fmt.Errorf("permissions: %w", httpx.ErrNotFound)
}

func (m *mockRepository) List(_ context.Context, req ListPermissionsRequest) ([]Permission, int, error) {
	active := m.active()
	return active, len(active), nil
}

func (m *mockRepository) ListActive(_ context.Context) ([]Permission, error) {
	return m.active(), nil
}

func (m *mockRepository) ResolveIDs(_ context.Context, ids []int64) ([]Permission, error) {
	var out []Permission
	for _, id := range ids {
		if p, ok := m.perms[id]; ok && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) Insert(_ context.Context, p Permission) (int64, error) {
	for _, existing := range m.perms {
		if existing.Slug == p.Slug && existing.DeletedAt == nil {
			return 0, fmt.Errorf("permissions: slug %q already exists: %w", p.Slug, httpx.ErrConflict)
		}
	}
	p.ID = m.nextID
	m.nextID++
	m.perms[p.ID] = p
	return p.ID, nil
}

func (m *mockRepository) Update(_ context.Context, p Permission) error {
	existing, ok := m.perms[p.ID]
	if !ok || existing.DeletedAt != nil {
		return fmt.Errorf("permissions: id %d: %w", p.ID, httpx.ErrNotFound)
	}
	for _, other := range m.perms {
		if other.ID != p.ID && other.Slug == p.Slug && other.DeletedAt == nil {
			return fmt.Errorf("permissions: slug %q already exists: %w", p.Slug, httpx.ErrConflict)
		}
	}
	m.perms[p.ID] = p
	return nil
}

func (m *mockRepository) SoftDelete(_ context.Context, id int64) error {
	p, ok := m.perms[id]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("permissions: id %d: %w", id, httpx.ErrNotFound)
	}
	now := time.Now()
	p.DeletedAt = &now
	m.perms[id] = p
	return nil
}

func (m *mockRepository) active() []Permission {
	var out []Permission
	for _, p := range m.perms {
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out
}

type mockCache struct {
	invalidations int
}

func (m *mockCache) Invalidate(_ context.Context) error {
	m.invalidations++
	return nil
}

func TestCreateDerivesSlugAndDefaults(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	p, err := svc.Create(context.Background(), CreatePermissionRequest{
		App: "masterApp", Module: "role", Action: "create", Description: " Manage roles ",
	})
	require.NoError(t, err)
	assert.Equal(t, "MasterApp:Role:Create", p.Slug)
	assert.Equal(t, "Default", p.GroupName)
	assert.Equal(t, "Manage roles", p.Description)
	assert.NotZero(t, p.ID)
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreatePermissionRequest{App: "MasterApp", Module: "Role", Action: "Create"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreatePermissionRequest{App: "masterApp", Module: "role", Action: "create"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrConflict))
}

func TestCreateAllowsDuplicateOfDeletedSlug(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	p, err := svc.Create(context.Background(), CreatePermissionRequest{App: "MasterApp", Module: "Role", Action: "Create"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), p.ID))

	_, err = svc.Create(context.Background(), CreatePermissionRequest{App: "MasterApp", Module: "Role", Action: "Create"})
	assert.NoError(t, err)
}

func TestUpdateRecomputesSlug(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	p, err := svc.Create(context.Background(), CreatePermissionRequest{App: "MasterApp", Module: "Role", Action: "Create"})
	require.NoError(t, err)

	action := "delete"
	updated, err := svc.Update(context.Background(), p.ID, UpdatePermissionRequest{Action: &action})
	require.NoError(t, err)
	assert.Equal(t, "MasterApp:Role:Delete", updated.Slug)
	assert.Equal(t, "Delete", updated.Action)
}

func TestCatalogMutationsInvalidateCache(t *testing.T) {
	repo := newMockRepository()
	cache := &mockCache{}
	svc := NewService(repo, cache, nil)

	p, err := svc.Create(context.Background(), CreatePermissionRequest{App: "MasterApp", Module: "Role", Action: "Create"})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.invalidations, "a new entry belongs to no role yet")

	action := "delete"
	_, err = svc.Update(context.Background(), p.ID, UpdatePermissionRequest{Action: &action})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations, "slug rename must drop cached sets")

	require.NoError(t, svc.Delete(context.Background(), p.ID))
	assert.Equal(t, 2, cache.invalidations, "soft delete must drop cached sets")
}

func TestFailedMutationLeavesCacheAlone(t *testing.T) {
	repo := newMockRepository()
	cache := &mockCache{}
	svc := NewService(repo, cache, nil)

	_, err := svc.Update(context.Background(), 99, UpdatePermissionRequest{})
	require.Error(t, err)
	require.Error(t, svc.Delete(context.Background(), 99))
	assert.Equal(t, 0, cache.invalidations)
}

func TestListRejectsUnknownSortColumn(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil)

	_, _, err := svc.List(context.Background(), ListPermissionsRequest{SortBy: "password_hash"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestListRejectsUnknownSortDirection(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil)

	_, _, err := svc.List(context.Background(), ListPermissionsRequest{SortBy: "slug", SortDir: "sideways"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestCatalogGroupsByAppAndModule(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	for _, entry := range []struct{ app, module, action string }{
		{"MasterApp", "Role", "Create"},
		{"MasterApp", "Role", "Read"},
		{"MasterApp", "User", "Read"},
		{"OtherApp", "Billing", "Read"},
	} {
		_, err := svc.Create(context.Background(), CreatePermissionRequest{App: entry.app, Module: entry.module, Action: entry.action})
		require.NoError(t, err)
	}

	apps, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)

	assert.Equal(t, "MasterApp", apps[0].App)
	require.Len(t, apps[0].Modules, 2)
	assert.Equal(t, "Role", apps[0].Modules[0].Name)
	assert.Len(t, apps[0].Modules[0].Permissions, 2)
	assert.Equal(t, "User", apps[0].Modules[1].Name)

	assert.Equal(t, "OtherApp", apps[1].App)
}

func TestGroupedByModule(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	for _, entry := range []struct{ module, action string }{
		{"Role", "Create"},
		{"Role", "Read"},
		{"User", "Read"},
	} {
		_, err := svc.Create(context.Background(), CreatePermissionRequest{App: "MasterApp", Module: entry.module, Action: entry.action})
		require.NoError(t, err)
	}

	modules, err := svc.GroupedByModule(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, "Role", modules[0].Module)
	require.Len(t, modules[0].Groups, 1)
	assert.Equal(t, "Default", modules[0].Groups[0].Name)
	assert.Len(t, modules[0].Groups[0].Permissions, 2)
}
