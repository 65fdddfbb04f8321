package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/users"
)

type mockTokenRepo struct {
	tokens map[int64]APIToken
	nextID int64
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: make(map[int64]APIToken), nextID: 1}
}

func (m *mockTokenRepo) Insert(_ context.Context, token APIToken) (int64, error) {
	token.ID = m.nextID
	m.nextID++
	m.tokens[token.ID] = token
	return token.ID, nil
}

func (m *mockTokenRepo) FindByValue(_ context.Context, value string) (APIToken, error) {
	for _, t := range m.tokens {
		if t.Token == value {
			return t, nil
		}
	}
	return APIToken{}, fmt.Errorf("auth: token: %w", httpx.ErrNotFound)
}

func (m *mockTokenRepo) Delete(_ context.Context, id int64) error {
	delete(m.tokens, id)
	return nil
}

func (m *mockTokenRepo) DeleteExpiredForUser(_ context.Context, userID int64, now time.Time) error {
	for id, t := range m.tokens {
		if t.UserID == userID && t.Expired(now) {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *mockTokenRepo) DeleteAllExpired(_ context.Context, now time.Time) (int64, error) {
	var removed int64
	for id, t := range m.tokens {
		if t.Expired(now) {
			delete(m.tokens, id)
			removed++
		}
	}
	return removed, nil
}

type mockUsers struct {
	byID    map[int64]users.User
	byEmail map[string]users.User
	perms   map[int64][]string
}

func newMockUsers() *mockUsers {
	return &mockUsers{
		byID:    make(map[int64]users.User),
		byEmail: make(map[string]users.User),
		perms:   make(map[int64][]string),
	}
}

func (m *mockUsers) add(u users.User, perms ...string) {
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	m.perms[u.ID] = perms
}

func (m *mockUsers) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return users.User{}, fmt.Errorf("users: %w", httpx.ErrNotFound)
	}
	return u, nil
}

func (m *mockUsers) GetByEmail(_ context.Context, email string) (users.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return users.User{}, fmt.Errorf("users: %w", httpx.ErrNotFound)
	}
	return u, nil
}

func (m *mockUsers) PermissionSlugs(_ context.Context, userID int64) ([]string, error) {
	return m.perms[userID], nil
}

func newTestService(t *testing.T, usersPort UsersPort) (*Service, *mockTokenRepo) {
	t.Helper()
	repo := newMockTokenRepo()
	svc := NewService(repo, usersPort, nil, "test-secret", 60*24*time.Hour, slog.Default())
	return svc, repo
}

func seedUser(store *mockUsers, perms ...string) users.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	u := users.User{ID: 7, Name: "Agent", Email: "agent@example.com", PasswordHash: string(hash), RoleID: 3}
	store.add(u, perms...)
	return u
}

func TestIssueAndValidate(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store, "MasterApp:Role:Read")
	svc, repo := newTestService(t, store)

	envelope, token, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, envelope)
	require.NotNil(t, token.ExpiresAt)
	assert.Len(t, repo.tokens, 1)

	principal, err := svc.Validate(context.Background(), envelope, []string{"MasterApp:Role:Read"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, user.RoleID, principal.RoleID)
	assert.Equal(t, []string{"MasterApp:Role:Read"}, principal.Permissions)
}

func TestValidateMissingToken(t *testing.T) {
	svc, _ := newTestService(t, newMockUsers())

	_, err := svc.Validate(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrMissingToken))
}

func TestValidateMalformedEnvelope(t *testing.T) {
	svc, _ := newTestService(t, newMockUsers())

	_, err := svc.Validate(context.Background(), "not-a-jwt", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvalidToken))
}

func TestValidateRejectsEnvelopeSignedWithOtherSecret(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)

	otherRepo := newMockTokenRepo()
	other := NewService(otherRepo, store, nil, "other-secret", time.Hour, slog.Default())
	envelope, _, err := other.Issue(context.Background(), user)
	require.NoError(t, err)

	svc, _ := newTestService(t, store)
	_, err = svc.Validate(context.Background(), envelope, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvalidToken))
}

func TestValidateUnknownStoredToken(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)
	svc, repo := newTestService(t, store)

	envelope, token, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	// Row revoked out of band; the envelope alone is worthless.
	require.NoError(t, repo.Delete(context.Background(), token.ID))

	_, err = svc.Validate(context.Background(), envelope, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvalidToken))
}

func TestValidateExpiredTokenIsDeletedLazily(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)
	svc, repo := newTestService(t, store)

	envelope, _, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(61 * 24 * time.Hour) }

	_, err = svc.Validate(context.Background(), envelope, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrTokenExpired))
	assert.Empty(t, repo.tokens)
}

func TestValidateUserGone(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)
	svc, _ := newTestService(t, store)

	envelope, _, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	delete(store.byID, user.ID)

	_, err = svc.Validate(context.Background(), envelope, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUserNotFound))
}

func TestValidatePermissionSemantics(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store, "MasterApp:Role:Read", "MasterApp:User:Read")
	svc, _ := newTestService(t, store)

	envelope, _, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	// any match passes
	_, err = svc.Validate(context.Background(), envelope, []string{"MasterApp:Role:Delete", "MasterApp:User:Read"})
	assert.NoError(t, err)

	// empty required set only demands a valid token
	_, err = svc.Validate(context.Background(), envelope, nil)
	assert.NoError(t, err)

	// no match is denied
	_, err = svc.Validate(context.Background(), envelope, []string{"MasterApp:Role:Delete"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrPermissionDenied))
}

func TestIssuePurgesExpiredTokensForUser(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)
	svc, repo := newTestService(t, store)

	past := time.Now().Add(-time.Hour)
	_, err := repo.Insert(context.Background(), APIToken{UserID: user.ID, Token: "stale", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), APIToken{UserID: 999, Token: "other-user-stale", ExpiresAt: &past})
	require.NoError(t, err)

	_, _, err = svc.Issue(context.Background(), user)
	require.NoError(t, err)

	// the user's stale row is gone, the other user's row is untouched
	_, err = repo.FindByValue(context.Background(), "stale")
	assert.Error(t, err)
	_, err = repo.FindByValue(context.Background(), "other-user-stale")
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)
	svc, _ := newTestService(t, store)

	got, err := svc.Authenticate(context.Background(), user.Email, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(context.Background(), user.Email, "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "hunter22")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))
}

func TestRevokeDeletesStoredToken(t *testing.T) {
	store := newMockUsers()
	user := seedUser(store)
	svc, repo := newTestService(t, store)

	envelope, _, err := svc.Issue(context.Background(), user)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), envelope))
	assert.Empty(t, repo.tokens)

	// a second revoke of the same envelope is a no-op
	assert.NoError(t, svc.Revoke(context.Background(), envelope))
}

func TestPurgeExpired(t *testing.T) {
	store := newMockUsers()
	svc, repo := newTestService(t, store)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	_, err := repo.Insert(context.Background(), APIToken{UserID: 1, Token: "a", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), APIToken{UserID: 2, Token: "b", ExpiresAt: &future})
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), APIToken{UserID: 3, Token: "c"})
	require.NoError(t, err)

	removed, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Len(t, repo.tokens, 2)
}
