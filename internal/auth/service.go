package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
	"github.com/scriptassist/masterapp/internal/shared"
	"github.com/scriptassist/masterapp/internal/users"
)

// UsersPort is the slice of the user store the token service depends on.
type UsersPort interface {
	Get(ctx context.Context, id int64) (users.User, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
	PermissionSlugs(ctx context.Context, userID int64) ([]string, error)
}

// PermissionResolver caches effective permission sets per user.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64, loader func(context.Context) ([]string, error)) ([]string, error)
}

// Service issues and validates API tokens. A token is a random opaque
// value persisted in api_tokens and handed to clients wrapped in a
// signed JWT envelope; validity is always decided against the stored
// row, never the envelope alone.
type Service struct {
	repo      Repository
	users     UsersPort
	resolver  PermissionResolver
	secret    []byte
	tokenTTL  time.Duration
	tokenName string
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, usersPort UsersPort, resolver PermissionResolver, secret string, tokenTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     usersPort,
		resolver:  resolver,
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		tokenName: "api_auth",
		logger:    logger,
		now:       time.Now,
	}
}

// Authenticate checks email/password credentials and returns the user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return users.User{}, fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, fmt.Errorf("auth: %w", httpx.ErrUnauthorized)
	}
	return user, nil
}

// Issue mints a fresh token for the user. Expired tokens belonging to
// the same user are removed first, so stale rows never accumulate on
// the login path.
func (s *Service) Issue(ctx context.Context, user users.User) (string, APIToken, error) {
	now := s.now()
	if err := s.repo.DeleteExpiredForUser(ctx, user.ID, now); err != nil {
		s.logger.Warn("purge expired tokens on login", "userId", user.ID, "error", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", APIToken{}, fmt.Errorf("auth: generate token: %w", err)
	}
	value := hex.EncodeToString(raw)

	expiresAt := now.Add(s.tokenTTL)
	token := APIToken{
		UserID:    user.ID,
		Name:      s.tokenName,
		Type:      TokenTypeAPI,
		Token:     value,
		ExpiresAt: &expiresAt,
	}
	id, err := s.repo.Insert(ctx, token)
	if err != nil {
		return "", APIToken{}, err
	}
	token.ID = id

	claims := jwt.MapClaims{
		"token": value,
		"sub":   fmt.Sprintf("%d", user.ID),
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", APIToken{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, token, nil
}

// Revoke deletes the token carried by the given envelope. Unknown or
// malformed envelopes are treated as already revoked.
func (s *Service) Revoke(ctx context.Context, envelope string) error {
	value, err := s.unwrap(envelope)
	if err != nil {
		return nil
	}
	stored, err := s.repo.FindByValue(ctx, value)
	if err != nil {
		return nil
	}
	return s.repo.Delete(ctx, stored.ID)
}

// Validate resolves the bearer envelope to a principal and enforces the
// required permission set with OR semantics. An empty required set only
// demands a valid token.
func (s *Service) Validate(ctx context.Context, envelope string, requiredPermissions []string) (*shared.Principal, error) {
	if envelope == "" {
		return nil, fmt.Errorf("auth: %w", httpx.ErrMissingToken)
	}
	value, err := s.unwrap(envelope)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", httpx.ErrInvalidToken)
	}

	stored, err := s.repo.FindByValue(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", httpx.ErrInvalidToken)
	}
	if stored.Expired(s.now()) {
		if err := s.repo.Delete(ctx, stored.ID); err != nil {
			s.logger.Warn("delete expired token", "tokenId", stored.ID, "error", err)
		}
		return nil, fmt.Errorf("auth: %w", httpx.ErrTokenExpired)
	}

	user, err := s.users.Get(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", httpx.ErrUserNotFound)
	}

	slugs, err := s.permissionsFor(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve permissions: %w", err)
	}

	principal := &shared.Principal{
		UserID:      user.ID,
		Name:        user.Name,
		Email:       user.Email,
		RoleID:      user.RoleID,
		Permissions: slugs,
	}
	if !principal.HasAny(requiredPermissions) {
		return nil, fmt.Errorf("auth: %w", httpx.ErrPermissionDenied)
	}
	return principal, nil
}

// PurgeExpired removes every expired token row. Invoked by the
// background sweep.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteAllExpired(ctx, s.now())
}

func (s *Service) permissionsFor(ctx context.Context, userID int64) ([]string, error) {
	loader := func(ctx context.Context) ([]string, error) {
		return s.users.PermissionSlugs(ctx, userID)
	}
	if s.resolver == nil {
		return loader(ctx)
	}
	return s.resolver.Resolve(ctx, userID, loader)
}

// unwrap verifies the JWT envelope and extracts the opaque token value.
func (s *Service) unwrap(envelope string) (string, error) {
	parsed, err := jwt.Parse(envelope, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("auth: parse envelope: %w", httpx.ErrInvalidToken)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("auth: claims: %w", httpx.ErrInvalidToken)
	}
	value, ok := claims["token"].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("auth: token claim: %w", httpx.ErrInvalidToken)
	}
	return value, nil
}
