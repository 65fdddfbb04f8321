package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

// Repository defines persistence for issued API tokens.
type Repository interface {
	Insert(ctx context.Context, token APIToken) (int64, error)
	FindByValue(ctx context.Context, value string) (APIToken, error)
	Delete(ctx context.Context, id int64) error
	DeleteExpiredForUser(ctx context.Context, userID int64, now time.Time) error
	DeleteAllExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed token repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, token APIToken) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_tokens (user_id, name, type, token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id`,
		token.UserID, token.Name, token.Type, token.Token, token.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("auth: insert token: %w", err)
	}
	return id, nil
}

func (r *repository) FindByValue(ctx context.Context, value string) (APIToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, type, token, expires_at, created_at, updated_at
		FROM api_tokens WHERE token = $1`, value)

	var t APIToken
	var expiresAt, createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Type, &t.Token, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIToken{}, fmt.Errorf("auth: token: %w", httpx.ErrNotFound)
		}
		return APIToken{}, err
	}
	if expiresAt.Valid {
		exp := expiresAt.Time
		t.ExpiresAt = &exp
	}
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	return t, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE id = $1`, id)
	return err
}

func (r *repository) DeleteExpiredForUser(ctx context.Context, userID int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM api_tokens WHERE user_id = $1 AND expires_at IS NOT NULL AND expires_at < $2`,
		userID, now)
	return err
}

func (r *repository) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
