package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

// Repository defines persistence operations for the permission catalog.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Permission, error)
	GetBySlug(ctx context.Context, slug string) (Permission, error)
	List(ctx context.Context, req ListPermissionsRequest) ([]Permission, int, error)
	ListActive(ctx context.Context) ([]Permission, error)
	ResolveIDs(ctx context.Context, ids []int64) ([]Permission, error)
}

// TxRepository exposes catalog writes inside a transaction.
type TxRepository interface {
	Get(ctx context.Context, id int64) (Permission, error)
	Insert(ctx context.Context, p Permission) (int64, error)
	Update(ctx context.Context, p Permission) error
	SoftDelete(ctx context.Context, id int64) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(ctx, &repository{db: tx, pool: r.pool}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const permissionColumns = `id, app, module, action, group_name, slug, description, created_at, updated_at, deleted_at`

func (r *repository) Get(ctx context.Context, id int64) (Permission, error) {
	row := r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanPermission(row)
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (Permission, error) {
	row := r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE slug = $1 AND deleted_at IS NULL`, slug)
	return scanPermission(row)
}

func (r *repository) List(ctx context.Context, req ListPermissionsRequest) ([]Permission, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	argPos := 1

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(slug ILIKE $%d OR module ILIKE $%d OR action ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.Module != "" {
		conditions = append(conditions, fmt.Sprintf("module = $%d", argPos))
		args = append(args, req.Module)
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM permissions "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Sort column and direction are validated by the service against the
	// allow-list before they reach this query.
	query := fmt.Sprintf(`SELECT %s FROM permissions %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		permissionColumns, whereClause, req.SortBy, req.SortDir, argPos, argPos+1)
	args = append(args, req.PerPage, (req.Page-1)*req.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	perms, err := collectPermissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE deleted_at IS NULL ORDER BY app, module, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (r *repository) ResolveIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (r *repository) Insert(ctx context.Context, p Permission) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO permissions (app, module, action, group_name, slug, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`,
		p.App, p.Module, p.Action, p.GroupName, p.Slug, p.Description,
	).Scan(&id)
	if err != nil {
		return 0, mapUniqueViolation(err, p.Slug)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, p Permission) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE permissions
		SET app = $2, module = $3, action = $4, group_name = $5, slug = $6, description = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.App, p.Module, p.Action, p.GroupName, p.Slug, p.Description,
	)
	if err != nil {
		return mapUniqueViolation(err, p.Slug)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permissions: id %d: %w", p.ID, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE permissions SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permissions: id %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func mapUniqueViolation(err error, slug string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("permissions: slug %q already exists: %w", slug, httpx.ErrConflict)
	}
	return err
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	var createdAt, updatedAt pgtype.Timestamptz
	var deletedAt pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.App, &p.Module, &p.Action, &p.GroupName, &p.Slug, &p.Description, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permissions: %w", httpx.ErrNotFound)
		}
		return Permission{}, err
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return p, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		var createdAt, updatedAt, deletedAt pgtype.Timestamptz
		if err := rows.Scan(&p.ID, &p.App, &p.Module, &p.Action, &p.GroupName, &p.Slug, &p.Description, &createdAt, &updatedAt, &deletedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = createdAt.Time
		p.UpdatedAt = updatedAt.Time
		if deletedAt.Valid {
			t := deletedAt.Time
			p.DeletedAt = &t
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
