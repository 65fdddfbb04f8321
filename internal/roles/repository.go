package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scriptassist/masterapp/internal/permissions"
	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

// Repository defines persistence operations for the role store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Role, error)
	List(ctx context.Context, req ListRolesRequest) ([]Role, int, error)
}

// TxRepository exposes role writes inside a transaction. Reads through it see
// the transaction's snapshot, so validation and writes stay consistent.
type TxRepository interface {
	GetMany(ctx context.Context, ids []int64, includeDeleted bool) ([]Role, error)
	FindByName(ctx context.Context, name string) (Role, error)
	Insert(ctx context.Context, role Role) (int64, error)
	Update(ctx context.Context, role Role) error
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AssignedUserCount(ctx context.Context, roleIDs []int64) (int, error)
	SoftDelete(ctx context.Context, ids []int64) error
	HardDelete(ctx context.Context, ids []int64) error
	Restore(ctx context.Context, ids []int64) error
	UpdateStatus(ctx context.Context, ids []int64, status RoleStatus) error
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

// NewRepository constructs a PostgreSQL-backed role repository.
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

const roleColumns = `r.id, r.name, r.slug, r.description, r.status, r.role_type, r.is_primary,
	(SELECT COUNT(*) FROM role_permissions rp WHERE rp.role_id = r.id) AS permission_count,
	r.created_at, r.updated_at, r.deleted_at`

func (r *repository) Get(ctx context.Context, id int64) (Role, error) {
	row := r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1 AND r.deleted_at IS NULL`, id)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.app, p.module, p.action, p.group_name, p.slug, p.description, p.created_at, p.updated_at, p.deleted_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1 AND p.deleted_at IS NULL
		ORDER BY p.slug`, id)
	if err != nil {
		return Role{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p permissions.Permission
		var createdAt, updatedAt, deletedAt pgtype.Timestamptz
		if err := rows.Scan(&p.ID, &p.App, &p.Module, &p.Action, &p.GroupName, &p.Slug, &p.Description, &createdAt, &updatedAt, &deletedAt); err != nil {
			return Role{}, err
		}
		p.CreatedAt = createdAt.Time
		p.UpdatedAt = updatedAt.Time
		role.Permissions = append(role.Permissions, p)
	}
	if err := rows.Err(); err != nil {
		return Role{}, err
	}
	return role, nil
}

func (r *repository) List(ctx context.Context, req ListRolesRequest) ([]Role, int, error) {
	conditions := []string{"r.is_primary = FALSE"}
	if req.Trashed {
		conditions = append(conditions, "r.deleted_at IS NOT NULL")
	} else {
		conditions = append(conditions, "r.deleted_at IS NULL")
	}
	if req.ActiveOnly {
		conditions = append(conditions, "r.status = 'active'")
	}

	var args []any
	argPos := 1
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(r.name ILIKE $%d OR r.role_type ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argPos))
		args = append(args, req.Status)
		argPos++
	}
	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM roles r "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Sort column and direction come from the service allow-list.
	query := fmt.Sprintf(`SELECT %s FROM roles r %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		roleColumns, whereClause, req.SortBy, req.SortDir, argPos, argPos+1)
	args = append(args, req.PerPage, (req.Page-1)*req.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Role
	for rows.Next() {
		role, err := scanRoleFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *repository) GetMany(ctx context.Context, ids []int64, includeDeleted bool) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.id = ANY($1)`
	if !includeDeleted {
		query += ` AND r.deleted_at IS NULL`
	}
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Role
	for rows.Next() {
		role, err := scanRoleFromRows(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, role)
	}
	return list, rows.Err()
}

func (r *repository) FindByName(ctx context.Context, name string) (Role, error) {
	row := r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE LOWER(r.name) = LOWER($1) AND r.deleted_at IS NULL`, name)
	return scanRole(row)
}

func (r *repository) Insert(ctx context.Context, role Role) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO roles (name, slug, description, status, role_type, is_primary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`,
		role.Name, role.Slug, role.Description, role.Status, role.RoleType, role.IsPrimary,
	).Scan(&id)
	if err != nil {
		return 0, mapUniqueViolation(err, role.Name)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, role Role) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE roles SET name = $2, slug = $3, description = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		role.ID, role.Name, role.Slug, role.Description,
	)
	if err != nil {
		return mapUniqueViolation(err, role.Name)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("roles: id %d: %w", role.ID, httpx.ErrNotFound)
	}
	return nil
}

func mapUniqueViolation(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("roles: name %q already exists: %w", name, httpx.ErrConflict)
	}
	return err
}

func (r *repository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		if _, err := r.db.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, NOW())`, roleID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) AssignedUserCount(ctx context.Context, roleIDs []int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = ANY($1) AND deleted_at IS NULL`, roleIDs).Scan(&count)
	return count, err
}

func (r *repository) SoftDelete(ctx context.Context, ids []int64) error {
	_, err := r.db.Exec(ctx, `UPDATE roles SET deleted_at = NOW(), updated_at = NOW() WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	return err
}

func (r *repository) HardDelete(ctx context.Context, ids []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = ANY($1)`, ids); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = ANY($1)`, ids)
	return err
}

func (r *repository) Restore(ctx context.Context, ids []int64) error {
	_, err := r.db.Exec(ctx, `UPDATE roles SET deleted_at = NULL, updated_at = NOW() WHERE id = ANY($1)`, ids)
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, ids []int64, status RoleStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE roles SET status = $2, updated_at = NOW() WHERE id = ANY($1) AND deleted_at IS NULL`, ids, status)
	return err
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var createdAt, updatedAt, deletedAt pgtype.Timestamptz
	err := row.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.Status, &role.RoleType,
		&role.IsPrimary, &role.PermissionCount, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: %w", httpx.ErrNotFound)
		}
		return Role{}, err
	}
	role.CreatedAt = createdAt.Time
	role.UpdatedAt = updatedAt.Time
	if deletedAt.Valid {
		t := deletedAt.Time
		role.DeletedAt = &t
	}
	return role, nil
}

func scanRoleFromRows(rows pgx.Rows) (Role, error) {
	var role Role
	var createdAt, updatedAt, deletedAt pgtype.Timestamptz
	if err := rows.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.Status, &role.RoleType,
		&role.IsPrimary, &role.PermissionCount, &createdAt, &updatedAt, &deletedAt); err != nil {
		return Role{}, err
	}
	role.CreatedAt = createdAt.Time
	role.UpdatedAt = updatedAt.Time
	if deletedAt.Valid {
		t := deletedAt.Time
		role.DeletedAt = &t
	}
	return role, nil
}
