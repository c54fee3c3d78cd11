package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmdesk/firmdesk/internal/platform/db"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, role, tenant_id, is_active, created_at, updated_at`

// ListUsers returns one page of users visible under filter and the total count.
func (r *Repository) ListUsers(ctx context.Context, filter tenant.Filter, limit, offset int) ([]User, int, error) {
	where, args := filter.Where(tenant.Column, nil)
	if where != "" {
		where = "WHERE " + where
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY email LIMIT $%d OFFSET $%d`, userColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users := make([]User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateRole locks the user visible under filter, lets check veto the change, then stores role.
func (r *Repository) UpdateRole(ctx context.Context, filter tenant.Filter, id string, role rbac.Role, check func(current User) error) (User, error) {
	var updated User
	tenantID, _ := filter.TenantID()
	err := db.WithTx(ctx, r.pool, tenantID, func(tx pgx.Tx) error {
		conds := []string{"id = $1"}
		clause, args := filter.Where(tenant.Column, []any{id})
		if clause != "" {
			conds = append(conds, clause)
		}
		row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+strings.Join(conds, " AND ")+` FOR UPDATE`, args...)
		current, err := scanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return httpx.ErrNotFound
			}
			return err
		}
		if err := check(current); err != nil {
			return err
		}
		row = tx.QueryRow(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, role.String())
		updated, err = scanUser(row)
		return err
	})
	return updated, err
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user     User
		role     string
		tenantID *string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &tenantID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Role = rbac.ParseRole(role)
	if tenantID != nil {
		user.TenantID = *tenantID
	}
	return user, nil
}
