package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmdesk/firmdesk/internal/platform/db"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

// Repository is the client persistence port. Every read and delete takes the caller's
// tenant filter.
type Repository interface {
	Get(ctx context.Context, filter tenant.Filter, id string) (*Client, error)
	List(ctx context.Context, filter tenant.Filter, req ListClientsRequest, limit, offset int) ([]Client, int, error)
	Create(ctx context.Context, client Client) (*Client, error)
	Delete(ctx context.Context, filter tenant.Filter, id string) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

const clientColumns = `id, tenant_id, code, name, email, phone, tax_id, country, notes,
	is_active, created_by, created_at, updated_at`

// scoped joins conds with the tenant predicate into a WHERE clause.
func scoped(filter tenant.Filter, conds []string, args []any) (string, []any) {
	clause, args := filter.Where(tenant.Column, args)
	if clause != "" {
		conds = append(conds, clause)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *repository) Get(ctx context.Context, filter tenant.Filter, id string) (*Client, error) {
	where, args := scoped(filter, []string{"id = $1"}, []any{id})
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, filter tenant.Filter, req ListClientsRequest, limit, offset int) ([]Client, int, error) {
	var conds []string
	var args []any

	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if req.Search != nil && *req.Search != "" {
		args = append(args, "%"+*req.Search+"%")
		conds = append(conds, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d OR email ILIKE $%d)", len(args), len(args), len(args)))
	}
	where, args := scoped(filter, conds, args)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM clients %s ORDER BY code LIMIT $%d OFFSET $%d`, clientColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clients := make([]Client, 0, limit)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, c)
	}
	return clients, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, client Client) (*Client, error) {
	var created Client
	err := db.WithTx(ctx, r.pool, client.TenantID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO clients (id, tenant_id, code, name, email, phone, tax_id, country, notes, is_active, created_by)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+clientColumns,
			client.ID, client.TenantID, client.Code, client.Name, client.Email, client.Phone,
			client.TaxID, client.Country, client.Notes, client.IsActive, client.CreatedBy)
		var err error
		created, err = scanClient(row)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &created, nil
}

func (r *repository) Delete(ctx context.Context, filter tenant.Filter, id string) error {
	where, args := scoped(filter, []string{"id = $1"}, []any{id})
	tag, err := r.db.Exec(ctx, `DELETE FROM clients `+where, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (Client, error) {
	var (
		c        Client
		tenantID *string
	)
	err := row.Scan(
		&c.ID, &tenantID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.TaxID, &c.Country, &c.Notes,
		&c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Client{}, err
	}
	if tenantID != nil {
		c.TenantID = *tenantID
	}
	return c, nil
}
