package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmdesk/firmdesk/internal/tenant"
)

// maxExportRows membatasi ekspor tanpa paging.
const maxExportRows = 10000

// PGRepository membaca audit_logs dari PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window mengembalikan satu jendela baris terbaru.
func (r *PGRepository) Window(ctx context.Context, filter tenant.Filter, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	return r.query(ctx, filter, filters, limit, offset)
}

// All mengembalikan semua baris yang cocok hingga maxExportRows.
func (r *PGRepository) All(ctx context.Context, filter tenant.Filter, filters TimelineFilters) ([]TimelineRow, error) {
	return r.query(ctx, filter, filters, maxExportRows, 0)
}

func (r *PGRepository) query(ctx context.Context, filter tenant.Filter, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	where, args := whereClause(filter, filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT occurred_at, actor_id, tenant_id, action, entity, entity_id, meta
		FROM audit_logs %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row      TimelineRow
			tenantID *string
			meta     []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &tenantID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if tenantID != nil {
			row.TenantID = *tenantID
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func whereClause(filter tenant.Filter, filters TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To.AddDate(0, 0, 1))
	}
	if v := strings.TrimSpace(filters.Actor); v != "" {
		add("actor_id = $%d", v)
	}
	if v := strings.TrimSpace(filters.Entity); v != "" {
		add("entity = $%d", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		add("action = $%d", v)
	}
	clause, args := filter.Where(tenant.Column, args)
	if clause != "" {
		conds = append(conds, clause)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
