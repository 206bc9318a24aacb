package rank

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the rank catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRanks returns the full catalog ordered by priority.
func (r *Repository) ListRanks(ctx context.Context) ([]Rank, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, priority, prefix, color, staff, permissions, parent_id
		FROM ranks ORDER BY priority DESC, id`)
	if err != nil {
		return nil, storeErr("rank: list", err)
	}
	defer rows.Close()
	var ranks []Rank
	for rows.Next() {
		var rk Rank
		if err := rows.Scan(&rk.ID, &rk.Name, &rk.Priority, &rk.Prefix, &rk.Color,
			&rk.Staff, &rk.Permissions, &rk.ParentID); err != nil {
			return nil, storeErr("rank: scan", err)
		}
		ranks = append(ranks, rk)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("rank: rows", err)
	}
	return ranks, nil
}

// Upsert writes one rank definition.
func (r *Repository) Upsert(ctx context.Context, rk Rank) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO ranks (id, name, priority, prefix, color, staff, permissions, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			priority = EXCLUDED.priority,
			prefix = EXCLUDED.prefix,
			color = EXCLUDED.color,
			staff = EXCLUDED.staff,
			permissions = EXCLUDED.permissions,
			parent_id = EXCLUDED.parent_id`,
		rk.ID, rk.Name, rk.Priority, rk.Prefix, rk.Color, rk.Staff, rk.Permissions, rk.ParentID); err != nil {
		return storeErr("rank: upsert", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
