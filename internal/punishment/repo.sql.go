package punishment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// Repository provides PostgreSQL backed persistence. The punishments table is
// append-only: rows are inserted and flagged, never deleted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const punishmentColumns = `id, target_id, issuer_id, kind, reason, issued_at, expires_at, active, removed_by, removed_at`

// Insert appends a new punishment record.
func (r *Repository) Insert(ctx context.Context, p Punishment) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO punishments (id, target_id, issuer_id, kind, reason, issued_at, expires_at, active, removed_by, removed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.TargetID, p.IssuerID, string(p.Kind), p.Reason, p.IssuedAt, p.ExpiresAt,
		p.Active, p.RemovedBy, p.RemovedAt); err != nil {
		return storeErr("punishment: insert", err)
	}
	return nil
}

// MarkRemoved flags a record as revoked and returns the updated record.
func (r *Repository) MarkRemoved(ctx context.Context, id, revoker string, at time.Time) (Punishment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE punishments SET active = FALSE, removed_by = $2, removed_at = $3
		WHERE id = $1 AND removed_at IS NULL
		RETURNING `+punishmentColumns, id, revoker, at)
	p, err := scanPunishment(row)
	if err != nil {
		return Punishment{}, err
	}
	return p, nil
}

// FindByID returns one record.
func (r *Repository) FindByID(ctx context.Context, id string) (Punishment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+punishmentColumns+` FROM punishments WHERE id = $1`, id)
	return scanPunishment(row)
}

// ListByTarget returns every record for a player, oldest first.
func (r *Repository) ListByTarget(ctx context.Context, targetID string) ([]Punishment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+punishmentColumns+` FROM punishments WHERE target_id = $1 ORDER BY issued_at, id`, targetID)
	if err != nil {
		return nil, storeErr("punishment: list", err)
	}
	defer rows.Close()
	var records []Punishment
	for rows.Next() {
		p, err := scanPunishment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("punishment: list rows", err)
	}
	return records, nil
}

func scanPunishment(row pgx.Row) (Punishment, error) {
	var p Punishment
	var kind string
	err := row.Scan(&p.ID, &p.TargetID, &p.IssuerID, &kind, &p.Reason, &p.IssuedAt,
		&p.ExpiresAt, &p.Active, &p.RemovedBy, &p.RemovedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Punishment{}, shared.ErrNotFound
		}
		return Punishment{}, storeErr("punishment: scan", err)
	}
	p.Kind = Kind(kind)
	return p, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
