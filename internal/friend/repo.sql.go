package friend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// ErrAlreadyExists indicates the pair already has a relationship row.
var ErrAlreadyExists = errors.New("friend relationship already exists")

// Repository provides PostgreSQL backed persistence for friendships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a pending relationship.
func (r *Repository) Insert(ctx context.Context, rel Relationship) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO friendships (low_id, high_id, status, requested_by, requested_at, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rel.LowID, rel.HighID, string(rel.Status), rel.RequestedBy, rel.RequestedAt, rel.AcceptedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return storeErr("friend: insert", err)
	}
	return nil
}

// Accept marks the pending relationship accepted and returns it.
func (r *Repository) Accept(ctx context.Context, low, high string, at time.Time) (Relationship, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE friendships SET status = $3, accepted_at = $4
		WHERE low_id = $1 AND high_id = $2 AND status = $5
		RETURNING low_id, high_id, status, requested_by, requested_at, accepted_at`,
		low, high, string(StatusAccepted), at, string(StatusPending))
	return scanRelationship(row)
}

// Delete removes the relationship row entirely.
func (r *Repository) Delete(ctx context.Context, low, high string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM friendships WHERE low_id = $1 AND high_id = $2`, low, high)
	if err != nil {
		return storeErr("friend: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Find returns the relationship for a normalized pair.
func (r *Repository) Find(ctx context.Context, low, high string) (Relationship, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT low_id, high_id, status, requested_by, requested_at, accepted_at
		FROM friendships WHERE low_id = $1 AND high_id = $2`, low, high)
	return scanRelationship(row)
}

// ListByPlayer returns every relationship involving the player.
func (r *Repository) ListByPlayer(ctx context.Context, playerID string) ([]Relationship, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT low_id, high_id, status, requested_by, requested_at, accepted_at
		FROM friendships WHERE low_id = $1 OR high_id = $1
		ORDER BY requested_at`, playerID)
	if err != nil {
		return nil, storeErr("friend: list", err)
	}
	defer rows.Close()
	var rels []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("friend: list rows", err)
	}
	return rels, nil
}

func scanRelationship(row pgx.Row) (Relationship, error) {
	var rel Relationship
	var status string
	err := row.Scan(&rel.LowID, &rel.HighID, &status, &rel.RequestedBy, &rel.RequestedAt, &rel.AcceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Relationship{}, shared.ErrNotFound
		}
		return Relationship{}, storeErr("friend: scan", err)
	}
	rel.Status = Status(status)
	return rel, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
