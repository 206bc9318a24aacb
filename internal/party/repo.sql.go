package party

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// Repository provides PostgreSQL backed persistence for parties.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a party with its leader as first member.
func (r *Repository) Insert(ctx context.Context, p Party) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("party: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx,
		`INSERT INTO parties (id, leader_id, created_at, disbanded_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.LeaderID, p.CreatedAt, p.DisbandedAt); err != nil {
		return storeErr("party: insert", err)
	}
	for _, m := range p.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO party_members (party_id, player_id, joined_at) VALUES ($1, $2, $3)`,
			p.ID, m.PlayerID, m.JoinedAt); err != nil {
			return storeErr("party: insert member", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("party: commit", err)
	}
	return nil
}

// Find returns the party with members in join order.
func (r *Repository) Find(ctx context.Context, id string) (Party, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, leader_id, created_at, disbanded_at FROM parties WHERE id = $1`, id)
	var p Party
	if err := row.Scan(&p.ID, &p.LeaderID, &p.CreatedAt, &p.DisbandedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, shared.ErrNotFound
		}
		return Party{}, storeErr("party: find", err)
	}
	members, err := r.members(ctx, id)
	if err != nil {
		return Party{}, err
	}
	p.Members = members
	return p, nil
}

// FindByMember returns the active party containing the player.
func (r *Repository) FindByMember(ctx context.Context, playerID string) (Party, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT p.id FROM parties p
		JOIN party_members m ON m.party_id = p.id
		WHERE m.player_id = $1 AND p.disbanded_at IS NULL`, playerID)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, shared.ErrNotFound
		}
		return Party{}, storeErr("party: find by member", err)
	}
	return r.Find(ctx, id)
}

// AddMember appends a member; idempotent for an existing member.
func (r *Repository) AddMember(ctx context.Context, partyID, playerID string, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO party_members (party_id, player_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (party_id, player_id) DO NOTHING`,
		partyID, playerID, at); err != nil {
		return storeErr("party: add member", err)
	}
	return nil
}

// RemoveMember drops a member from the party.
func (r *Repository) RemoveMember(ctx context.Context, partyID, playerID string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM party_members WHERE party_id = $1 AND player_id = $2`,
		partyID, playerID); err != nil {
		return storeErr("party: remove member", err)
	}
	return nil
}

// SetLeader transfers leadership.
func (r *Repository) SetLeader(ctx context.Context, partyID, leaderID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE parties SET leader_id = $2 WHERE id = $1 AND disbanded_at IS NULL`, partyID, leaderID)
	if err != nil {
		return storeErr("party: set leader", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Disband soft-disbands the party and clears membership.
func (r *Repository) Disband(ctx context.Context, partyID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("party: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx,
		`UPDATE parties SET disbanded_at = $2 WHERE id = $1 AND disbanded_at IS NULL`, partyID, at); err != nil {
		return storeErr("party: disband", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM party_members WHERE party_id = $1`, partyID); err != nil {
		return storeErr("party: disband members", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("party: commit", err)
	}
	return nil
}

func (r *Repository) members(ctx context.Context, partyID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT player_id, joined_at FROM party_members
		WHERE party_id = $1 ORDER BY joined_at, player_id`, partyID)
	if err != nil {
		return nil, storeErr("party: members", err)
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.PlayerID, &m.JoinedAt); err != nil {
			return nil, storeErr("party: members scan", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("party: members rows", err)
	}
	return members, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
