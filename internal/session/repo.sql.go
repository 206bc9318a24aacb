package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// Repository provides PostgreSQL backed persistence for live sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert records the session for a player, superseding any previous owner.
func (r *Repository) Upsert(ctx context.Context, s Session) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (player_id, server_id, connected_at, heartbeat_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id) DO UPDATE SET
			server_id = EXCLUDED.server_id,
			connected_at = EXCLUDED.connected_at,
			heartbeat_at = EXCLUDED.heartbeat_at`,
		s.PlayerID, s.ServerID, s.ConnectedAt, s.HeartbeatAt); err != nil {
		return storeErr("session: upsert", err)
	}
	return nil
}

// Delete removes the session only while serverID still owns it. Returns the
// number of rows removed; zero means the session was already superseded.
func (r *Repository) Delete(ctx context.Context, playerID, serverID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE player_id = $1 AND server_id = $2`, playerID, serverID)
	if err != nil {
		return 0, storeErr("session: delete", err)
	}
	return tag.RowsAffected(), nil
}

// Find returns the session for a player.
func (r *Repository) Find(ctx context.Context, playerID string) (Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT player_id, server_id, connected_at, heartbeat_at FROM sessions WHERE player_id = $1`, playerID)
	var s Session
	if err := row.Scan(&s.PlayerID, &s.ServerID, &s.ConnectedAt, &s.HeartbeatAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, shared.ErrNotFound
		}
		return Session{}, storeErr("session: find", err)
	}
	return s, nil
}

// Heartbeat refreshes the owning server's liveness mark; a no-op when the
// server no longer owns the session.
func (r *Repository) Heartbeat(ctx context.Context, playerID, serverID string, at time.Time) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE sessions SET heartbeat_at = $3 WHERE player_id = $1 AND server_id = $2`,
		playerID, serverID, at); err != nil {
		return storeErr("session: heartbeat", err)
	}
	return nil
}

// ReapIdle removes sessions whose heartbeat is older than the cutoff and
// returns them so the reaper can publish their closure.
func (r *Repository) ReapIdle(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM sessions WHERE heartbeat_at < $1
		RETURNING player_id, server_id, connected_at, heartbeat_at`, cutoff)
	if err != nil {
		return nil, storeErr("session: reap", err)
	}
	defer rows.Close()
	var reaped []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.PlayerID, &s.ServerID, &s.ConnectedAt, &s.HeartbeatAt); err != nil {
			return nil, storeErr("session: reap scan", err)
		}
		reaped = append(reaped, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("session: reap rows", err)
	}
	return reaped, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
