package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianmc/meridian-core/internal/shared"
)

// Repository provides PostgreSQL backed persistence for profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `id, name, name_lower, first_seen_at, last_seen_at, rank_id, coins, prefs, archived_at`

// FindByID returns the profile for an identity.
func (r *Repository) FindByID(ctx context.Context, id string) (Profile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM players WHERE id = $1`, id)
	return scanProfile(row)
}

// FindByName returns the profile holding the lowercase lookup name.
func (r *Repository) FindByName(ctx context.Context, name string) (Profile, error) {
	_, lower := NormalizeName(name)
	row := r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM players WHERE name_lower = $1`, lower)
	return scanProfile(row)
}

// Upsert inserts or updates the profile by identity. Any other row holding
// the same lowercase name is renamed to a placeholder first, so the lookup
// key stays unique across name changes.
func (r *Repository) Upsert(ctx context.Context, p Profile) error {
	prefs, err := json.Marshal(p.Prefs)
	if err != nil {
		return fmt.Errorf("player: marshal prefs: %w", err)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("player: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	placeholder := fmt.Sprintf(">Player%d", time.Now().UnixNano()%100000)
	if _, err := tx.Exec(ctx,
		`UPDATE players SET name = $1, name_lower = lower($1) WHERE name_lower = $2 AND id <> $3`,
		placeholder, p.NameLower, p.ID); err != nil {
		return storeErr("player: release name", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO players (id, name, name_lower, first_seen_at, last_seen_at, rank_id, coins, prefs, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_lower = EXCLUDED.name_lower,
			last_seen_at = EXCLUDED.last_seen_at,
			rank_id = EXCLUDED.rank_id,
			coins = EXCLUDED.coins,
			prefs = EXCLUDED.prefs,
			archived_at = EXCLUDED.archived_at`,
		p.ID, p.Name, p.NameLower, p.FirstSeenAt, p.LastSeenAt, p.RankID, p.Coins, prefs, p.ArchivedAt); err != nil {
		return storeErr("player: upsert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("player: commit", err)
	}
	return nil
}

// Touch bumps last_seen_at for an identity.
func (r *Repository) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE players SET last_seen_at = $2 WHERE id = $1`, id, at); err != nil {
		return storeErr("player: touch", err)
	}
	return nil
}

// FlushSeen folds live session heartbeats into last_seen_at so the profile
// row tracks presence without a write per heartbeat.
func (r *Repository) FlushSeen(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE players p
		SET last_seen_at = s.heartbeat_at
		FROM sessions s
		WHERE s.player_id = p.id AND s.heartbeat_at > p.last_seen_at`)
	if err != nil {
		return 0, storeErr("player: flush seen", err)
	}
	return tag.RowsAffected(), nil
}

// Archive soft-archives the profile.
func (r *Repository) Archive(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE players SET archived_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return storeErr("player: archive", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Overrides returns the player's per-node permission overrides.
func (r *Repository) Overrides(ctx context.Context, id string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT node, allowed FROM player_permissions WHERE player_id = $1`, id)
	if err != nil {
		return nil, storeErr("player: overrides", err)
	}
	defer rows.Close()
	overrides := make(map[string]bool)
	for rows.Next() {
		var node string
		var allowed bool
		if err := rows.Scan(&node, &allowed); err != nil {
			return nil, storeErr("player: overrides scan", err)
		}
		overrides[node] = allowed
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("player: overrides rows", err)
	}
	return overrides, nil
}

// SetOverride grants or revokes a single permission node for a player.
func (r *Repository) SetOverride(ctx context.Context, id, node string, allowed bool) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO player_permissions (player_id, node, allowed) VALUES ($1, $2, $3)
		ON CONFLICT (player_id, node) DO UPDATE SET allowed = EXCLUDED.allowed`,
		id, node, allowed); err != nil {
		return storeErr("player: set override", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	var prefs []byte
	err := row.Scan(&p.ID, &p.Name, &p.NameLower, &p.FirstSeenAt, &p.LastSeenAt,
		&p.RankID, &p.Coins, &prefs, &p.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, storeErr("player: scan", err)
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Prefs); err != nil {
			return Profile{}, fmt.Errorf("player: decode prefs: %w", err)
		}
	}
	return p, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
