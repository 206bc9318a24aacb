package rank

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// PlayerSource supplies the per-player inputs to resolution: the player's
// rank and their explicit grant/revoke overrides.
type PlayerSource interface {
	RankID(ctx context.Context, playerID string) (string, error)
	Overrides(ctx context.Context, playerID string) (map[string]bool, error)
}

// Resolver computes effective permission sets. Resolved sets are memoized
// per player and recomputed lazily after invalidation; a rank-catalog update
// event invalidates every memoized entry.
type Resolver struct {
	catalog *Catalog
	source  PlayerSource

	mu    sync.Mutex
	cache map[string]PermissionSet
}

// NewResolver constructs a resolver over the catalog.
func NewResolver(catalog *Catalog, source PlayerSource) *Resolver {
	return &Resolver{
		catalog: catalog,
		source:  source,
		cache:   make(map[string]PermissionSet),
	}
}

// Resolve returns the effective permission set for a player: the union of
// the rank chain's grants walked root to leaf (a revoke beats a grant at the
// same level), then the player's explicit overrides on top.
func (r *Resolver) Resolve(ctx context.Context, playerID string) (PermissionSet, error) {
	r.mu.Lock()
	if set, ok := r.cache[playerID]; ok {
		r.mu.Unlock()
		return set, nil
	}
	r.mu.Unlock()

	rankID, err := r.source.RankID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("rank: resolve %s: %w", playerID, err)
	}
	overrides, err := r.source.Overrides(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("rank: resolve %s: %w", playerID, err)
	}

	set := make(PermissionSet)
	for _, rk := range r.catalog.Chain(rankID) {
		grants := make([]string, 0, len(rk.Permissions))
		revokes := make([]string, 0)
		for _, node := range rk.Permissions {
			if rest, ok := strings.CutPrefix(node, "-"); ok {
				revokes = append(revokes, rest)
			} else {
				grants = append(grants, node)
			}
		}
		for _, node := range grants {
			set[node] = struct{}{}
		}
		// Revokes after grants so an explicit revoke wins within a level.
		for _, node := range revokes {
			delete(set, node)
		}
	}
	for node, allowed := range overrides {
		if allowed {
			set[node] = struct{}{}
		} else {
			delete(set, node)
		}
	}

	r.mu.Lock()
	r.cache[playerID] = set
	r.mu.Unlock()
	return set, nil
}

// Invalidate drops the memoized set for one player.
func (r *Resolver) Invalidate(playerID string) {
	r.mu.Lock()
	delete(r.cache, playerID)
	r.mu.Unlock()
}

// InvalidateAll drops every memoized set; used on catalog updates.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]PermissionSet)
	r.mu.Unlock()
}
