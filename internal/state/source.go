package state

import "context"

// OverrideStore supplies per-player permission overrides from the store.
type OverrideStore interface {
	Overrides(ctx context.Context, playerID string) (map[string]bool, error)
}

// RankSource adapts the cache and the override store to the permission
// resolver's input port.
type RankSource struct {
	cache     *Cache
	overrides OverrideStore
}

// NewRankSource constructs the adapter.
func NewRankSource(cache *Cache, overrides OverrideStore) *RankSource {
	return &RankSource{cache: cache, overrides: overrides}
}

// RankID returns the player's rank id through the cache.
func (s *RankSource) RankID(ctx context.Context, playerID string) (string, error) {
	st, err := s.cache.Get(ctx, playerID)
	if err != nil {
		return "", err
	}
	return st.Profile.RankID, nil
}

// Overrides returns the player's explicit grant/revoke overrides.
func (s *RankSource) Overrides(ctx context.Context, playerID string) (map[string]bool, error) {
	return s.overrides.Overrides(ctx, playerID)
}
