package state

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/friend"
	"github.com/meridianmc/meridian-core/internal/observability"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/session"
	"github.com/meridianmc/meridian-core/internal/shared"
)

const shardCount = 64

// Loader rebuilds a player's full state from the store on a cache miss.
type Loader interface {
	Load(ctx context.Context, playerID string) (PlayerState, error)
}

type entry struct {
	state    PlayerState
	syncedAt time.Time
	lastHit  time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Cache is the process-wide player state cache. Entries are sharded by
// identity so requests touching different players never contend; mutations
// to one player's record serialize on its shard lock. Writes are gated by
// per-origin sequence numbers, which makes duplicate event delivery a no-op.
type Cache struct {
	shards    [shardCount]*shard
	loader    Loader
	gate      *events.SequenceGate
	staleness time.Duration
	idleTTL   time.Duration
	group     singleflight.Group
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// CacheOptions configure staleness and eviction policy.
type CacheOptions struct {
	Staleness time.Duration
	IdleTTL   time.Duration
}

// NewCache constructs the cache over a store loader.
func NewCache(loader Loader, opts CacheOptions, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	c := &Cache{
		loader:    loader,
		gate:      events.NewSequenceGate(),
		staleness: opts.Staleness,
		idleTTL:   opts.IdleTTL,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	if c.staleness <= 0 {
		c.staleness = 30 * time.Second
	}
	if c.idleTTL <= 0 {
		c.idleTTL = 15 * time.Minute
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return c
}

// Gate exposes the sequence gate shared by the engines and the bus applier,
// so a locally applied write and its echoed event are judged by one history.
func (c *Cache) Gate() *events.SequenceGate {
	return c.gate
}

func (c *Cache) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the player's state, serving resident fresh entries without any
// I/O and falling back to the store otherwise. Concurrent misses for the
// same identity coalesce into one store round trip. A resident entry is
// still served when the refresh fails -- a cache hit never fails on store
// unavailability.
func (c *Cache) Get(ctx context.Context, playerID string) (PlayerState, error) {
	sh := c.shardFor(playerID)
	now := c.now()

	sh.mu.Lock()
	if e, ok := sh.entries[playerID]; ok && now.Sub(e.syncedAt) < c.staleness {
		e.lastHit = now
		state := e.state.clone()
		sh.mu.Unlock()
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return state, nil
	}
	sh.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	loaded, err, _ := c.group.Do(playerID, func() (any, error) {
		st, err := c.loader.Load(ctx, playerID)
		if err != nil {
			return nil, err
		}
		c.store(playerID, st)
		return st, nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return PlayerState{}, err
		}
		// Serve the stale resident copy rather than failing the read.
		sh.mu.Lock()
		e, ok := sh.entries[playerID]
		if !ok {
			sh.mu.Unlock()
			return PlayerState{}, err
		}
		e.lastHit = c.now()
		state := e.state.clone()
		sh.mu.Unlock()
		c.logger.Warn("serving stale state, refresh failed",
			slog.String("player", playerID), slog.Any("error", err))
		return state, nil
	}
	return loaded.(PlayerState).clone(), nil
}

// Peek returns the resident entry without any store fallback.
func (c *Cache) Peek(playerID string) (PlayerState, bool) {
	sh := c.shardFor(playerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[playerID]
	if !ok {
		return PlayerState{}, false
	}
	e.lastHit = c.now()
	return e.state.clone(), true
}

// Put replaces the entry for an identity when (origin, seq) is newer than
// anything applied so far; otherwise it is a no-op. Reports whether the
// write was admitted.
func (c *Cache) Put(playerID string, st PlayerState, origin string, seq uint64) bool {
	if !c.gate.Admit(origin, playerID, seq) {
		return false
	}
	c.store(playerID, st)
	return true
}

func (c *Cache) store(playerID string, st PlayerState) {
	sh := c.shardFor(playerID)
	now := c.now()
	sh.mu.Lock()
	sh.entries[playerID] = &entry{state: st.clone(), syncedAt: now, lastHit: now}
	sh.mu.Unlock()
}

// Mutate admits (origin, seq) for entity and, when the player is resident,
// applies fn to the cached state. A non-resident player is left absent; the
// next read rebuilds full state from the store. Reports admission, not
// residency.
func (c *Cache) Mutate(origin string, seq uint64, entity, playerID string, fn func(*PlayerState)) bool {
	if !c.gate.Admit(origin, entity, seq) {
		return false
	}
	c.mutateResident(playerID, fn)
	return true
}

// MutateMany admits (origin, seq) once for entity and applies fn to every
// resident player in ids. Used for party and friend events whose single
// entity spans several player entries.
func (c *Cache) MutateMany(origin string, seq uint64, entity string, ids []string, fn func(playerID string, st *PlayerState)) bool {
	if !c.gate.Admit(origin, entity, seq) {
		return false
	}
	for _, id := range ids {
		id := id
		c.mutateResident(id, func(st *PlayerState) { fn(id, st) })
	}
	return true
}

func (c *Cache) mutateResident(playerID string, fn func(*PlayerState)) {
	sh := c.shardFor(playerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[playerID]
	if !ok {
		return
	}
	st := e.state.clone()
	fn(&st)
	e.state = st
	e.syncedAt = c.now()
}

// ApplyProfile folds a profile write into the cache.
func (c *Cache) ApplyProfile(origin string, seq uint64, profile player.Profile) bool {
	return c.Mutate(origin, seq, profile.ID, profile.ID, func(st *PlayerState) {
		st.Profile = profile
	})
}

// ApplyPunishment folds an issued or revoked record into the target's entry.
// The gate entity is the record id, so concurrent records from different
// origins never shadow each other.
func (c *Cache) ApplyPunishment(origin string, seq uint64, record punishment.Punishment) bool {
	return c.Mutate(origin, seq, record.ID, record.TargetID, func(st *PlayerState) {
		for i := range st.Punishments {
			if st.Punishments[i].ID == record.ID {
				st.Punishments[i] = record
				return
			}
		}
		st.Punishments = append(st.Punishments, record)
	})
}

// ApplySessionConnect records the new owning server for a player.
func (c *Cache) ApplySessionConnect(origin string, seq uint64, sess session.Session) bool {
	return c.Mutate(origin, seq, sess.PlayerID, sess.PlayerID, func(st *PlayerState) {
		s := sess
		st.Session = &s
	})
}

// ApplySessionClose clears the session only while the closing server still
// owns it; a close from a superseded server must not erase the newer owner.
func (c *Cache) ApplySessionClose(origin string, seq uint64, sess session.Session) bool {
	return c.Mutate(origin, seq, sess.PlayerID, sess.PlayerID, func(st *PlayerState) {
		if st.Session != nil && st.Session.ServerID == sess.ServerID {
			st.Session = nil
		}
	})
}

// ApplyParty folds a party mutation into every affected resident entry.
func (c *Cache) ApplyParty(origin string, seq uint64, ev party.Event) bool {
	ids := append(ev.Party.MemberIDs(), ev.Removed...)
	disbanded := ev.Party.DisbandedAt != nil
	members := make(map[string]bool, len(ev.Party.Members))
	if !disbanded {
		for _, m := range ev.Party.Members {
			members[m.PlayerID] = true
		}
	}
	return c.MutateMany(origin, seq, ev.Party.ID, ids, func(playerID string, st *PlayerState) {
		if members[playerID] {
			st.PartyID = ev.Party.ID
		} else if st.PartyID == ev.Party.ID {
			st.PartyID = ""
		}
	})
}

// ApplyFriend folds a friendship mutation into both members' entries.
func (c *Cache) ApplyFriend(origin string, seq uint64, ev friend.Event) bool {
	rel := ev.Relationship
	ids := []string{rel.LowID, rel.HighID}
	return c.MutateMany(origin, seq, rel.PairKey(), ids, func(playerID string, st *PlayerState) {
		other := rel.Other(playerID)
		st.FriendIDs = removeString(st.FriendIDs, other)
		if !ev.Removed && rel.Status == friend.StatusAccepted {
			st.FriendIDs = append(st.FriendIDs, other)
		}
	})
}

// Punishments returns the target's records through the cache.
func (c *Cache) Punishments(ctx context.Context, playerID string) ([]punishment.Punishment, error) {
	st, err := c.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return st.Punishments, nil
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(playerID string) {
	sh := c.shardFor(playerID)
	sh.mu.Lock()
	delete(sh.entries, playerID)
	sh.mu.Unlock()
	c.gate.Forget(playerID)
}

// SweepExpired flips Active off on resident punishment records whose expiry
// has just passed. Expiry is a pure function of time, so every process
// converges independently without a store write or broadcast.
func (c *Cache) SweepExpired(now time.Time) int {
	swept := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			changed := false
			for i := range e.state.Punishments {
				p := &e.state.Punishments[i]
				if p.Active && p.Expired(now) {
					p.Active = false
					changed = true
					swept++
				}
			}
			if changed {
				e.syncedAt = now
			}
		}
		sh.mu.Unlock()
	}
	return swept
}

// EvictIdle drops entries with no active session and no hit within the idle
// TTL. Returns the number of entries evicted.
func (c *Cache) EvictIdle(now time.Time) int {
	evicted := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			if e.state.Online() {
				continue
			}
			if now.Sub(e.lastHit) >= c.idleTTL {
				delete(sh.entries, id)
				c.gate.Forget(id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	if evicted > 0 && c.metrics != nil {
		c.metrics.CacheEvictions.Add(float64(evicted))
	}
	return evicted
}

// RunEviction periodically evicts idle entries until ctx is cancelled.
func (c *Cache) RunEviction(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n := c.EvictIdle(now); n > 0 {
				c.logger.Debug("evicted idle state entries", slog.Int("count", n))
			}
		}
	}
}

// Enforced returns the punishment of the given kind currently enforced for a
// player, reading through the cache.
func (c *Cache) Enforced(ctx context.Context, playerID string, kind punishment.Kind) (punishment.Punishment, bool, error) {
	st, err := c.Get(ctx, playerID)
	if err != nil {
		return punishment.Punishment{}, false, err
	}
	p, ok := punishment.Enforced(st.Punishments, kind, c.now())
	return p, ok, nil
}

// Owner returns the server currently owning the player's session, reading
// through the cache.
func (c *Cache) Owner(ctx context.Context, playerID string) (session.Session, error) {
	st, err := c.Get(ctx, playerID)
	if err != nil {
		return session.Session{}, err
	}
	if st.Session == nil {
		return session.Session{}, fmt.Errorf("state: owner of %s: %w", playerID, shared.ErrNotFound)
	}
	return *st.Session, nil
}
