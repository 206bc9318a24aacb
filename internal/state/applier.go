package state

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/friend"
	"github.com/meridianmc/meridian-core/internal/observability"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/rank"
	"github.com/meridianmc/meridian-core/internal/session"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// RankStore supplies the rank catalog from the durable store.
type RankStore interface {
	ListRanks(ctx context.Context) ([]rank.Rank, error)
}

// Applier subscribes to every event topic and folds events into the local
// cache. The originator's own events arrive here too; the sequence gate has
// already seen them during the local apply, so the echo is discarded.
type Applier struct {
	cache    *Cache
	catalog  *rank.Catalog
	ranks    RankStore
	resolver *rank.Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewApplier constructs the applier.
func NewApplier(cache *Cache, catalog *rank.Catalog, ranks RankStore, resolver *rank.Resolver, logger *slog.Logger, metrics *observability.Metrics) *Applier {
	return &Applier{cache: cache, catalog: catalog, ranks: ranks, resolver: resolver, logger: logger, metrics: metrics}
}

// Register wires every topic handler onto the subscriber.
func (a *Applier) Register(sub *events.Subscriber) {
	sub.Handle(shared.TopicProfileChanged, a.onProfile)
	sub.Handle(shared.TopicPunishmentIssued, a.onPunishment(shared.TopicPunishmentIssued))
	sub.Handle(shared.TopicPunishmentRevoked, a.onPunishment(shared.TopicPunishmentRevoked))
	sub.Handle(shared.TopicSessionChanged, a.onSession)
	sub.Handle(shared.TopicPartyChanged, a.onParty)
	sub.Handle(shared.TopicFriendChanged, a.onFriend)
	sub.Handle(shared.TopicRankCatalogChanged, a.onRankCatalog)
}

func (a *Applier) count(topic string, applied bool) {
	if a.metrics == nil {
		return
	}
	if applied {
		a.metrics.EventsApplied.WithLabelValues(topic).Inc()
	} else {
		a.metrics.EventsDiscarded.WithLabelValues(topic).Inc()
	}
}

func (a *Applier) onProfile(ctx context.Context, env events.Envelope) error {
	if env.Type == events.TypeProfileArchived {
		// Archived identities leave the cache entirely instead of folding.
		a.cache.Invalidate(env.EntityID)
		a.resolver.Invalidate(env.EntityID)
		a.count(shared.TopicProfileChanged, true)
		return nil
	}
	var profile player.Profile
	if err := env.DecodePayload(&profile); err != nil {
		return fmt.Errorf("state: decode profile event: %w", err)
	}
	applied := a.cache.ApplyProfile(env.Origin, env.Seq, profile)
	// Invalidate even when the gate discarded the echo of a local write: the
	// local apply path updates the cache but not the memoized permissions.
	a.resolver.Invalidate(env.EntityID)
	a.count(shared.TopicProfileChanged, applied)
	return nil
}

func (a *Applier) onPunishment(topic string) events.HandlerFunc {
	return func(ctx context.Context, env events.Envelope) error {
		var record punishment.Punishment
		if err := env.DecodePayload(&record); err != nil {
			return fmt.Errorf("state: decode punishment event: %w", err)
		}
		a.count(topic, a.cache.ApplyPunishment(env.Origin, env.Seq, record))
		return nil
	}
}

func (a *Applier) onSession(ctx context.Context, env events.Envelope) error {
	var sess session.Session
	if err := env.DecodePayload(&sess); err != nil {
		return fmt.Errorf("state: decode session event: %w", err)
	}
	var applied bool
	switch env.Type {
	case events.TypeSessionConnected:
		applied = a.cache.ApplySessionConnect(env.Origin, env.Seq, sess)
	case events.TypeSessionClosed:
		applied = a.cache.ApplySessionClose(env.Origin, env.Seq, sess)
	default:
		a.logger.Warn("unknown session event type", slog.String("type", env.Type))
		return nil
	}
	a.count(shared.TopicSessionChanged, applied)
	return nil
}

func (a *Applier) onParty(ctx context.Context, env events.Envelope) error {
	var ev party.Event
	if err := env.DecodePayload(&ev); err != nil {
		return fmt.Errorf("state: decode party event: %w", err)
	}
	a.count(shared.TopicPartyChanged, a.cache.ApplyParty(env.Origin, env.Seq, ev))
	return nil
}

func (a *Applier) onFriend(ctx context.Context, env events.Envelope) error {
	var ev friend.Event
	if err := env.DecodePayload(&ev); err != nil {
		return fmt.Errorf("state: decode friend event: %w", err)
	}
	a.count(shared.TopicFriendChanged, a.cache.ApplyFriend(env.Origin, env.Seq, ev))
	return nil
}

func (a *Applier) onRankCatalog(ctx context.Context, env events.Envelope) error {
	ranks, err := a.ranks.ListRanks(ctx)
	if err != nil {
		return fmt.Errorf("state: reload rank catalog: %w", err)
	}
	if err := a.catalog.Replace(ranks); err != nil {
		return fmt.Errorf("state: replace rank catalog: %w", err)
	}
	// Memoized permission sets are cheap to rebuild; dump them all and let
	// the next resolve recompute lazily.
	a.resolver.InvalidateAll()
	a.count(shared.TopicRankCatalogChanged, true)
	a.logger.Info("rank catalog reloaded", slog.Int("ranks", a.catalog.Len()))
	return nil
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
