package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/observability"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// RepositoryPort defines data access methods for sessions.
type RepositoryPort interface {
	Upsert(ctx context.Context, s Session) error
	Delete(ctx context.Context, playerID, serverID string) (int64, error)
	Find(ctx context.Context, playerID string) (Session, error)
	Heartbeat(ctx context.Context, playerID, serverID string, at time.Time) error
	ReapIdle(ctx context.Context, cutoff time.Time) ([]Session, error)
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error)
}

// CachePort is the slice of the state cache the registry reads and writes.
type CachePort interface {
	ApplySessionConnect(origin string, seq uint64, s Session) bool
	ApplySessionClose(origin string, seq uint64, s Session) bool
	Owner(ctx context.Context, playerID string) (Session, error)
}

// Registry tracks which server owns each online player. Conflicting connects
// resolve last-writer-wins by event sequence, never by wall clock.
type Registry struct {
	repo    RepositoryPort
	bus     EventPublisher
	cache   CachePort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRegistry constructs the registry. metrics may be nil.
func NewRegistry(repo RepositoryPort, bus EventPublisher, cache CachePort, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{repo: repo, bus: bus, cache: cache, logger: logger, metrics: metrics, now: time.Now}
}

// Connect records serverID as the player's owner, superseding any previous
// session for the identity.
func (r *Registry) Connect(ctx context.Context, playerID, serverID string) (Session, error) {
	now := r.now().UTC()
	sess := Session{PlayerID: playerID, ServerID: serverID, ConnectedAt: now, HeartbeatAt: now}
	if err := r.repo.Upsert(ctx, sess); err != nil {
		return Session{}, err
	}
	env, err := r.bus.Publish(ctx, shared.TopicSessionChanged, playerID, events.TypeSessionConnected, sess)
	if err != nil {
		return Session{}, err
	}
	r.cache.ApplySessionConnect(env.Origin, env.Seq, sess)
	return sess, nil
}

// Disconnect removes the session only while serverID still owns it. A
// disconnect racing a newer connect is a no-op: success to the caller, a
// conflict in the log.
func (r *Registry) Disconnect(ctx context.Context, playerID, serverID string) error {
	removed, err := r.repo.Delete(ctx, playerID, serverID)
	if err != nil {
		return err
	}
	if removed == 0 {
		r.logger.Info("stale disconnect ignored",
			slog.String("player", playerID), slog.String("server", serverID))
		if r.metrics != nil {
			r.metrics.SessionConflicts.Inc()
		}
		return nil
	}
	sess := Session{PlayerID: playerID, ServerID: serverID}
	env, err := r.bus.Publish(ctx, shared.TopicSessionChanged, playerID, events.TypeSessionClosed, sess)
	if err != nil {
		return err
	}
	r.cache.ApplySessionClose(env.Origin, env.Seq, sess)
	return nil
}

// Heartbeat refreshes the owning server's liveness mark.
func (r *Registry) Heartbeat(ctx context.Context, playerID, serverID string) error {
	return r.repo.Heartbeat(ctx, playerID, serverID, r.now().UTC())
}

// Owner resolves which server currently hosts the player, for party and
// friend cross-server routing.
func (r *Registry) Owner(ctx context.Context, playerID string) (Session, error) {
	return r.cache.Owner(ctx, playerID)
}

// ReapIdle closes sessions whose server stopped heartbeating and publishes
// their closure, so entries owned by a crashed server do not linger.
func (r *Registry) ReapIdle(ctx context.Context, cutoff time.Time) (int, error) {
	reaped, err := r.repo.ReapIdle(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, sess := range reaped {
		env, err := r.bus.Publish(ctx, shared.TopicSessionChanged, sess.PlayerID, events.TypeSessionClosed, sess)
		if err != nil {
			r.logger.Warn("reap publish failed",
				slog.String("player", sess.PlayerID), slog.Any("error", err))
			continue
		}
		r.cache.ApplySessionClose(env.Origin, env.Seq, sess)
	}
	return len(reaped), nil
}
