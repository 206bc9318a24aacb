package punishment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// RepositoryPort defines data access methods for punishments.
type RepositoryPort interface {
	Insert(ctx context.Context, p Punishment) error
	MarkRemoved(ctx context.Context, id, revoker string, at time.Time) (Punishment, error)
	FindByID(ctx context.Context, id string) (Punishment, error)
	ListByTarget(ctx context.Context, targetID string) ([]Punishment, error)
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error)
}

// CachePort is the slice of the state cache the engine writes back to.
type CachePort interface {
	ApplyPunishment(origin string, seq uint64, record Punishment) bool
	Punishments(ctx context.Context, playerID string) ([]Punishment, error)
	SweepExpired(now time.Time) int
}

// Pusher sends urgent invalidations ahead of normal bus latency.
type Pusher interface {
	Broadcast(env events.Envelope)
}

// Engine issues, queries and revokes punishments. Writes go to the store
// first, then the bus, then the local cache; the issuing process never
// reports success for a record invisible to the store.
type Engine struct {
	repo   RepositoryPort
	bus    EventPublisher
	cache  CachePort
	pusher Pusher
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs the engine. pusher may be nil.
func NewEngine(repo RepositoryPort, bus EventPublisher, cache CachePort, pusher Pusher, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, bus: bus, cache: cache, pusher: pusher, logger: logger, now: time.Now}
}

// IssueParams describe a new punishment.
type IssueParams struct {
	TargetID  string
	IssuerID  string
	Kind      Kind
	Reason    string
	ExpiresAt *time.Time
}

// Issue appends a punishment record. Both members of a concurrent
// double-issue succeed; enforcement converges through Enforced selection.
func (e *Engine) Issue(ctx context.Context, params IssueParams) (Punishment, error) {
	if !params.Kind.Valid() {
		return Punishment{}, fmt.Errorf("punishment: kind %q: %w", params.Kind, shared.ErrValidation)
	}
	record := Punishment{
		ID:        uuid.NewString(),
		TargetID:  params.TargetID,
		IssuerID:  params.IssuerID,
		Kind:      params.Kind,
		Reason:    params.Reason,
		IssuedAt:  e.now().UTC(),
		ExpiresAt: params.ExpiresAt,
		Active:    true,
	}
	if err := e.repo.Insert(ctx, record); err != nil {
		return Punishment{}, err
	}
	env, err := e.bus.Publish(ctx, shared.TopicPunishmentIssued, record.TargetID, events.TypePunishmentIssued, record)
	if err != nil {
		// The durable write stands; the next read self-heals from the store.
		return Punishment{}, err
	}
	e.cache.ApplyPunishment(env.Origin, env.Seq, record)
	e.logger.Info("punishment issued",
		slog.String("id", record.ID),
		slog.String("target", record.TargetID),
		slog.String("kind", string(record.Kind)))

	if record.Kind == KindBan && e.pusher != nil {
		if kick, err := e.bus.Publish(ctx, shared.TopicPunishmentIssued, record.TargetID, events.TypeForceKick, record); err == nil {
			e.pusher.Broadcast(kick)
		} else {
			e.logger.Warn("force-kick publish failed", slog.Any("error", err))
		}
	}
	return record, nil
}

// Revoke marks a record removed, same write-then-publish order as Issue.
func (e *Engine) Revoke(ctx context.Context, id, revoker string) (Punishment, error) {
	record, err := e.repo.MarkRemoved(ctx, id, revoker, e.now().UTC())
	if err != nil {
		return Punishment{}, err
	}
	env, err := e.bus.Publish(ctx, shared.TopicPunishmentRevoked, record.TargetID, events.TypePunishmentRevoked, record)
	if err != nil {
		return Punishment{}, err
	}
	e.cache.ApplyPunishment(env.Origin, env.Seq, record)
	e.logger.Info("punishment revoked",
		slog.String("id", record.ID), slog.String("revoker", revoker))
	return record, nil
}

// IsActive reports whether a punishment of the given kind is currently
// enforced for the target. A cache-resident target needs no store I/O.
func (e *Engine) IsActive(ctx context.Context, targetID string, kind Kind) (bool, error) {
	records, err := e.cache.Punishments(ctx, targetID)
	if err != nil {
		return false, err
	}
	_, ok := Enforced(records, kind, e.now())
	return ok, nil
}

// Enforced returns the single punishment of the given kind affecting the
// target, if any.
func (e *Engine) Enforced(ctx context.Context, targetID string, kind Kind) (Punishment, bool, error) {
	records, err := e.cache.Punishments(ctx, targetID)
	if err != nil {
		return Punishment{}, false, err
	}
	p, ok := Enforced(records, kind, e.now())
	return p, ok, nil
}

// History returns the full append-only audit trail from the store.
func (e *Engine) History(ctx context.Context, targetID string) ([]Punishment, error) {
	return e.repo.ListByTarget(ctx, targetID)
}

// RunExpirySweep periodically flips just-expired records inactive in the
// local cache. Expiry is a pure function of time, so no store write or
// broadcast is needed for processes to converge.
func (e *Engine) RunExpirySweep(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n := e.cache.SweepExpired(now); n > 0 {
				e.logger.Debug("expired punishments swept", slog.Int("count", n))
			}
		}
	}
}
