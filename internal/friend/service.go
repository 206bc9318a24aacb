package friend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// ErrSelfRelation indicates a player targeted themselves.
var ErrSelfRelation = errors.New("cannot befriend yourself")

// RepositoryPort defines data access methods for friendships.
type RepositoryPort interface {
	Insert(ctx context.Context, rel Relationship) error
	Accept(ctx context.Context, low, high string, at time.Time) (Relationship, error)
	Delete(ctx context.Context, low, high string) error
	Find(ctx context.Context, low, high string) (Relationship, error)
	ListByPlayer(ctx context.Context, playerID string) ([]Relationship, error)
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error)
}

// CachePort is the slice of the state cache the coordinator writes back to.
type CachePort interface {
	ApplyFriend(origin string, seq uint64, ev Event) bool
}

// Service coordinates friend relationships, write-then-publish like every
// other mutation path.
type Service struct {
	repo   RepositoryPort
	bus    EventPublisher
	cache  CachePort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, bus EventPublisher, cache CachePort, logger *slog.Logger) *Service {
	return &Service{repo: repo, bus: bus, cache: cache, logger: logger, now: time.Now}
}

// Request creates a pending relationship from requester to target.
func (s *Service) Request(ctx context.Context, requesterID, targetID string) (Relationship, error) {
	if requesterID == targetID {
		return Relationship{}, ErrSelfRelation
	}
	low, high := NormalizePair(requesterID, targetID)
	rel := Relationship{
		LowID:       low,
		HighID:      high,
		Status:      StatusPending,
		RequestedBy: requesterID,
		RequestedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, rel); err != nil {
		return Relationship{}, err
	}
	if err := s.announce(ctx, rel, false); err != nil {
		return Relationship{}, err
	}
	return rel, nil
}

// Accept marks the pending relationship accepted; only the player who did
// not send the request may accept it.
func (s *Service) Accept(ctx context.Context, accepterID, otherID string) (Relationship, error) {
	low, high := NormalizePair(accepterID, otherID)
	existing, err := s.repo.Find(ctx, low, high)
	if err != nil {
		return Relationship{}, err
	}
	if existing.RequestedBy == accepterID {
		return Relationship{}, shared.ErrValidation
	}
	rel, err := s.repo.Accept(ctx, low, high, s.now().UTC())
	if err != nil {
		return Relationship{}, err
	}
	if err := s.announce(ctx, rel, false); err != nil {
		return Relationship{}, err
	}
	s.logger.Info("friendship accepted",
		slog.String("low", rel.LowID), slog.String("high", rel.HighID))
	return rel, nil
}

// Remove deletes the relationship; either member may remove it, in any
// status (decline and unfriend are the same operation).
func (s *Service) Remove(ctx context.Context, playerID, otherID string) error {
	low, high := NormalizePair(playerID, otherID)
	rel, err := s.repo.Find(ctx, low, high)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, low, high); err != nil {
		return err
	}
	return s.announce(ctx, rel, true)
}

// List returns every relationship involving the player.
func (s *Service) List(ctx context.Context, playerID string) ([]Relationship, error) {
	return s.repo.ListByPlayer(ctx, playerID)
}

func (s *Service) announce(ctx context.Context, rel Relationship, removed bool) error {
	ev := Event{Relationship: rel, Removed: removed}
	env, err := s.bus.Publish(ctx, shared.TopicFriendChanged, rel.PairKey(), events.TypeFriendUpdated, ev)
	if err != nil {
		return err
	}
	s.cache.ApplyFriend(env.Origin, env.Seq, ev)
	return nil
}
