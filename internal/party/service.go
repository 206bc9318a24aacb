package party

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/shared"
)

var (
	// ErrAlreadyInParty indicates the player already belongs to a party.
	ErrAlreadyInParty = errors.New("player already in a party")
	// ErrNotLeader indicates the acting player does not lead the party.
	ErrNotLeader = errors.New("player is not the party leader")
	// ErrNotMember indicates the player does not belong to the party.
	ErrNotMember = errors.New("player is not a party member")
)

// RepositoryPort defines data access methods for parties.
type RepositoryPort interface {
	Insert(ctx context.Context, p Party) error
	Find(ctx context.Context, id string) (Party, error)
	FindByMember(ctx context.Context, playerID string) (Party, error)
	AddMember(ctx context.Context, partyID, playerID string, at time.Time) error
	RemoveMember(ctx context.Context, partyID, playerID string) error
	SetLeader(ctx context.Context, partyID, leaderID string) error
	Disband(ctx context.Context, partyID string, at time.Time) error
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error)
}

// CachePort is the slice of the state cache the coordinator writes back to.
type CachePort interface {
	ApplyParty(origin string, seq uint64, ev Event) bool
}

// Service coordinates party membership. Every mutation follows
// write-then-publish-then-local-apply; cross-entity transitions are
// independent writes that the next store read self-heals.
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

// Create starts a new party led by leaderID.
func (s *Service) Create(ctx context.Context, leaderID string) (Party, error) {
	if _, err := s.repo.FindByMember(ctx, leaderID); err == nil {
		return Party{}, ErrAlreadyInParty
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Party{}, err
	}
	now := s.now().UTC()
	pty := Party{
		ID:        uuid.NewString(),
		LeaderID:  leaderID,
		Members:   []Member{{PlayerID: leaderID, JoinedAt: now}},
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, pty); err != nil {
		return Party{}, err
	}
	if err := s.announce(ctx, pty, nil, events.TypePartyUpdated); err != nil {
		return Party{}, err
	}
	return pty, nil
}

// Join adds a player to an existing party. Joining a party the player is
// already in is idempotent.
func (s *Service) Join(ctx context.Context, partyID, playerID string) (Party, error) {
	pty, err := s.repo.Find(ctx, partyID)
	if err != nil {
		return Party{}, err
	}
	if pty.DisbandedAt != nil {
		return Party{}, fmt.Errorf("party: join %s: %w", partyID, shared.ErrNotFound)
	}
	if pty.HasMember(playerID) {
		return pty, nil
	}
	if other, err := s.repo.FindByMember(ctx, playerID); err == nil && other.ID != partyID {
		return Party{}, ErrAlreadyInParty
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Party{}, err
	}
	now := s.now().UTC()
	if err := s.repo.AddMember(ctx, partyID, playerID, now); err != nil {
		return Party{}, err
	}
	pty.Members = append(pty.Members, Member{PlayerID: playerID, JoinedAt: now})
	if err := s.announce(ctx, pty, nil, events.TypePartyUpdated); err != nil {
		return Party{}, err
	}
	return pty, nil
}

// Leave removes a player from their party. A leaving leader hands the party
// to the earliest-joined remaining member; the last member out disbands it.
func (s *Service) Leave(ctx context.Context, playerID string) error {
	pty, err := s.repo.FindByMember(ctx, playerID)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, pty.ID, playerID); err != nil {
		return err
	}
	remaining := make([]Member, 0, len(pty.Members))
	for _, m := range pty.Members {
		if m.PlayerID != playerID {
			remaining = append(remaining, m)
		}
	}
	pty.Members = remaining

	if len(remaining) == 0 {
		return s.disband(ctx, pty, []string{playerID})
	}
	if pty.LeaderID == playerID {
		successor, _ := pty.Successor()
		if err := s.repo.SetLeader(ctx, pty.ID, successor); err != nil {
			return err
		}
		pty.LeaderID = successor
		s.logger.Info("party leadership transferred",
			slog.String("party", pty.ID), slog.String("leader", successor))
	}
	return s.announce(ctx, pty, []string{playerID}, events.TypePartyUpdated)
}

// Disband dissolves the party; only the leader may do so.
func (s *Service) Disband(ctx context.Context, partyID, actorID string) error {
	pty, err := s.repo.Find(ctx, partyID)
	if err != nil {
		return err
	}
	if pty.LeaderID != actorID {
		return ErrNotLeader
	}
	return s.disband(ctx, pty, pty.MemberIDs())
}

// Transfer hands leadership to another member.
func (s *Service) Transfer(ctx context.Context, partyID, fromID, toID string) (Party, error) {
	pty, err := s.repo.Find(ctx, partyID)
	if err != nil {
		return Party{}, err
	}
	if pty.LeaderID != fromID {
		return Party{}, ErrNotLeader
	}
	if !pty.HasMember(toID) {
		return Party{}, ErrNotMember
	}
	if err := s.repo.SetLeader(ctx, partyID, toID); err != nil {
		return Party{}, err
	}
	pty.LeaderID = toID
	if err := s.announce(ctx, pty, nil, events.TypePartyUpdated); err != nil {
		return Party{}, err
	}
	return pty, nil
}

// Get returns a party by id.
func (s *Service) Get(ctx context.Context, partyID string) (Party, error) {
	return s.repo.Find(ctx, partyID)
}

// ByMember returns the party containing the player.
func (s *Service) ByMember(ctx context.Context, playerID string) (Party, error) {
	return s.repo.FindByMember(ctx, playerID)
}

func (s *Service) disband(ctx context.Context, pty Party, removed []string) error {
	now := s.now().UTC()
	if err := s.repo.Disband(ctx, pty.ID, now); err != nil {
		return err
	}
	pty.DisbandedAt = &now
	pty.Members = nil
	return s.announce(ctx, pty, removed, events.TypePartyDisbanded)
}

func (s *Service) announce(ctx context.Context, pty Party, removed []string, eventType string) error {
	ev := Event{Party: pty, Removed: removed}
	env, err := s.bus.Publish(ctx, shared.TopicPartyChanged, pty.ID, eventType, ev)
	if err != nil {
		return err
	}
	s.cache.ApplyParty(env.Origin, env.Seq, ev)
	return nil
}
