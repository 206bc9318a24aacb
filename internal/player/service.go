package player

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridianmc/meridian-core/internal/events"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	FindByID(ctx context.Context, id string) (Profile, error)
	FindByName(ctx context.Context, name string) (Profile, error)
	Upsert(ctx context.Context, p Profile) error
	Archive(ctx context.Context, id string, at time.Time) error
	SetOverride(ctx context.Context, id, node string, allowed bool) error
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic, entityID, eventType string, payload any) (events.Envelope, error)
}

// CachePort is the slice of the state cache the service writes back to.
type CachePort interface {
	ApplyProfile(origin string, seq uint64, p Profile) bool
}

// Service handles profile lifecycle and mutation.
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

// Login upserts the profile on connect: created on first contact, name and
// last-seen refreshed on every subsequent one.
func (s *Service) Login(ctx context.Context, id, name string) (Profile, error) {
	now := s.now().UTC()
	display, lower := NormalizeName(name)

	profile, err := s.repo.FindByID(ctx, id)
	switch {
	case err == nil:
		profile.Name = display
		profile.NameLower = lower
		profile.LastSeenAt = now
		profile.ArchivedAt = nil
	case errors.Is(err, shared.ErrNotFound):
		profile = Profile{
			ID:          id,
			Name:        display,
			NameLower:   lower,
			FirstSeenAt: now,
			LastSeenAt:  now,
			Prefs:       DefaultPrefs(),
		}
		s.logger.Info("profile created", slog.String("player", id), slog.String("name", display))
	default:
		return Profile{}, err
	}

	return profile, s.persist(ctx, profile)
}

// Lookup finds a profile by display name, case-insensitive.
func (s *Service) Lookup(ctx context.Context, name string) (Profile, error) {
	return s.repo.FindByName(ctx, name)
}

// SetRank assigns a rank to the player.
func (s *Service) SetRank(ctx context.Context, id, rankID string) (Profile, error) {
	return s.mutate(ctx, id, func(p *Profile) { p.RankID = rankID })
}

// AddCoins adjusts the player's balance by delta, clamped at zero.
func (s *Service) AddCoins(ctx context.Context, id string, delta int64) (Profile, error) {
	return s.mutate(ctx, id, func(p *Profile) {
		p.Coins += delta
		if p.Coins < 0 {
			p.Coins = 0
		}
	})
}

// UpdatePrefs replaces the player's preference flags.
func (s *Service) UpdatePrefs(ctx context.Context, id string, prefs Prefs) (Profile, error) {
	return s.mutate(ctx, id, func(p *Profile) { p.Prefs = prefs })
}

// SetOverride grants or revokes one permission node for the player and
// broadcasts the profile change so every process drops its memoized
// permission set.
func (s *Service) SetOverride(ctx context.Context, id, node string, allowed bool) error {
	if err := s.repo.SetOverride(ctx, id, node, allowed); err != nil {
		return err
	}
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.publish(ctx, profile)
}

// Archive soft-archives a profile; the row is never deleted.
func (s *Service) Archive(ctx context.Context, id string) error {
	now := s.now().UTC()
	if err := s.repo.Archive(ctx, id, now); err != nil {
		return err
	}
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	env, err := s.bus.Publish(ctx, shared.TopicProfileChanged, id, events.TypeProfileArchived, profile)
	if err != nil {
		return err
	}
	s.cache.ApplyProfile(env.Origin, env.Seq, profile)
	return nil
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Profile)) (Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	fn(&profile)
	return profile, s.persist(ctx, profile)
}

func (s *Service) persist(ctx context.Context, profile Profile) error {
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return err
	}
	return s.publish(ctx, profile)
}

func (s *Service) publish(ctx context.Context, profile Profile) error {
	env, err := s.bus.Publish(ctx, shared.TopicProfileChanged, profile.ID, events.TypeProfileUpdated, profile)
	if err != nil {
		return err
	}
	s.cache.ApplyProfile(env.Origin, env.Seq, profile)
	return nil
}
