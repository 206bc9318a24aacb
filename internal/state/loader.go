package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridianmc/meridian-core/internal/friend"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/session"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// ProfileStore supplies profiles from the durable store.
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (player.Profile, error)
}

// PunishmentStore supplies punishment records from the durable store.
type PunishmentStore interface {
	ListByTarget(ctx context.Context, targetID string) ([]punishment.Punishment, error)
}

// SessionStore supplies live sessions from the durable store.
type SessionStore interface {
	Find(ctx context.Context, playerID string) (session.Session, error)
}

// PartyStore supplies party membership from the durable store.
type PartyStore interface {
	FindByMember(ctx context.Context, playerID string) (party.Party, error)
}

// FriendStore supplies friend relationships from the durable store.
type FriendStore interface {
	ListByPlayer(ctx context.Context, playerID string) ([]friend.Relationship, error)
}

// StoreLoader materializes PlayerState from the document store. The store is
// ground truth: a rebuild after eviction or a process crash yields the same
// state every other process converges to.
type StoreLoader struct {
	Profiles    ProfileStore
	Punishments PunishmentStore
	Sessions    SessionStore
	Parties     PartyStore
	Friends     FriendStore
}

// Load implements Loader. A missing profile is ErrNotFound; every other
// sub-record is optional.
func (l *StoreLoader) Load(ctx context.Context, playerID string) (PlayerState, error) {
	profile, err := l.Profiles.FindByID(ctx, playerID)
	if err != nil {
		return PlayerState{}, fmt.Errorf("state: load %s: %w", playerID, err)
	}
	st := PlayerState{Profile: profile}

	records, err := l.Punishments.ListByTarget(ctx, playerID)
	if err != nil {
		return PlayerState{}, fmt.Errorf("state: load punishments %s: %w", playerID, err)
	}
	st.Punishments = records

	sess, err := l.Sessions.Find(ctx, playerID)
	switch {
	case err == nil:
		st.Session = &sess
	case errors.Is(err, shared.ErrNotFound):
	default:
		return PlayerState{}, fmt.Errorf("state: load session %s: %w", playerID, err)
	}

	pty, err := l.Parties.FindByMember(ctx, playerID)
	switch {
	case err == nil:
		st.PartyID = pty.ID
	case errors.Is(err, shared.ErrNotFound):
	default:
		return PlayerState{}, fmt.Errorf("state: load party %s: %w", playerID, err)
	}

	rels, err := l.Friends.ListByPlayer(ctx, playerID)
	if err != nil {
		return PlayerState{}, fmt.Errorf("state: load friends %s: %w", playerID, err)
	}
	for _, rel := range rels {
		if rel.Status == friend.StatusAccepted {
			st.FriendIDs = append(st.FriendIDs, rel.Other(playerID))
		}
	}
	return st, nil
}
