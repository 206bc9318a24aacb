// Package state holds the in-memory authoritative cache every request path
// reads from, together with the event handlers that keep it aligned with the
// store across processes.
package state

import (
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/session"
)

// PlayerState is the materialized view of one player: everything the request
// path needs without touching the store. It is rebuildable purely from the
// store, so eviction never loses information.
type PlayerState struct {
	Profile     player.Profile          `json:"profile"`
	Punishments []punishment.Punishment `json:"punishments"`
	Session     *session.Session        `json:"session,omitempty"`
	PartyID     string                  `json:"partyId,omitempty"`
	FriendIDs   []string                `json:"friendIds,omitempty"`
}

// Online reports whether the player has an active session.
func (s PlayerState) Online() bool {
	return s.Session != nil
}

// clone deep-copies the mutable parts so cached state never shares backing
// arrays with values handed to callers.
func (s PlayerState) clone() PlayerState {
	out := s
	if s.Punishments != nil {
		out.Punishments = append([]punishment.Punishment(nil), s.Punishments...)
	}
	if s.FriendIDs != nil {
		out.FriendIDs = append([]string(nil), s.FriendIDs...)
	}
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	return out
}

