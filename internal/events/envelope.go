// Package events implements the typed publish/subscribe channel that keeps
// every server process's cache in sync. Delivery is at-least-once; handlers
// are expected to be idempotent and gate on per-origin sequence numbers.
package events

import (
	"encoding/json"
	"time"
)

// Event types carried inside envelopes.
const (
	TypeProfileUpdated     = "profile.updated"
	TypeProfileArchived    = "profile.archived"
	TypePunishmentIssued   = "punishment.issued"
	TypePunishmentRevoked  = "punishment.revoked"
	TypeSessionConnected   = "session.connected"
	TypeSessionClosed      = "session.closed"
	TypePartyUpdated       = "party.updated"
	TypePartyDisbanded     = "party.disbanded"
	TypeFriendUpdated      = "friend.updated"
	TypeRankCatalogUpdated = "rank.catalog-updated"
	TypeForceKick          = "player.force-kick"
)

// Envelope is the wire format for every bus and push message.
type Envelope struct {
	Origin    string          `json:"origin"`
	Seq       uint64          `json:"seq"`
	EntityID  string          `json:"entityId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// DecodePayload unmarshals the envelope payload into target.
func (e Envelope) DecodePayload(target any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, target)
}
