package party

import "time"

// Member is one party member; join order drives leadership succession.
type Member struct {
	PlayerID string    `json:"playerId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Party groups players under a leader. Members keep insertion (join) order.
type Party struct {
	ID          string     `json:"id"`
	LeaderID    string     `json:"leaderId"`
	Members     []Member   `json:"members"`
	CreatedAt   time.Time  `json:"createdAt"`
	DisbandedAt *time.Time `json:"disbandedAt,omitempty"`
}

// HasMember reports whether the player belongs to the party.
func (p Party) HasMember(playerID string) bool {
	for _, m := range p.Members {
		if m.PlayerID == playerID {
			return true
		}
	}
	return false
}

// MemberIDs returns member ids in join order.
func (p Party) MemberIDs() []string {
	ids := make([]string, len(p.Members))
	for i, m := range p.Members {
		ids[i] = m.PlayerID
	}
	return ids
}

// Event is the payload for party-changed events: the full party plus the
// members removed by the mutation, so subscribers can clear membership
// without diffing against prior state.
type Event struct {
	Party   Party    `json:"party"`
	Removed []string `json:"removed,omitempty"`
}

// Successor returns the earliest-joined member other than the leader.
// Membership order is already replicated to every process, so succession
// needs no election round trip.
func (p Party) Successor() (string, bool) {
	for _, m := range p.Members {
		if m.PlayerID != p.LeaderID {
			return m.PlayerID, true
		}
	}
	return "", false
}
