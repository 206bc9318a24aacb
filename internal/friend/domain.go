package friend

import "time"

// Status of a friend relationship.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
)

// Relationship is an unordered pair of identities; the pair is stored
// normalized (LowID < HighID) so each pair exists at most once. Symmetric
// once accepted.
type Relationship struct {
	LowID       string     `json:"lowId"`
	HighID      string     `json:"highId"`
	Status      Status     `json:"status"`
	RequestedBy string     `json:"requestedBy"`
	RequestedAt time.Time  `json:"requestedAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
}

// Event is the payload for friend-changed events.
type Event struct {
	Relationship Relationship `json:"relationship"`
	Removed      bool         `json:"removed,omitempty"`
}

// NormalizePair orders two identities into the stored (low, high) form.
func NormalizePair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Other returns the counterpart identity for the given member of the pair.
func (rel Relationship) Other(playerID string) string {
	if rel.LowID == playerID {
		return rel.HighID
	}
	return rel.LowID
}

// PairKey is the entity id used for friend events, stable for both members.
func (rel Relationship) PairKey() string {
	return rel.LowID + ":" + rel.HighID
}
