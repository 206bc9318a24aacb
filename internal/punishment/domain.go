package punishment

import (
	"time"
)

// Kind enumerates punishment classes. The set is closed; dispatch is always
// by kind, never by open-ended type.
type Kind string

const (
	KindMute Kind = "MUTE"
	KindBan  Kind = "BAN"
	KindKick Kind = "KICK"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMute, KindBan, KindKick:
		return true
	}
	return false
}

// Punishment is one append-only audit record. Records are never physically
// deleted; revocation sets RemovedBy/RemovedAt and expiry is a pure function
// of time.
type Punishment struct {
	ID        string     `json:"id"`
	TargetID  string     `json:"targetId"`
	IssuerID  string     `json:"issuerId"`
	Kind      Kind       `json:"kind"`
	Reason    string     `json:"reason"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Active    bool       `json:"active"`
	RemovedBy *string    `json:"removedBy,omitempty"`
	RemovedAt *time.Time `json:"removedAt,omitempty"`
}

// Permanent reports whether the punishment has no expiry.
func (p Punishment) Permanent() bool {
	return p.ExpiresAt == nil
}

// Expired reports whether the punishment's expiry has passed at now.
func (p Punishment) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// InForce reports whether the punishment currently affects its target.
func (p Punishment) InForce(now time.Time) bool {
	return p.Active && p.RemovedAt == nil && !p.Expired(now)
}

// Enforced selects the single punishment of the given kind currently
// affecting the target from a set of records: the latest issued-at among
// in-force records, ties broken by record id. Both members of a concurrent
// double-issue stay in the audit trail; this selection is what converges.
func Enforced(records []Punishment, kind Kind, now time.Time) (Punishment, bool) {
	var best Punishment
	found := false
	for _, p := range records {
		if p.Kind != kind || !p.InForce(now) {
			continue
		}
		if !found || p.IssuedAt.After(best.IssuedAt) ||
			(p.IssuedAt.Equal(best.IssuedAt) && p.ID > best.ID) {
			best = p
			found = true
		}
	}
	return best, found
}
