package player

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Profile is the durable record for one player identity. Created on first
// connect, never deleted; ArchivedAt marks soft-archived rows.
type Profile struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	NameLower   string     `json:"nameLower"`
	FirstSeenAt time.Time  `json:"firstSeenAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`
	RankID      string     `json:"rankId"`
	Coins       int64      `json:"coins"`
	Prefs       Prefs      `json:"prefs"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"`
}

// Prefs holds per-player preference flags.
type Prefs struct {
	HideGlobalChat      bool `json:"hideGlobalChat"`
	AllowFriendRequests bool `json:"allowFriendRequests"`
	AllowPartyInvites   bool `json:"allowPartyInvites"`
}

// DefaultPrefs returns the flags assigned on first connect.
func DefaultPrefs() Prefs {
	return Prefs{AllowFriendRequests: true, AllowPartyInvites: true}
}

// NormalizeName returns the NFKC-normalized display name and the lowercase
// lookup key derived from it. Lookups always go through the lowercase key.
func NormalizeName(name string) (display, lower string) {
	display = norm.NFKC.String(strings.TrimSpace(name))
	return display, strings.ToLower(display)
}
