package shared

// Broker channel names, one per event category.
const (
	TopicProfileChanged     = "meridian:events:profile-changed"
	TopicPunishmentIssued   = "meridian:events:punishment-issued"
	TopicPunishmentRevoked  = "meridian:events:punishment-revoked"
	TopicSessionChanged     = "meridian:events:session-changed"
	TopicPartyChanged       = "meridian:events:party-changed"
	TopicFriendChanged      = "meridian:events:friend-changed"
	TopicRankCatalogChanged = "meridian:events:rank-catalog-changed"
)

// Topics lists every broker channel a process subscribes to.
func Topics() []string {
	return []string{
		TopicProfileChanged,
		TopicPunishmentIssued,
		TopicPunishmentRevoked,
		TopicSessionChanged,
		TopicPartyChanged,
		TopicFriendChanged,
		TopicRankCatalogChanged,
	}
}
