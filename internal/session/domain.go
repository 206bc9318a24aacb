package session

import "time"

// Session records which server process currently owns a connected player.
// Exactly one row exists per player identity; a duplicate connect overwrites
// the previous owner (last-writer-wins).
type Session struct {
	PlayerID    string    `json:"playerId"`
	ServerID    string    `json:"serverId"`
	ConnectedAt time.Time `json:"connectedAt"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
}
