package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/meridianmc/meridian-core/internal/push"
	"github.com/meridianmc/meridian-core/internal/shared"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Game servers connect directly, not from browsers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serveWS upgrades an authenticated game server connection and attaches it to
// the push hub. The socket is push-only; inbound frames are drained solely to
// detect the peer going away.
func (h *handlers) serveWS(w http.ResponseWriter, r *http.Request) {
	serverID := shared.ServerIDFromContext(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Logger.Warn("websocket upgrade failed", "server_id", serverID, "error", err)
		return
	}

	client := push.NewClient(serverID, conn)
	h.deps.Hub.Register(client)
	go client.WritePump()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.deps.Hub.Unregister(client)
}
