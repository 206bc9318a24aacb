package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianmc/meridian-core/internal/platform/httpx"
	"github.com/meridianmc/meridian-core/internal/shared"
)

type sessionRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
}

// Session writes always act on behalf of the authenticated server, so the
// server id comes from the request context rather than the body.
func (h *handlers) connect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	serverID := shared.ServerIDFromContext(r.Context())
	sess, err := h.deps.Sessions.Connect(r.Context(), req.PlayerID, serverID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *handlers) disconnect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	serverID := shared.ServerIDFromContext(r.Context())
	if err := h.deps.Sessions.Disconnect(r.Context(), req.PlayerID, serverID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	serverID := shared.ServerIDFromContext(r.Context())
	if err := h.deps.Sessions.Heartbeat(r.Context(), req.PlayerID, serverID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) owner(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Sessions.Owner(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}
