package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianmc/meridian-core/internal/friend"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/platform/httpx"
)

type partyMemberRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
}

type partyTransferRequest struct {
	FromID string `json:"fromId" validate:"required"`
	ToID   string `json:"toId" validate:"required"`
}

type friendPairRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
	OtherID  string `json:"otherId" validate:"required"`
}

func respondPartyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, party.ErrAlreadyInParty):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, party.ErrNotLeader):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, party.ErrNotMember):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *handlers) createParty(w http.ResponseWriter, r *http.Request) {
	var req partyMemberRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	pty, err := h.deps.Parties.Create(r.Context(), req.PlayerID)
	if err != nil {
		respondPartyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pty)
}

func (h *handlers) getParty(w http.ResponseWriter, r *http.Request) {
	pty, err := h.deps.Parties.Get(r.Context(), chi.URLParam(r, "partyID"))
	if err != nil {
		respondPartyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pty)
}

func (h *handlers) joinParty(w http.ResponseWriter, r *http.Request) {
	var req partyMemberRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	pty, err := h.deps.Parties.Join(r.Context(), chi.URLParam(r, "partyID"), req.PlayerID)
	if err != nil {
		respondPartyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pty)
}

func (h *handlers) leaveParty(w http.ResponseWriter, r *http.Request) {
	var req partyMemberRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.deps.Parties.Leave(r.Context(), req.PlayerID); err != nil {
		respondPartyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) disbandParty(w http.ResponseWriter, r *http.Request) {
	var req partyMemberRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.deps.Parties.Disband(r.Context(), chi.URLParam(r, "partyID"), req.PlayerID); err != nil {
		respondPartyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) transferParty(w http.ResponseWriter, r *http.Request) {
	var req partyTransferRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	pty, err := h.deps.Parties.Transfer(r.Context(), chi.URLParam(r, "partyID"), req.FromID, req.ToID)
	if err != nil {
		respondPartyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pty)
}

func respondFriendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, friend.ErrSelfRelation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, friend.ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *handlers) friendRequest(w http.ResponseWriter, r *http.Request) {
	var req friendPairRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rel, err := h.deps.Friends.Request(r.Context(), req.PlayerID, req.OtherID)
	if err != nil {
		respondFriendError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rel)
}

func (h *handlers) friendAccept(w http.ResponseWriter, r *http.Request) {
	var req friendPairRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rel, err := h.deps.Friends.Accept(r.Context(), req.PlayerID, req.OtherID)
	if err != nil {
		respondFriendError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rel)
}

func (h *handlers) friendRemove(w http.ResponseWriter, r *http.Request) {
	var req friendPairRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.deps.Friends.Remove(r.Context(), req.PlayerID, req.OtherID); err != nil {
		respondFriendError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) friendList(w http.ResponseWriter, r *http.Request) {
	rels, err := h.deps.Friends.List(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		respondFriendError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rels)
}
