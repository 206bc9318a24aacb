package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianmc/meridian-core/internal/platform/httpx"
	"github.com/meridianmc/meridian-core/internal/punishment"
)

type issuePunishmentRequest struct {
	TargetID  string     `json:"targetId" validate:"required"`
	IssuerID  string     `json:"issuerId" validate:"required"`
	Kind      string     `json:"kind" validate:"required,oneof=MUTE BAN KICK"`
	Reason    string     `json:"reason" validate:"required,max=512"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type revokePunishmentRequest struct {
	RevokerID string `json:"revokerId" validate:"required"`
}

func (h *handlers) issuePunishment(w http.ResponseWriter, r *http.Request) {
	var req issuePunishmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	record, err := h.deps.Punishments.Issue(r.Context(), punishment.IssueParams{
		TargetID:  req.TargetID,
		IssuerID:  req.IssuerID,
		Kind:      punishment.Kind(req.Kind),
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *handlers) revokePunishment(w http.ResponseWriter, r *http.Request) {
	var req revokePunishmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	record, err := h.deps.Punishments.Revoke(r.Context(), chi.URLParam(r, "punishmentID"), req.RevokerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *handlers) punishmentHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Punishments.History(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *handlers) punishmentActive(w http.ResponseWriter, r *http.Request) {
	kind := punishment.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown punishment kind")
		return
	}
	record, ok, err := h.deps.Punishments.Enforced(r.Context(), chi.URLParam(r, "playerID"), kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		httpx.JSON(w, http.StatusOK, map[string]bool{"active": false})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"active": true, "punishment": record})
}
