package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianmc/meridian-core/internal/platform/httpx"
	"github.com/meridianmc/meridian-core/internal/player"
)

type loginRequest struct {
	PlayerID string `json:"playerId" validate:"required,uuid4"`
	Name     string `json:"name" validate:"required,min=1,max=16"`
}

type setRankRequest struct {
	RankID string `json:"rankId" validate:"required"`
}

type addCoinsRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

type setOverrideRequest struct {
	Allowed bool `json:"allowed"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		if err := h.deps.Ready(r.Context()); err != nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", err.Error())
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	profile, err := h.deps.Players.Login(r.Context(), req.PlayerID, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *handlers) getPlayer(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Cache.Get(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *handlers) lookupPlayer(w http.ResponseWriter, r *http.Request) {
	profile, err := h.deps.Players.Lookup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *handlers) archivePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Players.Archive(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setRank(w http.ResponseWriter, r *http.Request) {
	var req setRankRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	profile, err := h.deps.Players.SetRank(r.Context(), chi.URLParam(r, "playerID"), req.RankID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *handlers) addCoins(w http.ResponseWriter, r *http.Request) {
	var req addCoinsRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	profile, err := h.deps.Players.AddCoins(r.Context(), chi.URLParam(r, "playerID"), req.Delta)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *handlers) setPrefs(w http.ResponseWriter, r *http.Request) {
	var req player.Prefs
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	profile, err := h.deps.Players.UpdatePrefs(r.Context(), chi.URLParam(r, "playerID"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *handlers) setOverride(w http.ResponseWriter, r *http.Request) {
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	playerID := chi.URLParam(r, "playerID")
	if err := h.deps.Players.SetOverride(r.Context(), playerID, chi.URLParam(r, "node"), req.Allowed); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) resolvePermissions(w http.ResponseWriter, r *http.Request) {
	set, err := h.deps.Resolver.Resolve(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"permissions": set.Nodes()})
}
