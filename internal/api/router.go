// Package api is the request-layer boundary: thin JSON handlers that
// translate between game-server requests and the core services. No business
// logic lives here.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"github.com/meridianmc/meridian-core/internal/friend"
	"github.com/meridianmc/meridian-core/internal/observability"
	"github.com/meridianmc/meridian-core/internal/party"
	"github.com/meridianmc/meridian-core/internal/player"
	"github.com/meridianmc/meridian-core/internal/punishment"
	"github.com/meridianmc/meridian-core/internal/push"
	"github.com/meridianmc/meridian-core/internal/rank"
	"github.com/meridianmc/meridian-core/internal/session"
	"github.com/meridianmc/meridian-core/internal/state"
)

// Dependencies collects everything the router serves.
type Dependencies struct {
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Cache       *state.Cache
	Players     *player.Service
	Resolver    *rank.Resolver
	Punishments *punishment.Engine
	Sessions    *session.Registry
	Parties     *party.Service
	Friends     *friend.Service
	Hub         *push.Hub
	TokenHash   string
	Production  bool
	// Ready probes the backing store and broker; nil means always ready.
	Ready func(ctx context.Context) error
	// RequestTimeout bounds API calls. The /ws socket is exempt.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP surface.
func NewRouter(deps Dependencies) http.Handler {
	h := &handlers{deps: deps, validate: validator.New()}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		IsDevelopment:         !deps.Production,
		ContentSecurityPolicy: "default-src 'none'",
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(deps.Metrics.Middleware)
	r.Use(secureMiddleware.Handler)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RequestTimeout > 0 {
			r.Use(middleware.Timeout(deps.RequestTimeout))
		}
		r.Use(h.authenticate)
		r.Use(httprate.Limit(300, time.Minute, httprate.WithKeyFuncs(serverKey)))

		r.Route("/players", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Get("/{playerID}", h.getPlayer)
			r.Get("/lookup/{name}", h.lookupPlayer)
			r.Put("/{playerID}/rank", h.setRank)
			r.Put("/{playerID}/prefs", h.setPrefs)
			r.Post("/{playerID}/coins", h.addCoins)
			r.Put("/{playerID}/permissions/{node}", h.setOverride)
			r.Get("/{playerID}/permissions", h.resolvePermissions)
			r.Delete("/{playerID}", h.archivePlayer)
		})

		r.Route("/punishments", func(r chi.Router) {
			r.Post("/", h.issuePunishment)
			r.Delete("/{punishmentID}", h.revokePunishment)
			r.Get("/player/{playerID}", h.punishmentHistory)
			r.Get("/player/{playerID}/active/{kind}", h.punishmentActive)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/connect", h.connect)
			r.Post("/disconnect", h.disconnect)
			r.Post("/heartbeat", h.heartbeat)
			r.Get("/{playerID}", h.owner)
		})

		r.Route("/parties", func(r chi.Router) {
			r.Post("/", h.createParty)
			r.Get("/{partyID}", h.getParty)
			r.Post("/{partyID}/join", h.joinParty)
			r.Post("/leave", h.leaveParty)
			r.Post("/{partyID}/disband", h.disbandParty)
			r.Post("/{partyID}/transfer", h.transferParty)
		})

		r.Route("/friends", func(r chi.Router) {
			r.Post("/request", h.friendRequest)
			r.Post("/accept", h.friendAccept)
			r.Post("/remove", h.friendRemove)
			r.Get("/{playerID}", h.friendList)
		})
	})

	r.Handle("/ws", h.withAuth(http.HandlerFunc(h.serveWS)))

	return r
}

func serverKey(r *http.Request) (string, error) {
	if serverID := r.Header.Get(headerServerID); serverID != "" {
		return serverID, nil
	}
	return httprate.KeyByIP(r)
}
