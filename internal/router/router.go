package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/waveroom/backend/internal/config"
	"github.com/waveroom/backend/internal/handlers"
	"github.com/waveroom/backend/internal/middleware"
	"github.com/waveroom/backend/internal/services"
)

// Deps are the constructed handlers the router mounts. They are built in
// main so the socket hub, fanout, and pollers share the same instances.
type Deps struct {
	AuthService   *services.AuthService
	RoomHandler   *handlers.RoomHandler
	SearchHandler *handlers.SearchHandler
	PortalHandler *handlers.PortalHandler
	ConfigHandler *handlers.ConfigHandler
	SocketHandler *handlers.SocketHandler
}

func New(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ClientIP(cfg.TrustedProxies))
	r.Use(middleware.RequestContext)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Rate limiter for the unauthenticated surface
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	// Routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", deps.ConfigHandler.Health)

		// Public configuration (Spotify client ID, etc.)
		r.Get("/config", deps.ConfigHandler.PublicConfig)

		// Operator portal verification (no auth required)
		r.With(rateLimiter.Middleware).Post("/portal/verify", deps.PortalHandler.Verify)

		// Room management
		r.Route("/rooms", func(r chi.Router) {
			// Create room (portal password checked in the handler)
			r.With(rateLimiter.Middleware).Post("/", deps.RoomHandler.Create)

			// Public room discovery
			r.Get("/", deps.RoomHandler.List)
			r.Get("/{roomID}", deps.RoomHandler.Get)

			// Creator-only room routes
			r.Route("/{roomID}/manage", func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(deps.AuthService))
				r.Use(middleware.IdentityContext)
				r.Use(middleware.CreatorOnlyMiddleware)

				r.Delete("/", deps.RoomHandler.Delete)
			})
		})

		// Track search (rate limited)
		r.With(rateLimiter.Middleware).Get("/search", deps.SearchHandler.Search)
	})

	// Websocket endpoint; auth happens in-band via the login event.
	r.Get("/ws", deps.SocketHandler.Serve)

	return r
}
