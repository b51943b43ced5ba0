package handlers

import (
	"time"

	config "github.com/avvvet/card-indexer/configs"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

// NewRouter builds the full HTTP surface with the service middleware stack.
func (h *Handler) NewRouter(rateLimit int) *chi.Mux {
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	h.SetRoutes(r, rateLimit)
	return r
}

func (h *Handler) SetRoutes(r *chi.Mux, rateLimit int) {
	r.Get("/", h.IndexHandler)
	r.Get("/ws", h.hub.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		// to protect the api from over requests
		r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

		r.Get("/status", h.StatusHandler)
		r.Get("/logs", h.LogsHandler)
		r.Get("/search", h.SearchHandler)
		r.Get("/health", h.HealthHandler)

		if h.tokenAuth == nil {
			return
		}
		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/admin/database", h.DatabaseHandler)
		})
	})
}

// InitAuth enables the admin routes, signed with secret. An empty secret
// leaves them unmounted.
func (h *Handler) InitAuth(secret string) {
	if secret == "" {
		log.Info("ADMIN_JWT_SECRET not set, admin routes disabled")
		return
	}
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
}
