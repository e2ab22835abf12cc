package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Routes returns the chi router for operator endpoints
func Routes(handlers *AdminHandlers) http.Handler {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Get("/pending", handlers.handlePending)
	r.Post("/flush", handlers.handleFlush)
	r.Get("/deliveries", handlers.handleDeliveries)

	return r
}

// RegisterRoutes mounts /healthz and the authenticated /admin routes
func RegisterRoutes(r chi.Router, handlers *AdminHandlers) {
	r.Get("/healthz", handlers.HandleHealth)
	r.Mount("/admin", Routes(handlers))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
