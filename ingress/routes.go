package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SecretHeader carries the shared ingress secret
const SecretHeader = "X-Padhook-Secret"

// maxEventBytes bounds a single event body
const maxEventBytes = 64 << 10

// Routes returns the chi router for host events. An empty secret disables auth.
func Routes(in *Ingress, secret string) http.Handler {
	r := chi.NewRouter()
	r.Use(secretMiddleware(secret))

	r.Post("/sessions", in.eventHandler(in.ClientReady))
	r.Post("/user-changes", in.eventHandler(in.UserChanges))
	r.Post("/revisions", in.eventHandler(in.RevisionCommitted))
	r.Post("/disconnects", in.eventHandler(in.Disconnected))

	return r
}

// RegisterRoutes mounts the host event routes under /hooks
func RegisterRoutes(r chi.Router, in *Ingress, secret string) {
	r.Mount("/hooks", Routes(in, secret))
	log.Info().Bool("auth", secret != "").Msg("Host event endpoints enabled at /hooks/*")
}

func (in *Ingress) eventHandler(fn func(Event) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event body")
			return
		}

		if err := fn(ev); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

func secretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && r.Header.Get(SecretHeader) != secret {
				writeError(w, http.StatusUnauthorized, "invalid secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
