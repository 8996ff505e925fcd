// internal/app/features/orgunits/routes.go
package orgunits

import (
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the org unit endpoints. Everything here requires a
// signed-in user; role checks happen in the handlers.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/coverage", h.HandleCoverage)

	r.Route("/{orgUnitID}", func(r chi.Router) {
		r.Post("/reparent", h.HandleReparent)
		r.Delete("/", h.HandleDelete)
		r.Get("/members", h.HandleListMembers)
		r.Post("/memberships", h.HandleGrant)
		r.Delete("/memberships/{userID}", h.HandleRevoke)
	})
	return r
}
