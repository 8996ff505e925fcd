// internal/app/features/tasks/routes.go
package tasks

import (
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the task endpoints. Everything requires a signed-in
// user; finer authorization (coverage, assignee, approver) happens in
// the handlers and renders as 404 on denial.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)

	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/assign", h.HandleAssign)
		r.Post("/archive", h.HandleArchive)

		r.Route("/assignments/{assignmentID}", func(r chi.Router) {
			r.Post("/submit", h.HandleSubmit)
			r.Get("/submissions", h.HandleListSubmissions)
			r.Get("/approvals", h.HandleListSteps)
		})

		r.Route("/steps/{stepID}", func(r chi.Router) {
			r.Post("/decide", h.HandleDecide)
			r.Post("/forward", h.HandleForward)
		})
	})
	return r
}
