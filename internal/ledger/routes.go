package ledger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the journal endpoints onto the router. Mutating
// routes carry their own rate limit on top of the global stack.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/entries", h.List)
	r.Get("/entries/{id}", h.Get)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/entries", h.Create)
		gr.Post("/entries/{id}/approve", h.Approve)
	})
}
