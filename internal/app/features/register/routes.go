// internal/app/features/register/routes.go
package register

import (
	"github.com/dalemusser/eldercircle/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /register. A nil limiter disables throttling.
func Routes(h *Handler, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()
	if limiter != nil {
		r.Use(ratelimit.PerIP(limiter))
	}
	r.Post("/elder", h.HandleElder)
	r.Post("/family", h.HandleFamily)
	return r
}
