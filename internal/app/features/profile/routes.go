// internal/app/features/profile/routes.go
package profile

import (
	"github.com/dalemusser/eldercircle/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /me.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.ServeMe)
	r.Post("/", h.HandleUpdateMe)
	r.Post("/password", h.HandleChangePassword)
	return r
}

// ElderRoutes mounts under /elders.
func ElderRoutes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/{elderID}", h.ServeElder)
	return r
}
