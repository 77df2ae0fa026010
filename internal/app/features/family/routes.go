// internal/app/features/family/routes.go
package family

import (
	"github.com/dalemusser/eldercircle/internal/app/system/auth"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /family and is limited to family accounts.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.UserTypeFamily))
	r.Get("/elder", h.ServeElder)
	r.Post("/link", h.HandleLink)
	return r
}
