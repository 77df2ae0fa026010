// internal/app/features/elder/routes.go
package elder

import (
	"github.com/dalemusser/eldercircle/internal/app/system/auth"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /elder and is limited to elder accounts.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.UserTypeElder))

	r.Get("/code", h.ServeCode)
	r.Get("/code.png", h.ServeCodePNG)
	r.Get("/overview", h.ServeOverview)

	r.Get("/requests", h.ServeRequests)
	r.Post("/requests/{familyID}/approve", h.HandleApprove)
	r.Post("/requests/{familyID}/reject", h.HandleReject)

	r.Get("/family", h.ServeFamily)
	r.Post("/family/{familyID}/unlink", h.HandleUnlink)
	return r
}
