// internal/app/features/register/handler.go
package register

import (
	"net/http"

	httperrors "github.com/dalemusser/eldercircle/internal/app/features/errors"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/auditlog"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"github.com/dalemusser/eldercircle/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves account registration.
type Handler struct {
	Svc      *linking.Service
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(svc *linking.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Svc:      svc,
		AuditLog: audit,
		Log:      logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /register/elder                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleElder(w http.ResponseWriter, r *http.Request) {
	var in linking.ElderRegistration
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "register elder")
	defer cancel()

	u, err := h.Svc.RegisterElder(ctx, in)
	if err != nil {
		h.AuditLog.RegisterFailed(ctx, r, models.UserTypeElder, err.Error())
		httperrors.Write(w, h.Log, "register elder", err)
		return
	}

	h.AuditLog.ElderRegistered(ctx, r, u.ID)
	respond.JSON(w, http.StatusCreated, "registered; share your elder code with family members", u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /register/family                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleFamily(w http.ResponseWriter, r *http.Request) {
	var in linking.FamilyRegistration
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "register family")
	defer cancel()

	u, err := h.Svc.RegisterFamily(ctx, in)
	if err != nil {
		h.AuditLog.RegisterFailed(ctx, r, models.UserTypeFamily, err.Error())
		httperrors.Write(w, h.Log, "register family", err)
		return
	}

	if u.ElderID != nil {
		h.AuditLog.FamilyRegistered(ctx, r, u.ID, *u.ElderID, u.Relation)
	}
	respond.JSON(w, http.StatusCreated, "registered; access awaits the elder's approval", u)
}
