// internal/app/features/family/handler.go
package family

import (
	"net/http"

	httperrors "github.com/dalemusser/eldercircle/internal/app/features/errors"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/auditlog"
	"github.com/dalemusser/eldercircle/internal/app/system/authz"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler serves the signed-in family member's side of the workflow.
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

// ServeElder handles GET /family/elder. It answers 403 until the elder
// has approved the caller.
func (h *Handler) ServeElder(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch linked elder")
	defer cancel()

	elder, err := h.Svc.LinkedElder(ctx, uid)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch linked elder", err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", elder.Summary())
}

type linkInput struct {
	ElderCode string `json:"elder_code"`
}

// HandleLink handles POST /family/link. An unlinked family account uses it
// to queue itself with a new elder.
func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var in linkInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "request elder link")
	defer cancel()

	pr, err := h.Svc.RequestLink(ctx, uid, in.ElderCode)
	if err != nil {
		httperrors.Write(w, h.Log, "request elder link", err)
		return
	}
	h.AuditLog.LinkRequested(ctx, r, uid, pr.ElderID)
	respond.JSON(w, http.StatusCreated, "request sent; access awaits the elder's approval", pr)
}
