// internal/app/features/elder/handler.go
package elder

import (
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// Handler serves the signed-in elder's side of the workflow. The elder id
// always comes from the session.
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
