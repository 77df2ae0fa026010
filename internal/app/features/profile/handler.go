// internal/app/features/profile/handler.go
package profile

import (
	"context"

	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/auditlog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ReadPolicy decides whether a reader may see an elder's data.
type ReadPolicy interface {
	CanReadElder(ctx context.Context, readerID, elderID primitive.ObjectID) (bool, error)
}

// Handler owns the profile endpoints.
type Handler struct {
	Svc      *linking.Service
	Policy   ReadPolicy
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

// NewHandler constructs a profile Handler.
func NewHandler(svc *linking.Service, policy ReadPolicy, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Svc:      svc,
		Policy:   policy,
		AuditLog: audit,
		Log:      logger,
	}
}
