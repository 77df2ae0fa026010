// internal/app/features/heartbeat/handler.go
package heartbeat

import (
	"context"
	"net/http"

	"github.com/dalemusser/eldercircle/internal/app/system/authz"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Toucher records user activity. *linking.Service satisfies it.
type Toucher interface {
	Touch(ctx context.Context, userID primitive.ObjectID) error
}

// Handler keeps last_active current while a client is open.
type Handler struct {
	Users Toucher
	Log   *zap.Logger
}

// NewHandler creates a new heartbeat handler.
func NewHandler(users Toucher, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Log: logger}
}

// ServeHeartbeat handles POST /heartbeat.
// Failures are logged and swallowed; clients poll on a timer and have
// nothing useful to do with an error.
func (h *Handler) ServeHeartbeat(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "heartbeat")
	defer cancel()

	if err := h.Users.Touch(ctx, uid); err != nil {
		h.Log.Warn("failed to update last_active",
			zap.Error(err),
			zap.String("user_id", uid.Hex()))
	}
	w.WriteHeader(http.StatusNoContent)
}
