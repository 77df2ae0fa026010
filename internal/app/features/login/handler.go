// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"

	httperrors "github.com/dalemusser/eldercircle/internal/app/features/errors"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	identitystore "github.com/dalemusser/eldercircle/internal/app/store/identities"
	"github.com/dalemusser/eldercircle/internal/app/system/auditlog"
	"github.com/dalemusser/eldercircle/internal/app/system/auth"
	"github.com/dalemusser/eldercircle/internal/app/system/normalize"
	"github.com/dalemusser/eldercircle/internal/app/system/ratelimit"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Authenticator checks an email and password and returns the identity ID,
// which is also the user ID.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (primitive.ObjectID, error)
}

type Handler struct {
	Identities Authenticator
	Svc        *linking.Service
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
	Limiter    *ratelimit.LoginLimiter // nil disables throttling
	Log        *zap.Logger
}

func NewHandler(
	identities Authenticator,
	svc *linking.Service,
	sessionMgr *auth.SessionManager,
	audit *auditlog.Logger,
	limiter *ratelimit.LoginLimiter,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Identities: identities,
		Svc:        svc,
		SessionMgr: sessionMgr,
		AuditLog:   audit,
		Limiter:    limiter,
		Log:        logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	email := normalize.Email(in.Email)
	if email == "" || in.Password == "" {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if h.Limiter != nil && !h.Limiter.Check(w, r, email) {
		h.AuditLog.LoginFailed(r.Context(), r, email, "rate limited")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	id, err := h.Identities.Authenticate(ctx, email, in.Password)
	if err != nil {
		if errors.Is(err, identitystore.ErrInvalidCredentials) {
			h.AuditLog.LoginFailed(ctx, r, email, "invalid credentials")
			respond.Error(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.Log.Error("login: authenticate", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "a server error occurred")
		return
	}

	u, err := h.Svc.Profile(ctx, id)
	if err != nil {
		var nf *linking.NotFoundError
		if errors.As(err, &nf) {
			// identity left behind by an interrupted registration
			h.AuditLog.LoginFailed(ctx, r, email, "no user record")
			respond.Error(w, http.StatusUnauthorized, identitystore.ErrInvalidCredentials.Error())
			return
		}
		httperrors.Write(w, h.Log, "login", err)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, &auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.Name,
		Email: u.Email,
		Role:  u.UserType,
	}); err != nil {
		h.Log.Error("login: save session", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "a server error occurred")
		return
	}

	if err := h.Svc.Touch(ctx, u.ID); err != nil {
		h.Log.Warn("login: touch last active", zap.Error(err), zap.String("user_id", u.ID.Hex()))
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(email)
	}
	h.AuditLog.LoginSuccess(ctx, r, u.ID, u.Email, u.UserType)

	respond.JSON(w, http.StatusOK, "signed in", u)
}
