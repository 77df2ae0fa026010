// internal/app/features/profile/profile.go
package profile

import (
	stderrors "errors"
	"net/http"

	httperrors "github.com/dalemusser/eldercircle/internal/app/features/errors"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/authz"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServeMe handles GET /me.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch profile")
	defer cancel()

	u, err := h.Svc.Profile(ctx, uid)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch profile", err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", u)
}

// HandleUpdateMe handles POST /me. Only name and phone can change.
func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in linking.ProfileUpdate
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update profile")
	defer cancel()

	u, err := h.Svc.UpdateProfile(ctx, uid, in)
	if err != nil {
		httperrors.Write(w, h.Log, "update profile", err)
		return
	}
	h.AuditLog.ProfileUpdated(ctx, r, uid)
	respond.JSON(w, http.StatusOK, "profile updated", u)
}

// HandleChangePassword handles POST /me/password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in linking.PasswordChange
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "change password")
	defer cancel()

	if err := h.Svc.ChangePassword(ctx, uid, in); err != nil {
		var pc *linking.PasswordChangeError
		var ve *linking.ValidationError
		if stderrors.As(err, &pc) || stderrors.As(err, &ve) {
			h.AuditLog.PasswordChangeFailed(ctx, r, uid, err.Error())
		}
		httperrors.Write(w, h.Log, "change password", err)
		return
	}
	h.AuditLog.PasswordChanged(ctx, r, uid)
	respond.JSON(w, http.StatusOK, "password changed", nil)
}

// ServeElder handles GET /elders/{elderID}. Only the elder and their
// approved family may read it.
func (h *Handler) ServeElder(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	elderID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "elderID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid elder id")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch elder")
	defer cancel()

	allowed, err := h.Policy.CanReadElder(ctx, uid, elderID)
	if err != nil {
		h.Log.Error("elder read policy", zap.Error(err), zap.String("elder_id", elderID.Hex()))
		respond.Error(w, http.StatusInternalServerError, "a server error occurred")
		return
	}
	if !allowed {
		httperrors.Write(w, h.Log, "fetch elder", linking.ErrNotApproved)
		return
	}

	u, err := h.Svc.Profile(ctx, elderID)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch elder", err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", u.Summary())
}
