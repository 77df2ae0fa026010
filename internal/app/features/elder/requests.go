// internal/app/features/elder/requests.go
package elder

import (
	"errors"
	"io"
	"net/http"

	httperrors "github.com/dalemusser/eldercircle/internal/app/features/errors"
	"github.com/dalemusser/eldercircle/internal/app/linking"
	"github.com/dalemusser/eldercircle/internal/app/system/authz"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ids returns the session elder id and the {familyID} URL param.
func ids(w http.ResponseWriter, r *http.Request) (elderID, familyID primitive.ObjectID, ok bool) {
	elderID, ok = authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return elderID, familyID, false
	}
	familyID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "familyID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid family member id")
		return elderID, familyID, false
	}
	return elderID, familyID, true
}

// ServeRequests handles GET /elder/requests.
func (h *Handler) ServeRequests(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch pending requests")
	defer cancel()

	reqs, err := h.Svc.PendingRequests(ctx, uid)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch pending requests", err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", reqs)
}

// HandleApprove handles POST /elder/requests/{familyID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	elderID, familyID, ok := ids(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "approve family member")
	defer cancel()

	if err := h.Svc.ApproveFamily(ctx, elderID, familyID); err != nil {
		httperrors.Write(w, h.Log, "approve family member", err)
		return
	}
	h.AuditLog.FamilyApproved(ctx, r, elderID, familyID)
	respond.JSON(w, http.StatusOK, "family member approved", nil)
}

// HandleReject handles POST /elder/requests/{familyID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	elderID, familyID, ok := ids(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "reject family member")
	defer cancel()

	if err := h.Svc.RejectFamily(ctx, elderID, familyID); err != nil {
		httperrors.Write(w, h.Log, "reject family member", err)
		return
	}
	h.AuditLog.FamilyRejected(ctx, r, elderID, familyID)
	respond.JSON(w, http.StatusOK, "family member rejected", nil)
}

// ServeFamily handles GET /elder/family.
func (h *Handler) ServeFamily(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch family members")
	defer cancel()

	members, err := h.Svc.FamilyMembers(ctx, uid)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch family members", err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", members)
}

type unlinkInput struct {
	Name string `json:"name"`
}

// HandleUnlink handles POST /elder/family/{familyID}/unlink. The body is
// optional and only carries the member's display name for the log.
func (h *Handler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	elderID, familyID, ok := ids(w, r)
	if !ok {
		return
	}

	var in unlinkInput
	if err := respond.Decode(r, &in); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "unlink family member")
	defer cancel()

	err := h.Svc.UnlinkFamily(ctx, linking.UnlinkRequest{ElderID: elderID, FamilyID: familyID, FamilyName: in.Name})
	if err != nil {
		httperrors.Write(w, h.Log, "unlink family member", err)
		return
	}
	h.AuditLog.FamilyUnlinked(ctx, r, elderID, familyID)
	respond.JSON(w, http.StatusOK, "family member unlinked", nil)
}
