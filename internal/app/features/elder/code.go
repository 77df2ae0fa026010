// internal/app/features/elder/code.go
package elder

import (
	"net/http"
	"strconv"

	httperrors "github.com/dalemusser/eldercircle/internal/app/features/errors"
	"github.com/dalemusser/eldercircle/internal/app/system/authz"
	"github.com/dalemusser/eldercircle/internal/app/system/eldercode"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"github.com/dalemusser/eldercircle/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

func (h *Handler) loadCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch elder code")
	defer cancel()

	u, err := h.Svc.Profile(ctx, uid)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch elder code", err)
		return "", false
	}
	return u.ElderCode, true
}

// ServeCode handles GET /elder/code.
func (h *Handler) ServeCode(w http.ResponseWriter, r *http.Request) {
	code, ok := h.loadCode(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, "share this code with your family", map[string]string{"elder_code": code})
}

// ServeOverview handles GET /elder/overview.
func (h *Handler) ServeOverview(w http.ResponseWriter, r *http.Request) {
	uid, ok := authz.UserID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "fetch elder overview")
	defer cancel()

	ov, err := h.Svc.Overview(ctx, uid)
	if err != nil {
		httperrors.Write(w, h.Log, "fetch elder overview", err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", ov)
}

// ServeCodePNG handles GET /elder/code.png?size=N.
func (h *Handler) ServeCodePNG(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > maxQRSize {
			respond.Error(w, http.StatusBadRequest, "size must be between 64 and 1024")
			return
		}
		size = n
	}

	code, ok := h.loadCode(w, r)
	if !ok {
		return
	}
	png, err := eldercode.QRPNG(code, size)
	if err != nil {
		h.Log.Error("render elder code qr", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "could not render code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
