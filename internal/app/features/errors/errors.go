// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/eldercircle/internal/app/system/respond"
)

// Handler serves the JSON fallbacks the router and auth middleware point at.
// No DB needed.
type Handler struct{}

// NewHandler constructs an errors Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Forbidden handles GET /forbidden.
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusForbidden, "you don't have permission to do that")
}

// Unauthorized handles GET /unauthorized.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusUnauthorized, "please sign in to continue")
}

// NotFound is the router's 404 handler.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
}

// MethodNotAllowed is the router's 405 handler.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}
