// internal/app/features/errors/render.go
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/eldercircle/internal/app/linking"
	identitystore "github.com/dalemusser/eldercircle/internal/app/store/identities"
	"github.com/dalemusser/eldercircle/internal/app/system/respond"
	"go.uber.org/zap"
)

// Status maps a linking error to its HTTP status.
//
//	ValidationError, InvalidElderCodeError       400
//	IdentityCreationError (bad email / password) 400
//	IdentityCreationError (other)                409
//	PasswordChangeError (wrong current password) 403
//	PasswordChangeError (other)                  400
//	ErrAlreadyLinked                             409
//	ErrNotApproved                               403
//	NotFoundError                                404
//	anything else                                500
func Status(err error) int {
	var (
		ve *linking.ValidationError
		ce *linking.InvalidElderCodeError
		ie *linking.IdentityCreationError
		pc *linking.PasswordChangeError
		nf *linking.NotFoundError
	)
	switch {
	case stderrors.As(err, &ve), stderrors.As(err, &ce):
		return http.StatusBadRequest
	case stderrors.As(err, &ie):
		if stderrors.Is(err, identitystore.ErrWeakPassword) || stderrors.Is(err, identitystore.ErrInvalidEmail) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case stderrors.As(err, &pc):
		if stderrors.Is(err, identitystore.ErrWrongPassword) {
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	case stderrors.Is(err, linking.ErrAlreadyLinked):
		return http.StatusConflict
	case stderrors.Is(err, linking.ErrNotApproved):
		return http.StatusForbidden
	case stderrors.As(err, &nf):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Write sends err as a JSON error envelope. The message is the error's own
// text; server errors are also logged with op.
func Write(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error(op+" failed", zap.Error(err))
	}
	respond.Error(w, status, err.Error())
}
