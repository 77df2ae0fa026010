package linking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotApproved is returned by the access-query layer when a family
	// account has no approved link to an elder.
	ErrNotApproved = errors.New("family member is not approved for this elder")

	// ErrCodeSpaceExhausted means every generated elder code collided.
	// It is always wrapped in a PersistenceError.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique elder code")

	// ErrAlreadyLinked is returned when a family account asks to link while
	// it still points at an elder.
	ErrAlreadyLinked = errors.New("family member is already linked to an elder; ask them to unlink first")
)

// IdentityCreationError wraps a rejection from the identity collaborator
// (email in use, weak password). The message is the collaborator's own.
type IdentityCreationError struct {
	Err error
}

func (e *IdentityCreationError) Error() string { return e.Err.Error() }
func (e *IdentityCreationError) Unwrap() error { return e.Err }

// PasswordChangeError wraps a rejected password change (wrong current
// password, weak or reused new password).
type PasswordChangeError struct {
	Err error
}

func (e *PasswordChangeError) Error() string { return e.Err.Error() }
func (e *PasswordChangeError) Unwrap() error { return e.Err }

// InvalidElderCodeError means no elder owns Code.
type InvalidElderCodeError struct {
	Code string
}

func (e *InvalidElderCodeError) Error() string {
	return fmt.Sprintf("invalid elder code %q: please check and try again", e.Code)
}

// NotFoundError means an id did not resolve to the record kind an operation needs.
type NotFoundError struct {
	Kind string // "elder", "family member", "user", "pending request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError reports malformed input. Nothing is written when it is returned.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

// isClassified reports whether err already carries one of this package's kinds.
func isClassified(err error) bool {
	var (
		ie *IdentityCreationError
		pc *PasswordChangeError
		ce *InvalidElderCodeError
		nf *NotFoundError
		pe *PersistenceError
		ve *ValidationError
	)
	return errors.As(err, &ie) || errors.As(err, &pc) || errors.As(err, &ce) || errors.As(err, &nf) ||
		errors.As(err, &pe) || errors.As(err, &ve) ||
		errors.Is(err, ErrNotApproved) || errors.Is(err, ErrAlreadyLinked)
}

// persistence wraps err as a PersistenceError unless it is already classified.
func persistence(op string, err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
