// Package normalize canonicalizes user-supplied values before they are
// stored or compared. Every function is safe to call on empty input.
package normalize

import (
	"strings"

	"github.com/dalemusser/eldercircle/internal/domain/models"
)

// Email trims and lower-cases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses internal runs of
// whitespace to a single space. Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Phone trims a phone number. Formatting is left to the caller.
func Phone(s string) string {
	return strings.TrimSpace(s)
}

// ElderCode trims and upper-cases an elder code as typed by a person.
func ElderCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Relation lower-cases a relation kind. Unknown values are returned as-is
// (lower-cased) so validation can report them.
func Relation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UserType lower-cases a user type, mapping unknown values to "".
func UserType(s string) string {
	switch t := strings.ToLower(strings.TrimSpace(s)); t {
	case models.UserTypeElder, models.UserTypeFamily:
		return t
	default:
		return ""
	}
}
