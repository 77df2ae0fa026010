// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User types. A user's type is fixed at registration.
const (
	UserTypeElder  = "elder"
	UserTypeFamily = "family"
)

// User represents both elders and family members.
//
// NOTE:
//   - Elder-only fields (Age, ElderCode) are omitted on family records and
//     family-only fields (Relation, ElderID, IsApproved) on elder records.
//   - The elder's assigned family set lives in the elders collection
//     (see ElderExtension), not on the User document.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserType string             `bson:"user_type" json:"user_type"` // elder | family
	Name     string             `bson:"name" json:"name"`
	NameCI   string             `bson:"name_ci" json:"-"` // lowercase, diacritics-stripped
	Email    string             `bson:"email" json:"email"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`

	// Elder-only
	Age       int    `bson:"age,omitempty" json:"age,omitempty"`
	ElderCode string `bson:"elder_code,omitempty" json:"elder_code,omitempty"`

	// Family-only
	Relation            string              `bson:"relation,omitempty" json:"relation,omitempty"`
	RelationDescription string              `bson:"relation_description,omitempty" json:"relation_description,omitempty"`
	ElderID             *primitive.ObjectID `bson:"elder_id,omitempty" json:"elder_id,omitempty"`
	IsApproved          bool                `bson:"is_approved" json:"is_approved"`

	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
	LastActive time.Time `bson:"last_active" json:"last_active"`
}

// IsElder reports whether u is an elder account.
func (u User) IsElder() bool { return u.UserType == UserTypeElder }

// IsFamily reports whether u is a family account.
func (u User) IsFamily() bool { return u.UserType == UserTypeFamily }

// LinkedTo reports whether a family record points at elderID.
func (u User) LinkedTo(elderID primitive.ObjectID) bool {
	return u.ElderID != nil && *u.ElderID == elderID
}

// ElderSummary is what a linked family member sees of an elder. The elder
// code stays private to the elder.
type ElderSummary struct {
	ID         primitive.ObjectID `json:"id"`
	Name       string             `json:"name"`
	Age        int                `json:"age,omitempty"`
	Phone      string             `json:"phone,omitempty"`
	LastActive time.Time          `json:"last_active"`
}

// Summary returns the family-facing view of an elder record.
func (u User) Summary() ElderSummary {
	return ElderSummary{ID: u.ID, Name: u.Name, Age: u.Age, Phone: u.Phone, LastActive: u.LastActive}
}
