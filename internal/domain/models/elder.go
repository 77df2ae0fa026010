// internal/domain/models/elder.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ElderExtension holds per-elder relationship state. Its _id is the elder's
// user ID, so there is at most one extension per elder.
type ElderExtension struct {
	ID                primitive.ObjectID   `bson:"_id" json:"elder_id"`
	AssignedFamilyIDs []primitive.ObjectID `bson:"assigned_family_ids" json:"assigned_family_ids"`
	CreatedAt         time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at" json:"updated_at"`
}

// HasAssigned reports whether familyID is in the assigned set.
func (e ElderExtension) HasAssigned(familyID primitive.ObjectID) bool {
	for _, id := range e.AssignedFamilyIDs {
		if id == familyID {
			return true
		}
	}
	return false
}
