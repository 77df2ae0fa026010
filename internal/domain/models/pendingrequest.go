// internal/domain/models/pendingrequest.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PendingRequest is a family registration awaiting the elder's decision.
// It is keyed by (elder_id, family_id); a unique index keeps one request
// per pair.
type PendingRequest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ElderID     primitive.ObjectID `bson:"elder_id" json:"elder_id"`
	FamilyID    primitive.ObjectID `bson:"family_id" json:"family_id"`
	Name        string             `bson:"name" json:"name"`
	Relation    string             `bson:"relation" json:"relation"`
	RequestedAt time.Time          `bson:"requested_at" json:"requested_at"`
}
