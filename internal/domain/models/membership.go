// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership grants a user a role within one org unit. A user may hold
// memberships in several units at once (multi-department case); exactly
// one document exists per (user_id, org_unit_id), enforced by a unique
// index. Revocation deletes the document.
type Membership struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	OrgUnitID primitive.ObjectID `bson:"org_unit_id" json:"org_unit_id"`
	Role      string             `bson:"role" json:"role"`

	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	CreatedByID primitive.ObjectID `bson:"created_by_id" json:"created_by_id"`
}
