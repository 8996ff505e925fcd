// internal/domain/models/orgunit.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrgUnit statuses. Deleted units stay in the collection but are
// excluded from every read path (soft delete as an explicit state).
const (
	OrgUnitActive  = "active"
	OrgUnitDeleted = "deleted"
)

// OrgUnit is one node in the organizational tree (university, college,
// department, class).
//
// Ancestors holds the full ancestor chain root-first, so
// ancestors(node) == ancestors(parent) + [parent.id] and the root has an
// empty chain. Coverage queries are a containment scan over this field
// rather than a recursive walk; reparenting a unit requires recomputing
// Ancestors for its entire subtree.
type OrgUnit struct {
	ID        primitive.ObjectID   `bson:"_id" json:"id"`
	Name      string               `bson:"name" json:"name"`
	NameCI    string               `bson:"name_ci" json:"-"`
	ParentID  *primitive.ObjectID  `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Ancestors []primitive.ObjectID `bson:"ancestors" json:"ancestors"`

	Status string `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsDescendantOf reports whether u sits strictly below unitID.
func (u OrgUnit) IsDescendantOf(unitID primitive.ObjectID) bool {
	for _, a := range u.Ancestors {
		if a == unitID {
			return true
		}
	}
	return false
}
