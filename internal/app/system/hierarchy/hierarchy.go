// internal/app/system/hierarchy/hierarchy.go

// Package hierarchy holds the in-memory org tree snapshot and the
// coverage resolver: given an actor's memberships, the closed set of
// org units (self plus all descendants) the actor may operate on.
//
// Coverage is computed by ancestor-list containment, not a tree walk:
// every unit carries its full ancestor chain, so resolving a subtree is
// one pass over the snapshot. The resolver is pure and read-only; it is
// safe to call with arbitrary concurrency and never errors: missing or
// empty inputs yield an empty set (fail-closed).
package hierarchy

import (
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Snapshot is an immutable view of the org tree, built from the active
// units of the org_units collection. Deleted units are excluded at
// construction so every lookup below already honors soft deletion.
type Snapshot struct {
	units []models.OrgUnit
	byID  map[primitive.ObjectID]models.OrgUnit
}

// NewSnapshot builds a snapshot from the given units, skipping any unit
// not in active status.
func NewSnapshot(units []models.OrgUnit) *Snapshot {
	s := &Snapshot{
		units: make([]models.OrgUnit, 0, len(units)),
		byID:  make(map[primitive.ObjectID]models.OrgUnit, len(units)),
	}
	for _, u := range units {
		if u.Status != models.OrgUnitActive {
			continue
		}
		s.units = append(s.units, u)
		s.byID[u.ID] = u
	}
	return s
}

// Unit looks up a unit by id.
func (s *Snapshot) Unit(id primitive.ObjectID) (models.OrgUnit, bool) {
	u, ok := s.byID[id]
	return u, ok
}

// Units returns all active units in the snapshot.
func (s *Snapshot) Units() []models.OrgUnit {
	return s.units
}

// Coverage returns the closed set of unit ids the actor may operate on:
// for each membership unit, the unit itself plus every unit whose
// ancestor chain contains it. Memberships pointing at unknown or
// deleted units contribute nothing. Zero memberships cover nothing,
// including the actor's own record.
func (s *Snapshot) Coverage(memberships []models.Membership) map[primitive.ObjectID]struct{} {
	roots := make(map[primitive.ObjectID]struct{}, len(memberships))
	for _, m := range memberships {
		if _, ok := s.byID[m.OrgUnitID]; ok {
			roots[m.OrgUnitID] = struct{}{}
		}
	}

	covered := make(map[primitive.ObjectID]struct{}, len(roots))
	if len(roots) == 0 {
		return covered
	}

	for _, u := range s.units {
		if _, ok := roots[u.ID]; ok {
			covered[u.ID] = struct{}{}
			continue
		}
		for _, a := range u.Ancestors {
			if _, ok := roots[a]; ok {
				covered[u.ID] = struct{}{}
				break
			}
		}
	}
	return covered
}

// Covers reports whether the actor's memberships cover the target unit.
func (s *Snapshot) Covers(memberships []models.Membership, target primitive.ObjectID) bool {
	unit, ok := s.byID[target]
	if !ok {
		return false
	}
	for _, m := range memberships {
		if m.OrgUnitID == target {
			return true
		}
		if unit.IsDescendantOf(m.OrgUnitID) {
			if _, known := s.byID[m.OrgUnitID]; known {
				return true
			}
		}
	}
	return false
}

// ChildAncestors derives the ancestor chain for a child of parent:
// parent's own chain plus parent itself. Used by the org unit store at
// create and reparent time.
func ChildAncestors(parent models.OrgUnit) []primitive.ObjectID {
	chain := make([]primitive.ObjectID, 0, len(parent.Ancestors)+1)
	chain = append(chain, parent.Ancestors...)
	return append(chain, parent.ID)
}
