// internal/app/system/visibility/visibility.go

// Package visibility composes the coverage resolver and the role rank
// table: a candidate record is visible to an actor only when it sits in
// a covered org unit AND carries a role the actor may view. Both
// conditions are required: coverage alone would let a department head
// see a peer head's data, and rank alone would allow cross-department
// visibility.
package visibility

import (
	"github.com/dalemusser/taskhub/internal/app/system/hierarchy"
	"github.com/dalemusser/taskhub/internal/app/system/rolerank"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Candidate is one (user, unit, role) record to filter.
type Candidate struct {
	UserID    primitive.ObjectID
	OrgUnitID primitive.ObjectID
	Role      string
}

// Resolver filters candidates against one org tree snapshot. It is
// pure and read-only; build one per request and discard it.
type Resolver struct {
	snap *hierarchy.Snapshot
}

// New creates a Resolver over the given snapshot.
func New(snap *hierarchy.Snapshot) *Resolver {
	return &Resolver{snap: snap}
}

// CanSee reports whether the actor may see the candidate. An actor
// always sees itself regardless of rank or coverage; everything else
// requires both unit coverage and role visibility.
func (r *Resolver) CanSee(actorID primitive.ObjectID, actorRole string, memberships []models.Membership, c Candidate) bool {
	if c.UserID == actorID {
		return true
	}
	if !r.snap.Covers(memberships, c.OrgUnitID) {
		return false
	}
	return rolerank.CanView(actorRole, c.Role)
}

// FilterVisible returns the candidates the actor is authorized to see,
// preserving input order. A candidate with an unknown role or an
// unknown unit is silently dropped (fail-closed per record); one bad
// record must not abort the whole pass.
func (r *Resolver) FilterVisible(actorID primitive.ObjectID, actorRole string, memberships []models.Membership, candidates []Candidate) []Candidate {
	coverage := r.snap.Coverage(memberships)
	visible := rolerank.VisibleRoles(actorRole)

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == actorID {
			out = append(out, c)
			continue
		}
		if _, ok := coverage[c.OrgUnitID]; !ok {
			continue
		}
		if _, ok := visible[c.Role]; !ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
