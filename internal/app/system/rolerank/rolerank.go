// internal/app/system/rolerank/rolerank.go

// Package rolerank is the single authoritative "outranks" table. Every
// role-visibility decision in the app goes through it; there is
// deliberately no second copy of this table anywhere.
//
// The relation is not a plain linear order: a coordinator manages only
// professors and students within their own units, even though other
// roles sit between them globally.
package rolerank

import "github.com/dalemusser/taskhub/internal/domain/models"

// visibleBelow maps each role to the set of roles strictly below it.
// An unknown role maps to nothing: zero visibility, no error, so one
// bad record never hides access to valid records (fail-closed).
var visibleBelow = map[string][]string{
	models.RoleProgramAdmin: {
		models.RoleChairman,
		models.RoleViceChairman,
		models.RoleHOD,
		models.RoleCoordinator,
		models.RoleProfessor,
		models.RoleStudent,
	},
	models.RoleChairman: {
		models.RoleViceChairman,
		models.RoleHOD,
		models.RoleCoordinator,
		models.RoleProfessor,
		models.RoleStudent,
	},
	models.RoleViceChairman: {
		models.RoleHOD,
		models.RoleCoordinator,
		models.RoleProfessor,
		models.RoleStudent,
	},
	models.RoleHOD: {
		models.RoleCoordinator,
		models.RoleProfessor,
		models.RoleStudent,
	},
	models.RoleCoordinator: {
		models.RoleProfessor,
		models.RoleStudent,
	},
	models.RoleProfessor: {
		models.RoleStudent,
	},
	models.RoleStudent: {},
}

// VisibleRoles returns the set of roles the actor role may view or
// manage: everything strictly below it. The returned map is a fresh
// copy; callers may mutate it.
func VisibleRoles(actorRole string) map[string]struct{} {
	below := visibleBelow[actorRole]
	out := make(map[string]struct{}, len(below))
	for _, r := range below {
		out[r] = struct{}{}
	}
	return out
}

// Outranks reports whether a strictly outranks b. Unknown roles outrank
// nothing and are outranked by everything known above them.
func Outranks(a, b string) bool {
	for _, r := range visibleBelow[a] {
		if r == b {
			return true
		}
	}
	return false
}

// CanView reports whether an actor with actorRole may view records of
// targetRole: strictly-below only. Self-visibility (an actor always
// sees its own record) is decided by the visibility resolver on user
// id, not here.
func CanView(actorRole, targetRole string) bool {
	return Outranks(actorRole, targetRole)
}
