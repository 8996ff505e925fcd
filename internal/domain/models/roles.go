// internal/domain/models/roles.go
package models

// Role identifiers, stored lowercased on users and memberships.
// The rank relation between them lives in the rolerank package; roles
// are static configuration, never persisted per-instance beyond these
// strings.
const (
	RoleProgramAdmin = "program_admin"
	RoleChairman     = "chairman"
	RoleViceChairman = "vice_chairman"
	RoleHOD          = "hod"
	RoleCoordinator  = "coordinator"
	RoleProfessor    = "professor"
	RoleStudent      = "student"
)

// AllRoles lists every recognized role, highest rank first.
var AllRoles = []string{
	RoleProgramAdmin,
	RoleChairman,
	RoleViceChairman,
	RoleHOD,
	RoleCoordinator,
	RoleProfessor,
	RoleStudent,
}

// IsValidRole checks whether value is one of the recognized roles.
func IsValidRole(value string) bool {
	for _, r := range AllRoles {
		if r == value {
			return true
		}
	}
	return false
}
