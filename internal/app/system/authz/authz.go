// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a
// found flag. If no user is present in context or the user ID is malformed,
// it returns "visitor", "", NilObjectID, false. Callers can trust that
// ok=true means a valid, authenticated user with a valid ObjectID.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session - fail closed.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// IsProgramAdmin reports whether the current request's user is a program admin.
func IsProgramAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "program_admin"
}

// IsChairman reports whether the current request's user is a chairman.
func IsChairman(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "chairman"
}

// IsHOD reports whether the current request's user is a head of department.
func IsHOD(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "hod"
}

// IsCoordinator reports whether the current request's user is a coordinator.
func IsCoordinator(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "coordinator"
}

// IsStudent reports whether the current request's user is a student.
func IsStudent(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "student"
}

// CanManageOrgUnits reports whether the current user may create, reparent,
// or delete org units. Only the top two ranks can.
func CanManageOrgUnits(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && (role == "program_admin" || role == "chairman")
}

// CanCreateTasks reports whether the current user may create tasks and
// assign people to them. Students cannot; everyone above can within
// their coverage.
func CanCreateTasks(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role != "student" && role != "visitor"
}
