// internal/app/policy/taskpolicy/taskpolicy.go
package taskpolicy

import (
	"context"
	"net/http"

	membershipstore "github.com/dalemusser/taskhub/internal/app/store/memberships"
	orgunitstore "github.com/dalemusser/taskhub/internal/app/store/orgunits"
	"github.com/dalemusser/taskhub/internal/app/system/authz"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CoverageOf computes the closed set of org unit ids the user may act
// within: every membership unit plus everything below it, resolved by
// the ancestor-containment scan in the org unit store. A user with no
// memberships covers nothing (fail-closed); this never errors into
// permissive behavior.
func CoverageOf(ctx context.Context, db *mongo.Database, userID primitive.ObjectID) (map[primitive.ObjectID]struct{}, error) {
	memberships, err := membershipstore.New(db).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.OrgUnitID)
	}
	return orgunitstore.New(db).ListDescendantsOrSelf(ctx, ids)
}

// CanViewTask reports whether the current request user may see the
// task: program admins always, assignees and the creator always, and
// otherwise anyone whose coverage includes the task's home unit.
// Returns (false, nil) for "not authorized" and (false, err) only for
// database failures, so callers can distinguish the two.
func CanViewTask(ctx context.Context, db *mongo.Database, r *http.Request, task models.Task) (bool, error) {
	role, _, uid, ok := authz.UserCtx(r)
	if !ok {
		return false, nil
	}
	if role == models.RoleProgramAdmin {
		return true, nil
	}
	if task.CreatedByID == uid {
		return true, nil
	}
	if _, assigned := task.AssignmentFor(uid); assigned {
		return true, nil
	}

	coverage, err := CoverageOf(ctx, db, uid)
	if err != nil {
		return false, err
	}
	_, covered := coverage[task.OrgUnitID]
	return covered, nil
}

// CanManageTask reports whether the current request user may create a
// task in, or assign people to a task homed in, the given unit: the
// role must be allowed to create tasks at all, and the unit must be in
// the user's coverage. Program admins cover everything.
func CanManageTask(ctx context.Context, db *mongo.Database, r *http.Request, orgUnitID primitive.ObjectID) (bool, error) {
	if !authz.CanCreateTasks(r) {
		return false, nil
	}
	if authz.IsProgramAdmin(r) {
		return true, nil
	}
	_, _, uid, _ := authz.UserCtx(r)

	coverage, err := CoverageOf(ctx, db, uid)
	if err != nil {
		return false, err
	}
	_, covered := coverage[orgUnitID]
	return covered, nil
}

// IsAssignee reports whether the current request user holds the given
// assignment on the task. Only the assignee of record (or a user the
// submission was delegated to upstream) may submit against it.
func IsAssignee(r *http.Request, task models.Task, assignmentID primitive.ObjectID) bool {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		return false
	}
	a, found := task.AssignmentByID(assignmentID)
	return found && a.AssigneeID == uid
}
