// internal/app/policy/approvalpolicy/approvalpolicy.go
package approvalpolicy

import (
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/system/authz"
	"github.com/dalemusser/taskhub/internal/app/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
)

// CanDecideStep reports whether the current request user may decide the
// step: the required approver, the current delegate, or a holder of a
// role strictly outranking the step's required role (supervisor
// override). Visitors and malformed sessions fail closed.
func CanDecideStep(r *http.Request, step models.ApprovalStep) bool {
	role, _, uid, ok := authz.UserCtx(r)
	if !ok {
		return false
	}
	return workflow.CanDecide(step, uid, role)
}

// CanForwardStep reports whether the current request user may reassign
// the step's approver. The same people who can decide a step can
// forward it.
func CanForwardStep(r *http.Request, step models.ApprovalStep) bool {
	return CanDecideStep(r, step)
}
