// internal/app/workflow/errors.go
package workflow

import (
	"errors"
	"fmt"

	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sentinel errors shared across the workflow engine. Handlers map these
// to HTTP statuses; none are retried internally, since they signal a
// rule violation or a legitimate concurrent conflict the caller must
// re-evaluate against fresh state.
var (
	// ErrForbidden is returned when the actor fails an authorization
	// check. Coverage failures are reported to callers as ErrNotFound
	// instead, so org structure never leaks through error text.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced entity does not exist
	// or is outside the actor's coverage.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a concurrent submit won the
	// race for the next version number. The caller should re-fetch the
	// assignment and retry the intended submission.
	ErrVersionConflict = errors.New("submission version conflict")
)

// InvalidTransitionError reports a task status transition outside the
// allowed table. It always identifies the current state and the
// requested target so the caller can decide whether to retry against
// fresh state.
type InvalidTransitionError struct {
	From models.TaskStatus
	To   models.TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// OutOfOrderApprovalError reports an attempt to decide a step while a
// lower level is still pending.
type OutOfOrderApprovalError struct {
	Level        int
	PendingLevel int
}

func (e *OutOfOrderApprovalError) Error() string {
	return fmt.Sprintf("cannot decide level %d while level %d is pending", e.Level, e.PendingLevel)
}

// AlreadyDecidedError reports a decision against a step that has already
// completed. Repeated identical requests get this instead of a silent
// double-apply.
type AlreadyDecidedError struct {
	StepID primitive.ObjectID
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval step %s already decided", e.StepID.Hex())
}

// ValidationError reports malformed input, e.g. an empty deliverable
// label or an unrecognized deliverable type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
