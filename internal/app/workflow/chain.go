// internal/app/workflow/chain.go
package workflow

import (
	"sort"
	"time"

	"github.com/dalemusser/taskhub/internal/app/system/rolerank"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LevelSpec describes one gate when instantiating a chain: either a
// specific approver or any holder of a role.
type LevelSpec struct {
	Level      int
	ApproverID *primitive.ObjectID
	Role       string
}

// LevelSpecsFor converts a task's stored approval chain spec into level
// specs. A task with no explicit spec gets a single level requiring the
// task's creator.
func LevelSpecsFor(task models.Task) []LevelSpec {
	if len(task.ApprovalLevels) == 0 {
		creator := task.CreatedByID
		return []LevelSpec{{Level: 1, ApproverID: &creator}}
	}
	specs := make([]LevelSpec, 0, len(task.ApprovalLevels))
	for _, l := range task.ApprovalLevels {
		specs = append(specs, LevelSpec{Level: l.Level, ApproverID: l.ApproverID, Role: l.Role})
	}
	return specs
}

// BuildChain instantiates the approval steps for one submission version.
// Only the lowest level starts pending; higher levels are created
// pending too but are guarded by the ordering rule in CheckAdvance.
// A fresh chain is built for every submission version — steps from a
// superseded version are never reused.
func BuildChain(taskID, submissionID primitive.ObjectID, specs []LevelSpec, now time.Time) []models.ApprovalStep {
	steps := make([]models.ApprovalStep, 0, len(specs))
	for _, spec := range specs {
		steps = append(steps, models.ApprovalStep{
			ID:                 primitive.NewObjectID(),
			TaskID:             taskID,
			SubmissionID:       submissionID,
			Level:              spec.Level,
			RequiredApproverID: spec.ApproverID,
			RequiredRole:       spec.Role,
			Status:             models.StepPending,
			CreatedAt:          now,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Level < steps[j].Level })
	return steps
}

// ValidateLevels checks a chain spec before instantiation: at least one
// level, positive strictly-increasing level numbers, and each level
// naming either an approver or a role.
func ValidateLevels(specs []LevelSpec) error {
	if len(specs) == 0 {
		return &ValidationError{Field: "approval levels", Reason: "at least one level is required"}
	}
	prev := 0
	for _, spec := range specs {
		if spec.Level <= prev {
			return &ValidationError{Field: "approval level", Reason: "levels must be positive and strictly increasing"}
		}
		if spec.ApproverID == nil && !models.IsValidRole(spec.Role) {
			return &ValidationError{Field: "approval level", Reason: "each level needs an approver or a valid role"}
		}
		prev = spec.Level
	}
	return nil
}

// CurrentLevel returns the lowest pending level in the chain.
func CurrentLevel(steps []models.ApprovalStep) (models.ApprovalStep, bool) {
	var current models.ApprovalStep
	found := false
	for _, s := range steps {
		if s.Status != models.StepPending {
			continue
		}
		if !found || s.Level < current.Level {
			current = s
			found = true
		}
	}
	return current, found
}

// CheckAdvance validates that the given step may be decided now:
// it must exist in the chain, still be pending (else AlreadyDecided),
// and no step at a lower level may still be pending (else
// OutOfOrderApproval).
func CheckAdvance(steps []models.ApprovalStep, stepID primitive.ObjectID) error {
	var target *models.ApprovalStep
	for i := range steps {
		if steps[i].ID == stepID {
			target = &steps[i]
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}
	if target.Status != models.StepPending {
		return &AlreadyDecidedError{StepID: stepID}
	}
	for _, s := range steps {
		if s.Status == models.StepPending && s.Level < target.Level {
			return &OutOfOrderApprovalError{Level: target.Level, PendingLevel: s.Level}
		}
	}
	return nil
}

// CanDecide reports whether the actor is authorized to decide the step:
// the required approver, the current delegate, or a holder of a role
// that strictly outranks the step's required role (supervisor override).
// Fail-closed: a step with no resolvable requirement admits nobody.
func CanDecide(step models.ApprovalStep, actorID primitive.ObjectID, actorRole string) bool {
	if step.DelegatedToID != nil && *step.DelegatedToID == actorID {
		return true
	}
	if step.RequiredApproverID != nil && *step.RequiredApproverID == actorID {
		return true
	}
	if step.RequiredRole != "" {
		if actorRole == step.RequiredRole {
			return true
		}
		return rolerank.Outranks(actorRole, step.RequiredRole)
	}
	return false
}

// TaskStatusAfter maps a completed decision to the task-level status it
// drives: approve advances (final_approved when no higher level
// remains), reject is terminal immediately, request_revision reopens
// the revision loop. Forward never changes task status.
func TaskStatusAfter(action models.StepAction, hasHigherLevel bool) (models.TaskStatus, bool) {
	switch action {
	case models.ActionApprove:
		if hasHigherLevel {
			return models.TaskUnderReview, true
		}
		return models.TaskFinalApproved, true
	case models.ActionReject:
		return models.TaskRejected, true
	case models.ActionRequestRevision:
		return models.TaskRevisionRequested, true
	}
	return "", false
}
