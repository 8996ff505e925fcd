// internal/domain/models/approvalstep.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StepStatus is the state of one approval gate.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepExpired   StepStatus = "expired"
)

// StepAction is the decision recorded when a step completes.
type StepAction string

const (
	ActionApprove         StepAction = "approve"
	ActionReject          StepAction = "reject"
	ActionRequestRevision StepAction = "request_revision"
	ActionForward         StepAction = "forward"
)

// ApprovalStep is one gate in the ordered chain of sign-offs on a
// submission. Steps are processed in ascending Level order. The step
// holds a weak reference to its submission: relation and lookup only,
// deleting a step never touches the submission.
//
// The approver requirement is either a specific user (RequiredApproverID)
// or any holder of RequiredRole; forwarding reassigns the responsible
// approver via DelegatedToID without changing Level.
type ApprovalStep struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	TaskID       primitive.ObjectID `bson:"task_id" json:"task_id"`
	SubmissionID primitive.ObjectID `bson:"submission_id" json:"submission_id"`

	Level int `bson:"level" json:"level"`

	RequiredApproverID *primitive.ObjectID `bson:"required_approver_id,omitempty" json:"required_approver_id,omitempty"`
	RequiredRole       string              `bson:"required_role,omitempty" json:"required_role,omitempty"`

	Status StepStatus `bson:"status" json:"status"`
	Action StepAction `bson:"action,omitempty" json:"action,omitempty"`

	DecidedByID *primitive.ObjectID `bson:"decided_by_id,omitempty" json:"decided_by_id,omitempty"`
	Feedback    string              `bson:"feedback,omitempty" json:"feedback,omitempty"`

	DelegatedToID *primitive.ObjectID `bson:"delegated_to_id,omitempty" json:"delegated_to_id,omitempty"`
	DelegatedByID *primitive.ObjectID `bson:"delegated_by_id,omitempty" json:"delegated_by_id,omitempty"`
	ForwardedAt   *time.Time          `bson:"forwarded_at,omitempty" json:"forwarded_at,omitempty"`

	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
}
