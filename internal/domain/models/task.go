// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskStatus is the task-level lifecycle state. Illegal values are
// unrepresentable as far as the workflow package is concerned: every
// transition goes through its explicit table.
type TaskStatus string

const (
	TaskDraft             TaskStatus = "draft"
	TaskAssigned          TaskStatus = "assigned"
	TaskInProgress        TaskStatus = "in_progress"
	TaskSubmitted         TaskStatus = "submitted"
	TaskUnderReview       TaskStatus = "under_review"
	TaskRevisionRequested TaskStatus = "revision_requested"
	TaskApproved          TaskStatus = "approved"
	TaskForwarded         TaskStatus = "forwarded"
	TaskFinalApproved     TaskStatus = "final_approved"
	TaskRejected          TaskStatus = "rejected"
	TaskArchived          TaskStatus = "archived"
)

// AssignmentStatus tracks one assignee's progress independently of the
// task-level status.
type AssignmentStatus string

const (
	AssignmentNotSubmitted AssignmentStatus = "not_submitted"
	AssignmentInReview     AssignmentStatus = "in_review"
	AssignmentApproved     AssignmentStatus = "approved"
	AssignmentRejected     AssignmentStatus = "rejected"
)

// Deliverable types a task may require.
const (
	DeliverableFile = "file"
	DeliverableLink = "link"
	DeliverableText = "text"
)

// Deliverable is one required (or optional) artifact spec on a task.
type Deliverable struct {
	Type     string `bson:"type" json:"type"`
	Label    string `bson:"label" json:"label"`
	Optional bool   `bson:"optional" json:"optional"`
}

// Assignment pairs a task with one assignee. Assignments are embedded in
// the task document: they are created with the task's assign operation
// and die with the task. Submissions are referenced by id only, so a
// submission outlives reassignment.
type Assignment struct {
	ID               primitive.ObjectID  `bson:"_id" json:"id"`
	AssigneeID       primitive.ObjectID  `bson:"assignee_id" json:"assignee_id"`
	AssignedByID     primitive.ObjectID  `bson:"assigned_by_id" json:"assigned_by_id"`
	ReviewerID       *primitive.ObjectID `bson:"reviewer_id,omitempty" json:"reviewer_id,omitempty"`
	RoleAtAssignment string              `bson:"role_at_assignment" json:"role_at_assignment"`

	Status   AssignmentStatus `bson:"status" json:"status"`
	Attempts int              `bson:"attempts" json:"attempts"`

	LastSubmissionID *primitive.ObjectID `bson:"last_submission_id,omitempty" json:"last_submission_id,omitempty"`
	LastSubmittedAt  *time.Time          `bson:"last_submitted_at,omitempty" json:"last_submitted_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ApprovalLevel is one gate in the task's approval chain spec: either a
// specific approver or any holder of a role. The spec lives on the task;
// a fresh set of ApprovalStep documents is instantiated from it for
// every submission version.
type ApprovalLevel struct {
	Level      int                 `bson:"level" json:"level"`
	ApproverID *primitive.ObjectID `bson:"approver_id,omitempty" json:"approver_id,omitempty"`
	Role       string              `bson:"role,omitempty" json:"role,omitempty"`
}

// Task is the aggregate root: it owns its assignments (embedded) and its
// deliverable specs. OrgUnitID is the task's home unit and is what
// coverage checks run against.
type Task struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Title       string             `bson:"title" json:"title"`
	TitleCI     string             `bson:"title_ci" json:"-"`
	Description string             `bson:"description" json:"description"`

	OrgUnitID   primitive.ObjectID `bson:"org_unit_id" json:"org_unit_id"`
	CreatedByID primitive.ObjectID `bson:"created_by_id" json:"created_by_id"`

	Status  TaskStatus `bson:"status" json:"status"`
	DueDate *time.Time `bson:"due_date,omitempty" json:"due_date,omitempty"`

	Deliverables   []Deliverable   `bson:"deliverables" json:"deliverables"`
	ApprovalLevels []ApprovalLevel `bson:"approval_levels" json:"approval_levels"`
	Assignments    []Assignment    `bson:"assignments" json:"assignments"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AssignmentFor returns the embedded assignment for the given assignee.
func (t Task) AssignmentFor(assigneeID primitive.ObjectID) (Assignment, bool) {
	for _, a := range t.Assignments {
		if a.AssigneeID == assigneeID {
			return a, true
		}
	}
	return Assignment{}, false
}

// AssignmentByID returns the embedded assignment with the given id.
func (t Task) AssignmentByID(id primitive.ObjectID) (Assignment, bool) {
	for _, a := range t.Assignments {
		if a.ID == id {
			return a, true
		}
	}
	return Assignment{}, false
}
