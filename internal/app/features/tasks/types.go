// internal/app/features/tasks/types.go
package tasks

import (
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
)

// deliverableSpec is one required artifact in a create request.
type deliverableSpec struct {
	Type     string `json:"type"`
	Label    string `json:"label"`
	Optional bool   `json:"optional,omitempty"`
}

// approvalLevelSpec is one gate of the approval chain in a create
// request. Either approver_id or role must be set.
type approvalLevelSpec struct {
	Level      int    `json:"level"`
	ApproverID string `json:"approver_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// createRequest is the body for creating a task.
type createRequest struct {
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	OrgUnitID      string              `json:"org_unit_id"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	Deliverables   []deliverableSpec   `json:"deliverables"`
	ApprovalLevels []approvalLevelSpec `json:"approval_levels,omitempty"`
}

// assignEntry is one assignee in an assign request.
type assignEntry struct {
	AssigneeID string `json:"assignee_id"`
	ReviewerID string `json:"reviewer_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// assignRequest is the body for assigning users to a task.
type assignRequest struct {
	Assignees []assignEntry `json:"assignees"`
}

// attachmentSpec is one uploaded artifact in a submit request. The
// artifact bytes live in external storage; the server records metadata
// and issues the opaque key.
type attachmentSpec struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// submitRequest is the body for submitting work against an assignment.
type submitRequest struct {
	Note        string           `json:"note,omitempty"`
	Attachments []attachmentSpec `json:"attachments,omitempty"`
}

// decideRequest is the body for deciding a pending approval step.
type decideRequest struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback,omitempty"`
}

// forwardRequest is the body for reassigning a pending step's approver.
type forwardRequest struct {
	DelegateID string `json:"delegate_id"`
}

// assignmentResponse is the JSON shape of one embedded assignment.
type assignmentResponse struct {
	ID               string     `json:"id"`
	AssigneeID       string     `json:"assignee_id"`
	AssignedByID     string     `json:"assigned_by_id"`
	ReviewerID       string     `json:"reviewer_id,omitempty"`
	RoleAtAssignment string     `json:"role_at_assignment,omitempty"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	LastSubmissionID string     `json:"last_submission_id,omitempty"`
	LastSubmittedAt  *time.Time `json:"last_submitted_at,omitempty"`
}

// taskResponse is the JSON shape of one task.
type taskResponse struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	OrgUnitID    string               `json:"org_unit_id"`
	CreatedByID  string               `json:"created_by_id"`
	Status       string               `json:"status"`
	DueDate      *time.Time           `json:"due_date,omitempty"`
	Deliverables []models.Deliverable `json:"deliverables"`
	Assignments  []assignmentResponse `json:"assignments"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// submissionResponse is the JSON shape of one submission version.
type submissionResponse struct {
	ID           string              `json:"id"`
	TaskID       string              `json:"task_id"`
	AssignmentID string              `json:"assignment_id"`
	SubmitterID  string              `json:"submitter_id"`
	Version      int                 `json:"version"`
	Type         string              `json:"type"`
	Status       string              `json:"status"`
	IsLatest     bool                `json:"is_latest"`
	Note         string              `json:"note,omitempty"`
	Attachments  []models.Attachment `json:"attachments"`
	SubmittedAt  time.Time           `json:"submitted_at"`
}

// stepResponse is the JSON shape of one approval step.
type stepResponse struct {
	ID                 string     `json:"id"`
	TaskID             string     `json:"task_id"`
	SubmissionID       string     `json:"submission_id"`
	Level              int        `json:"level"`
	RequiredApproverID string     `json:"required_approver_id,omitempty"`
	RequiredRole       string     `json:"required_role,omitempty"`
	Status             string     `json:"status"`
	Action             string     `json:"action,omitempty"`
	DecidedByID        string     `json:"decided_by_id,omitempty"`
	Feedback           string     `json:"feedback,omitempty"`
	DelegatedToID      string     `json:"delegated_to_id,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

func toAssignmentResponse(a models.Assignment) assignmentResponse {
	resp := assignmentResponse{
		ID:               a.ID.Hex(),
		AssigneeID:       a.AssigneeID.Hex(),
		AssignedByID:     a.AssignedByID.Hex(),
		RoleAtAssignment: a.RoleAtAssignment,
		Status:           string(a.Status),
		Attempts:         a.Attempts,
		LastSubmittedAt:  a.LastSubmittedAt,
	}
	if a.ReviewerID != nil {
		resp.ReviewerID = a.ReviewerID.Hex()
	}
	if a.LastSubmissionID != nil {
		resp.LastSubmissionID = a.LastSubmissionID.Hex()
	}
	return resp
}

func toTaskResponse(t models.Task) taskResponse {
	resp := taskResponse{
		ID:           t.ID.Hex(),
		Title:        t.Title,
		Description:  t.Description,
		OrgUnitID:    t.OrgUnitID.Hex(),
		CreatedByID:  t.CreatedByID.Hex(),
		Status:       string(t.Status),
		DueDate:      t.DueDate,
		Deliverables: t.Deliverables,
		Assignments:  make([]assignmentResponse, 0, len(t.Assignments)),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	for _, a := range t.Assignments {
		resp.Assignments = append(resp.Assignments, toAssignmentResponse(a))
	}
	return resp
}

func toSubmissionResponse(s models.Submission) submissionResponse {
	return submissionResponse{
		ID:           s.ID.Hex(),
		TaskID:       s.TaskID.Hex(),
		AssignmentID: s.AssignmentID.Hex(),
		SubmitterID:  s.SubmitterID.Hex(),
		Version:      s.Version,
		Type:         string(s.Type),
		Status:       string(s.Status),
		IsLatest:     s.IsLatest,
		Note:         s.Note,
		Attachments:  s.Attachments,
		SubmittedAt:  s.SubmittedAt,
	}
}

func toStepResponse(s models.ApprovalStep) stepResponse {
	resp := stepResponse{
		ID:           s.ID.Hex(),
		TaskID:       s.TaskID.Hex(),
		SubmissionID: s.SubmissionID.Hex(),
		Level:        s.Level,
		RequiredRole: s.RequiredRole,
		Status:       string(s.Status),
		Action:       string(s.Action),
		Feedback:     s.Feedback,
		CompletedAt:  s.CompletedAt,
	}
	if s.RequiredApproverID != nil {
		resp.RequiredApproverID = s.RequiredApproverID.Hex()
	}
	if s.DecidedByID != nil {
		resp.DecidedByID = s.DecidedByID.Hex()
	}
	if s.DelegatedToID != nil {
		resp.DelegatedToID = s.DelegatedToID.Hex()
	}
	return resp
}
