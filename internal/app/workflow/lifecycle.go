// internal/app/workflow/lifecycle.go

// Package workflow is the task/approval state machine: the task status
// transition table, per-assignee aggregation, submission version rules,
// and the approval chain ordering rules. Everything here is pure; the
// stores apply these rules inside narrow per-aggregate updates.
package workflow

import (
	"strings"

	"github.com/dalemusser/taskhub/internal/domain/models"
)

// transitions is the full allowed table. Terminal states
// (final_approved, rejected, archived) have no outgoing edges.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskDraft:      {models.TaskAssigned},
	models.TaskAssigned:   {models.TaskInProgress, models.TaskSubmitted, models.TaskArchived},
	models.TaskInProgress: {models.TaskSubmitted, models.TaskArchived},
	models.TaskSubmitted:  {models.TaskUnderReview},
	// The top-level approve drives the task straight to final_approved;
	// intermediate approvals may park it at approved/forwarded.
	models.TaskUnderReview: {models.TaskApproved, models.TaskFinalApproved, models.TaskRevisionRequested, models.TaskRejected},
	// Revision loop: the assignee resubmits, which moves the task back
	// through in_progress.
	models.TaskRevisionRequested: {models.TaskInProgress, models.TaskSubmitted, models.TaskArchived},
	models.TaskApproved:          {models.TaskForwarded, models.TaskFinalApproved},
	models.TaskForwarded:         {models.TaskFinalApproved},
	models.TaskFinalApproved:     {},
	models.TaskRejected:          {},
	models.TaskArchived:          {},
}

// CanTransition reports whether from -> to is in the allowed table.
func CanTransition(from, to models.TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning an InvalidTransitionError
// identifying both states when the edge is not allowed. A rejected
// transition is never silently ignored.
func Transition(from, to models.TaskStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether the status accepts no further transitions.
func IsTerminal(s models.TaskStatus) bool {
	return len(transitions[s]) == 0
}

// NextHop returns the intermediate status connecting from to to when no
// direct edge exists: the first allowed successor of from that itself
// reaches to. The aggregate recomputation uses this to pass through
// short-lived states (assigned -> submitted -> under_review) without
// widening the table.
func NextHop(from, to models.TaskStatus) (models.TaskStatus, bool) {
	for _, mid := range transitions[from] {
		if CanTransition(mid, to) {
			return mid, true
		}
	}
	return "", false
}

// assignment status ranks for task-level aggregation, least advanced
// first. A rejected assignment does not hold the whole task back.
var assignmentRank = map[models.AssignmentStatus]int{
	models.AssignmentNotSubmitted: 0,
	models.AssignmentInReview:     1,
	models.AssignmentRejected:     2,
	models.AssignmentApproved:     3,
}

// AggregateStatus derives the task-level status from its assignments:
// the task reflects the *least advanced* assignment, so a task is not
// "submitted" at the task level until every assignment has at least one
// submission. This governs dashboard aggregation only; individual
// assignment statuses track independently.
func AggregateStatus(current models.TaskStatus, assignments []models.Assignment) models.TaskStatus {
	if IsTerminal(current) || len(assignments) == 0 {
		return current
	}

	least := assignments[0]
	for _, a := range assignments[1:] {
		if assignmentRank[a.Status] < assignmentRank[least.Status] {
			least = a
		}
	}

	switch least.Status {
	case models.AssignmentNotSubmitted:
		if least.Attempts > 0 {
			// A revision was requested and the slowest assignee has not
			// resubmitted. The task stays parked in revision_requested
			// until the resubmission arrives, not the approver's decision.
			if current == models.TaskRevisionRequested {
				return current
			}
			return models.TaskInProgress
		}
		return models.TaskAssigned
	case models.AssignmentInReview:
		return models.TaskUnderReview
	case models.AssignmentApproved:
		return models.TaskApproved
	case models.AssignmentRejected:
		return models.TaskRejected
	}
	return current
}

// deliverable types recognized by ValidateDeliverables.
var deliverableTypes = map[string]bool{
	models.DeliverableFile: true,
	models.DeliverableLink: true,
	models.DeliverableText: true,
}

// ValidateDeliverables checks the structural validity required for a
// draft task to be assigned: at least one deliverable, each with a
// non-blank label and a recognized type.
func ValidateDeliverables(specs []models.Deliverable) error {
	if len(specs) == 0 {
		return &ValidationError{Field: "deliverables", Reason: "at least one deliverable is required"}
	}
	for _, d := range specs {
		if strings.TrimSpace(d.Label) == "" {
			return &ValidationError{Field: "deliverable label", Reason: "must not be blank"}
		}
		if !deliverableTypes[d.Type] {
			return &ValidationError{Field: "deliverable type", Reason: "unrecognized type " + d.Type}
		}
	}
	return nil
}

// NextVersion computes the version number for a new submission on an
// assignment: latest + 1, or 1 when none exists yet.
func NextVersion(latest *models.Submission) int {
	if latest == nil {
		return 1
	}
	return latest.Version + 1
}

// SubmissionTypeFor tags the new version: the very first submission is
// initial, anything after is a revision.
func SubmissionTypeFor(latest *models.Submission) models.SubmissionType {
	if latest == nil {
		return models.SubmissionInitial
	}
	return models.SubmissionRevision
}
