// internal/domain/models/submission.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubmissionType tags where a version sits in the revision loop.
type SubmissionType string

const (
	SubmissionInitial  SubmissionType = "initial"
	SubmissionRevision SubmissionType = "revision"
	SubmissionFinal    SubmissionType = "final"
)

// SubmissionStatus is the per-version review state.
type SubmissionStatus string

const (
	SubmissionDraft             SubmissionStatus = "draft"
	SubmissionSubmitted         SubmissionStatus = "submitted"
	SubmissionUnderReview       SubmissionStatus = "under_review"
	SubmissionApproved          SubmissionStatus = "approved"
	SubmissionRevisionRequested SubmissionStatus = "revision_requested"
	SubmissionRejected          SubmissionStatus = "rejected"
)

// Attachment is an opaque reference to uploaded content. Key is a UUID
// issued at accept time; blob storage itself is a collaborator concern.
type Attachment struct {
	Key         string `bson:"key" json:"key"`
	Name        string `bson:"name" json:"name"`
	ContentType string `bson:"content_type" json:"content_type"`
	Size        int64  `bson:"size" json:"size"`
}

// Submission is one versioned attempt by an assignee to satisfy a task's
// deliverables. Versions per assignment are 1, 2, 3, ... with no gaps,
// and exactly one document per assignment carries is_latest=true, the
// single invariant dashboards and approval routing depend on.
// PreviousSubmissionID is a lookup-only back-reference, never an
// ownership edge.
type Submission struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	TaskID       primitive.ObjectID `bson:"task_id" json:"task_id"`
	AssignmentID primitive.ObjectID `bson:"assignment_id" json:"assignment_id"`
	SubmitterID  primitive.ObjectID `bson:"submitter_id" json:"submitter_id"`

	Version int            `bson:"version" json:"version"`
	Type    SubmissionType `bson:"type" json:"type"`

	Status   SubmissionStatus `bson:"status" json:"status"`
	IsLatest bool             `bson:"is_latest" json:"is_latest"`

	Note        string       `bson:"note,omitempty" json:"note,omitempty"`
	Attachments []Attachment `bson:"attachments" json:"attachments"`

	PreviousSubmissionID *primitive.ObjectID `bson:"previous_submission_id,omitempty" json:"previous_submission_id,omitempty"`

	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}
