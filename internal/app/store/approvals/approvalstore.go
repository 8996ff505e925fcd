// internal/app/store/approvals/approvalstore.go
package approvalstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/taskhub/internal/app/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store manages the approval_steps collection.
//
// Completion of a step is a single conditional update keyed on the step
// still being pending: of two concurrent decisions exactly one matches
// and the other gets AlreadyDecided. Level ordering is validated
// against the submission's chain before the write.
type Store struct {
	c *mongo.Collection
}

// New creates a Store bound to the approval_steps collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("approval_steps")}
}

// EnsureIndexes creates chain lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "submission_id", Value: 1}, {Key: "level", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "required_approver_id", Value: 1}, {Key: "status", Value: 1}}},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// CreateChain instantiates a fresh chain for one submission version.
// Chains are never reused across versions: a resubmission gets new
// steps starting again at the lowest level.
func (s *Store) CreateChain(ctx context.Context, taskID, submissionID primitive.ObjectID, specs []workflow.LevelSpec) ([]models.ApprovalStep, error) {
	if err := workflow.ValidateLevels(specs); err != nil {
		return nil, err
	}

	steps := workflow.BuildChain(taskID, submissionID, specs, time.Now().UTC())
	docs := make([]interface{}, 0, len(steps))
	for _, st := range steps {
		docs = append(docs, st)
	}
	if _, err := s.c.InsertMany(ctx, docs); err != nil {
		return nil, err
	}
	return steps, nil
}

// Get returns one step by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.ApprovalStep, error) {
	var step models.ApprovalStep
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&step)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ApprovalStep{}, workflow.ErrNotFound
	}
	return step, err
}

// ListBySubmission returns the chain for a submission in level order.
func (s *Store) ListBySubmission(ctx context.Context, submissionID primitive.ObjectID) ([]models.ApprovalStep, error) {
	cur, err := s.c.Find(ctx, bson.M{"submission_id": submissionID},
		options.Find().SetSort(bson.D{{Key: "level", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var steps []models.ApprovalStep
	if err := cur.All(ctx, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// CurrentStep returns the lowest pending step of a submission's chain.
func (s *Store) CurrentStep(ctx context.Context, submissionID primitive.ObjectID) (models.ApprovalStep, error) {
	steps, err := s.ListBySubmission(ctx, submissionID)
	if err != nil {
		return models.ApprovalStep{}, err
	}
	current, ok := workflow.CurrentLevel(steps)
	if !ok {
		return models.ApprovalStep{}, workflow.ErrNotFound
	}
	return current, nil
}

// Decision is the result of completing a step.
type Decision struct {
	Step models.ApprovalStep
	// HasHigherLevel reports whether a pending step remains above the
	// decided one (after request_revision skips, it is always false).
	HasHigherLevel bool
}

// Complete decides a pending step with approve, reject, or
// request_revision. Ordering is validated first; the completion itself
// is conditional on the step still being pending, which is the
// idempotency guard for concurrent identical requests.
// request_revision additionally marks every not-yet-reached level
// skipped; those gates are re-evaluated against the next version's
// fresh chain.
func (s *Store) Complete(ctx context.Context, stepID, actorID primitive.ObjectID, action models.StepAction, feedback string) (Decision, error) {
	if action != models.ActionApprove && action != models.ActionReject && action != models.ActionRequestRevision {
		return Decision{}, &workflow.ValidationError{Field: "action", Reason: "must be approve, reject, or request_revision"}
	}

	step, err := s.Get(ctx, stepID)
	if err != nil {
		return Decision{}, err
	}
	chain, err := s.ListBySubmission(ctx, step.SubmissionID)
	if err != nil {
		return Decision{}, err
	}
	if err := workflow.CheckAdvance(chain, stepID); err != nil {
		return Decision{}, err
	}

	now := time.Now().UTC()
	res := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": stepID, "status": models.StepPending},
		bson.M{"$set": bson.M{
			"status":        models.StepCompleted,
			"action":        action,
			"decided_by_id": actorID,
			"feedback":      feedback,
			"completed_at":  now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var updated models.ApprovalStep
	if err := res.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Lost the race: someone else completed it first.
			return Decision{}, &workflow.AlreadyDecidedError{StepID: stepID}
		}
		return Decision{}, err
	}

	hasHigher := false
	for _, st := range chain {
		if st.Level > updated.Level && st.Status == models.StepPending {
			hasHigher = true
			break
		}
	}

	switch action {
	case models.ActionReject:
		// The chain ends here; nothing above will be evaluated.
		if err := s.skipAbove(ctx, updated.SubmissionID, updated.Level, now); err != nil {
			return Decision{}, err
		}
		hasHigher = false
	case models.ActionRequestRevision:
		if err := s.skipAbove(ctx, updated.SubmissionID, updated.Level, now); err != nil {
			return Decision{}, err
		}
		hasHigher = false
	}

	return Decision{Step: updated, HasHigherLevel: hasHigher}, nil
}

// Forward reassigns the current level's responsible approver without
// changing its level number. Only a pending step can be forwarded.
func (s *Store) Forward(ctx context.Context, stepID, actorID, delegateID primitive.ObjectID) (models.ApprovalStep, error) {
	step, err := s.Get(ctx, stepID)
	if err != nil {
		return models.ApprovalStep{}, err
	}
	chain, err := s.ListBySubmission(ctx, step.SubmissionID)
	if err != nil {
		return models.ApprovalStep{}, err
	}
	if err := workflow.CheckAdvance(chain, stepID); err != nil {
		return models.ApprovalStep{}, err
	}

	now := time.Now().UTC()
	res := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": stepID, "status": models.StepPending},
		bson.M{"$set": bson.M{
			"delegated_to_id": delegateID,
			"delegated_by_id": actorID,
			"forwarded_at":    now,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var updated models.ApprovalStep
	if err := res.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ApprovalStep{}, &workflow.AlreadyDecidedError{StepID: stepID}
		}
		return models.ApprovalStep{}, err
	}
	return updated, nil
}

// skipAbove marks every still-pending step above the given level
// skipped for this submission.
func (s *Store) skipAbove(ctx context.Context, submissionID primitive.ObjectID, level int, now time.Time) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{
			"submission_id": submissionID,
			"level":         bson.M{"$gt": level},
			"status":        models.StepPending,
		},
		bson.M{"$set": bson.M{"status": models.StepSkipped, "completed_at": now}},
	)
	return err
}
