// internal/app/store/submissions/submissionstore.go
package submissionstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/taskhub/internal/app/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store manages the submissions collection.
//
// The one invariant everything downstream reads is: per assignment,
// versions run 1, 2, 3, ... with no gaps, and exactly one document has
// is_latest=true. The unique (assignment_id, version) index is what
// decides races: of two concurrent submits, one inserts and the other
// gets a duplicate key, surfaced as workflow.ErrVersionConflict.
type Store struct {
	c *mongo.Collection
}

// New creates a Store bound to the submissions collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("submissions")}
}

// EnsureIndexes creates the version-uniqueness and latest-lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "assignment_id", Value: 1}, {Key: "version", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "assignment_id", Value: 1}, {Key: "is_latest", Value: 1}}},
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// AttachmentInput describes one uploaded artifact; the store issues the
// opaque storage key.
type AttachmentInput struct {
	Name        string
	ContentType string
	Size        int64
}

// Submit accepts a new submission version for an assignment.
//
// Sequence: read the current latest, insert version latest+1 with
// is_latest=false, flip the previous latest off, then mark the new
// version latest. The insert is the race arbiter; after it succeeds
// this submission owns its version number and the flip touches only
// this assignment's documents (narrow per-aggregate write, never a
// table-wide lock).
func (s *Store) Submit(ctx context.Context, taskID, assignmentID, submitterID primitive.ObjectID, note string, attachments []AttachmentInput) (models.Submission, error) {
	latest, err := s.Latest(ctx, assignmentID)
	if err != nil && !errors.Is(err, workflow.ErrNotFound) {
		return models.Submission{}, err
	}
	var prev *models.Submission
	if err == nil {
		prev = &latest
	}

	now := time.Now().UTC()
	sub := models.Submission{
		ID:           primitive.NewObjectID(),
		TaskID:       taskID,
		AssignmentID: assignmentID,
		SubmitterID:  submitterID,
		Version:      workflow.NextVersion(prev),
		Type:         workflow.SubmissionTypeFor(prev),
		Status:       models.SubmissionSubmitted,
		IsLatest:     false,
		Note:         note,
		Attachments:  make([]models.Attachment, 0, len(attachments)),
		SubmittedAt:  now,
		UpdatedAt:    now,
	}
	if prev != nil {
		sub.PreviousSubmissionID = &prev.ID
	}
	for _, in := range attachments {
		sub.Attachments = append(sub.Attachments, models.Attachment{
			Key:         uuid.NewString(),
			Name:        in.Name,
			ContentType: in.ContentType,
			Size:        in.Size,
		})
	}

	if _, err := s.c.InsertOne(ctx, sub); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Submission{}, workflow.ErrVersionConflict
		}
		return models.Submission{}, err
	}

	// Flip the previous latest off before marking the new one, so there
	// is never a moment with two latest versions.
	if _, err := s.c.UpdateMany(ctx,
		bson.M{"assignment_id": assignmentID, "is_latest": true, "_id": bson.M{"$ne": sub.ID}},
		bson.M{"$set": bson.M{"is_latest": false, "updated_at": now}},
	); err != nil {
		return models.Submission{}, err
	}
	if _, err := s.c.UpdateOne(ctx,
		bson.M{"_id": sub.ID},
		bson.M{"$set": bson.M{"is_latest": true}},
	); err != nil {
		return models.Submission{}, err
	}
	sub.IsLatest = true
	return sub, nil
}

// Get returns one submission by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Submission, error) {
	var sub models.Submission
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Submission{}, workflow.ErrNotFound
	}
	return sub, err
}

// Latest returns the latest submission for an assignment.
func (s *Store) Latest(ctx context.Context, assignmentID primitive.ObjectID) (models.Submission, error) {
	var sub models.Submission
	err := s.c.FindOne(ctx,
		bson.M{"assignment_id": assignmentID, "is_latest": true},
	).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Submission{}, workflow.ErrNotFound
	}
	return sub, err
}

// ListByAssignment returns all versions for an assignment, newest first.
func (s *Store) ListByAssignment(ctx context.Context, assignmentID primitive.ObjectID) ([]models.Submission, error) {
	cur, err := s.c.Find(ctx, bson.M{"assignment_id": assignmentID},
		options.Find().SetSort(bson.D{{Key: "version", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Submission
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus records the review state of one submission version.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, status models.SubmissionStatus) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

// CountByAssignment returns the number of versions for an assignment.
func (s *Store) CountByAssignment(ctx context.Context, assignmentID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"assignment_id": assignmentID})
}
