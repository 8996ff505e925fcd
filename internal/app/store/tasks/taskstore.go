// internal/app/store/tasks/taskstore.go
package taskstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/taskhub/internal/app/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicateAssignee = errors.New("user is already assigned to this task")

// Store manages the tasks collection. A task document embeds its
// assignments: they are created through this store and never exist
// apart from their task.
type Store struct {
	c *mongo.Collection
}

// New creates a Store bound to the tasks collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tasks")}
}

// EnsureIndexes creates the lookup indexes for dashboards and coverage
// scoped listings.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "org_unit_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "assignments.assignee_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_by_id", Value: 1}}},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a draft task. Deliverables are validated structurally
// here so a malformed spec never reaches the assign step.
func (s *Store) Create(ctx context.Context, title, description string, orgUnitID, createdBy primitive.ObjectID, dueDate *time.Time, deliverables []models.Deliverable, levels []models.ApprovalLevel) (models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Task{}, &workflow.ValidationError{Field: "title", Reason: "must not be blank"}
	}
	if err := workflow.ValidateDeliverables(deliverables); err != nil {
		return models.Task{}, err
	}
	if len(levels) > 0 {
		specs := make([]workflow.LevelSpec, 0, len(levels))
		for _, l := range levels {
			specs = append(specs, workflow.LevelSpec{Level: l.Level, ApproverID: l.ApproverID, Role: l.Role})
		}
		if err := workflow.ValidateLevels(specs); err != nil {
			return models.Task{}, err
		}
	}

	now := time.Now().UTC()
	task := models.Task{
		ID:             primitive.NewObjectID(),
		Title:          title,
		TitleCI:        text.Fold(title),
		Description:    description,
		OrgUnitID:      orgUnitID,
		CreatedByID:    createdBy,
		Status:         models.TaskDraft,
		DueDate:        dueDate,
		Deliverables:   deliverables,
		ApprovalLevels: levels,
		Assignments:    []models.Assignment{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.c.InsertOne(ctx, task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// Get returns one task by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Task, error) {
	var task models.Task
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, workflow.ErrNotFound
	}
	return task, err
}

// AssignEntry describes one assignee to add.
type AssignEntry struct {
	AssigneeID primitive.ObjectID
	ReviewerID *primitive.ObjectID
	Role       string
}

// Assign adds assignments for the given users and, when the task is
// still a draft, moves it to assigned. Each add is a conditional update
// keyed on the assignee not already being present, so a concurrent
// duplicate assign loses cleanly.
func (s *Store) Assign(ctx context.Context, taskID, assignedBy primitive.ObjectID, entries []AssignEntry) (models.Task, error) {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if task.Status != models.TaskDraft && task.Status != models.TaskAssigned && task.Status != models.TaskInProgress {
		return models.Task{}, &workflow.InvalidTransitionError{From: task.Status, To: models.TaskAssigned}
	}
	// Assigning requires a structurally valid deliverable list; Create
	// enforces this, but tasks written by older tooling get re-checked.
	if err := workflow.ValidateDeliverables(task.Deliverables); err != nil {
		return models.Task{}, err
	}

	now := time.Now().UTC()
	for _, e := range entries {
		a := models.Assignment{
			ID:               primitive.NewObjectID(),
			AssigneeID:       e.AssigneeID,
			AssignedByID:     assignedBy,
			ReviewerID:       e.ReviewerID,
			RoleAtAssignment: e.Role,
			Status:           models.AssignmentNotSubmitted,
			CreatedAt:        now,
		}
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": taskID, "assignments.assignee_id": bson.M{"$ne": e.AssigneeID}},
			bson.M{
				"$push": bson.M{"assignments": a},
				"$set":  bson.M{"updated_at": now},
			},
		)
		if err != nil {
			return models.Task{}, err
		}
		if res.MatchedCount == 0 {
			return models.Task{}, ErrDuplicateAssignee
		}
	}

	if task.Status == models.TaskDraft {
		if err := s.TransitionStatus(ctx, taskID, models.TaskDraft, models.TaskAssigned); err != nil {
			return models.Task{}, err
		}
	}
	return s.Get(ctx, taskID)
}

// TransitionStatus applies from -> to after validating it against the
// workflow table. The update is conditional on the current status, so
// two racing transitions resolve with one winner; the loser sees an
// InvalidTransitionError naming the now-current state.
func (s *Store) TransitionStatus(ctx context.Context, taskID primitive.ObjectID, from, to models.TaskStatus) error {
	if err := workflow.Transition(from, to); err != nil {
		return err
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": taskID, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		task, err := s.Get(ctx, taskID)
		if err != nil {
			return err
		}
		return &workflow.InvalidTransitionError{From: task.Status, To: to}
	}
	return nil
}

// RecordSubmission updates the embedded assignment after a submission
// version is accepted, then re-derives the task-level status from the
// least-advanced assignment.
func (s *Store) RecordSubmission(ctx context.Context, taskID, assignmentID, submissionID primitive.ObjectID, submittedAt time.Time) (models.Task, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": taskID, "assignments._id": assignmentID},
		bson.M{
			"$set": bson.M{
				"assignments.$.status":             models.AssignmentInReview,
				"assignments.$.last_submission_id": submissionID,
				"assignments.$.last_submitted_at":  submittedAt,
				"updated_at":                       submittedAt,
			},
			"$inc": bson.M{"assignments.$.attempts": 1},
		},
	)
	if err != nil {
		return models.Task{}, err
	}
	if res.MatchedCount == 0 {
		return models.Task{}, workflow.ErrNotFound
	}
	return s.applyAggregate(ctx, taskID)
}

// RecordDecision updates the embedded assignment after an approval
// decision on its latest submission, then re-derives the task-level
// status.
func (s *Store) RecordDecision(ctx context.Context, taskID, assignmentID primitive.ObjectID, status models.AssignmentStatus) (models.Task, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": taskID, "assignments._id": assignmentID},
		bson.M{"$set": bson.M{
			"assignments.$.status": status,
			"updated_at":           time.Now().UTC(),
		}},
	)
	if err != nil {
		return models.Task{}, err
	}
	if res.MatchedCount == 0 {
		return models.Task{}, workflow.ErrNotFound
	}
	return s.applyAggregate(ctx, taskID)
}

// applyAggregate recomputes the least-advanced task status and writes it
// when it changed and a legal path exists. Short-lived states the table
// routes through (assigned -> submitted -> under_review) are traversed
// in one call. Terminal states are left alone.
func (s *Store) applyAggregate(ctx context.Context, taskID primitive.ObjectID) (models.Task, error) {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	next := workflow.AggregateStatus(task.Status, task.Assignments)
	if next == task.Status {
		return task, nil
	}

	hops := []models.TaskStatus{next}
	if !workflow.CanTransition(task.Status, next) {
		mid, ok := workflow.NextHop(task.Status, next)
		if !ok {
			return task, nil
		}
		hops = []models.TaskStatus{mid, next}
	}

	from := task.Status
	for _, to := range hops {
		if err := s.TransitionStatus(ctx, taskID, from, to); err != nil {
			// A concurrent transition beat us; the stored state wins.
			var invalid *workflow.InvalidTransitionError
			if errors.As(err, &invalid) {
				return s.Get(ctx, taskID)
			}
			return models.Task{}, err
		}
		from = to
	}
	task.Status = next
	return task, nil
}

// ListByOrgUnits returns tasks homed in any of the given units, most
// recently updated first.
func (s *Store) ListByOrgUnits(ctx context.Context, unitIDs []primitive.ObjectID, limit int64) ([]models.Task, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{"org_unit_id": bson.M{"$in": unitIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByAssignee returns tasks where the user holds an assignment.
func (s *Store) ListByAssignee(ctx context.Context, assigneeID primitive.ObjectID) ([]models.Task, error) {
	cur, err := s.c.Find(ctx, bson.M{"assignments.assignee_id": assigneeID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
