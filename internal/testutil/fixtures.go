package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateOrgUnit creates an active org unit under the given parent (nil
// for a root), with the ancestor chain derived from the parent.
func (f *Fixtures) CreateOrgUnit(ctx context.Context, name string, parent *models.OrgUnit) models.OrgUnit {
	f.t.Helper()

	ancestors := []primitive.ObjectID{}
	var parentID *primitive.ObjectID
	if parent != nil {
		ancestors = append(ancestors, parent.Ancestors...)
		ancestors = append(ancestors, parent.ID)
		pid := parent.ID
		parentID = &pid
	}

	now := time.Now().UTC()
	unit := models.OrgUnit{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		ParentID:  parentID,
		Ancestors: ancestors,
		Status:    models.OrgUnitActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("org_units").InsertOne(ctx, unit); err != nil {
		f.t.Fatalf("failed to create test org unit: %v", err)
	}
	return unit
}

// CreateUser creates an active test user with the given role and no
// password.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:         primitive.NewObjectID(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		Email:      email,
		EmailCI:    text.Fold(email),
		Role:       role,
		Status:     models.UserActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateMembership grants a user a role in an org unit.
func (f *Fixtures) CreateMembership(ctx context.Context, userID, orgUnitID primitive.ObjectID, role string) models.Membership {
	f.t.Helper()

	m := models.Membership{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		OrgUnitID:   orgUnitID,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
		CreatedByID: userID,
	}
	if _, err := f.db.Collection("memberships").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}
	return m
}

// CreateTask creates a task in the given unit with one file deliverable
// and the given status.
func (f *Fixtures) CreateTask(ctx context.Context, title string, orgUnitID, createdBy primitive.ObjectID, status models.TaskStatus) models.Task {
	f.t.Helper()

	now := time.Now().UTC()
	task := models.Task{
		ID:          primitive.NewObjectID(),
		Title:       title,
		TitleCI:     text.Fold(title),
		OrgUnitID:   orgUnitID,
		CreatedByID: createdBy,
		Status:      status,
		Deliverables: []models.Deliverable{
			{Type: models.DeliverableFile, Label: "Report"},
		},
		ApprovalLevels: []models.ApprovalLevel{},
		Assignments:    []models.Assignment{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("tasks").InsertOne(ctx, task); err != nil {
		f.t.Fatalf("failed to create test task: %v", err)
	}
	return task
}

// AddAssignment embeds an assignment on an existing task document and
// returns it.
func (f *Fixtures) AddAssignment(ctx context.Context, taskID, assigneeID, assignedBy primitive.ObjectID) models.Assignment {
	f.t.Helper()

	a := models.Assignment{
		ID:           primitive.NewObjectID(),
		AssigneeID:   assigneeID,
		AssignedByID: assignedBy,
		Status:       models.AssignmentNotSubmitted,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := f.db.Collection("tasks").UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$push": bson.M{"assignments": a}},
	)
	if err != nil {
		f.t.Fatalf("failed to add test assignment: %v", err)
	}
	return a
}
