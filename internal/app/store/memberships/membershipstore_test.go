package membershipstore_test

import (
	"errors"
	"testing"

	membershipstore "github.com/dalemusser/taskhub/internal/app/store/memberships"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/dalemusser/taskhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestGrantValidatesAndDeduplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := membershipstore.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	userID := primitive.NewObjectID()
	unitID := primitive.NewObjectID()
	granter := primitive.NewObjectID()

	if _, err := store.Grant(ctx, userID, unitID, "archmage", granter); !errors.Is(err, membershipstore.ErrBadRole) {
		t.Errorf("unknown role: expected ErrBadRole, got %v", err)
	}

	m, err := store.Grant(ctx, userID, unitID, models.RoleProfessor, granter)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if m.Role != models.RoleProfessor || m.CreatedByID != granter {
		t.Errorf("membership fields: %+v", m)
	}

	// One membership per (user, unit), regardless of role.
	if _, err := store.Grant(ctx, userID, unitID, models.RoleHOD, granter); !errors.Is(err, membershipstore.ErrDuplicateMembership) {
		t.Errorf("expected ErrDuplicateMembership, got %v", err)
	}

	// The same user in a different unit is fine.
	if _, err := store.Grant(ctx, userID, primitive.NewObjectID(), models.RoleHOD, granter); err != nil {
		t.Errorf("second unit grant: %v", err)
	}
}

func TestRevokeAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := membershipstore.New(db)

	userID := primitive.NewObjectID()
	unitA := primitive.NewObjectID()
	unitB := primitive.NewObjectID()
	granter := primitive.NewObjectID()

	if _, err := store.Grant(ctx, userID, unitA, models.RoleCoordinator, granter); err != nil {
		t.Fatalf("grant A: %v", err)
	}
	if _, err := store.Grant(ctx, userID, unitB, models.RoleProfessor, granter); err != nil {
		t.Fatalf("grant B: %v", err)
	}

	ms, err := store.ListByUser(ctx, userID)
	if err != nil || len(ms) != 2 {
		t.Fatalf("ListByUser: got %d/%v, want 2", len(ms), err)
	}

	if err := store.Revoke(ctx, userID, unitA); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ms, err = store.ListByUser(ctx, userID)
	if err != nil || len(ms) != 1 || ms[0].OrgUnitID != unitB {
		t.Errorf("after revoke: got %d memberships", len(ms))
	}

	// Revoking a missing membership is a no-op.
	if err := store.Revoke(ctx, userID, unitA); err != nil {
		t.Errorf("double revoke must not error: %v", err)
	}
}

func TestListByOrgUnitsWithRoleFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := membershipstore.New(db)

	unitID := primitive.NewObjectID()
	granter := primitive.NewObjectID()
	if _, err := store.Grant(ctx, primitive.NewObjectID(), unitID, models.RoleStudent, granter); err != nil {
		t.Fatalf("grant student: %v", err)
	}
	if _, err := store.Grant(ctx, primitive.NewObjectID(), unitID, models.RoleProfessor, granter); err != nil {
		t.Fatalf("grant professor: %v", err)
	}

	all, err := store.ListByOrgUnits(ctx, []primitive.ObjectID{unitID}, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("unfiltered: got %d/%v, want 2", len(all), err)
	}
	students, err := store.ListByOrgUnits(ctx, []primitive.ObjectID{unitID}, models.RoleStudent)
	if err != nil || len(students) != 1 {
		t.Errorf("filtered: got %d/%v, want 1", len(students), err)
	}
	none, err := store.ListByOrgUnits(ctx, nil, "")
	if err != nil || none != nil {
		t.Errorf("no units must list nothing: %v/%v", none, err)
	}
}
