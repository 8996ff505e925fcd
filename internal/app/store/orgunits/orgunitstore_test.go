package orgunitstore_test

import (
	"errors"
	"testing"

	orgunitstore "github.com/dalemusser/taskhub/internal/app/store/orgunits"
	"github.com/dalemusser/taskhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreateDerivesAncestors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := orgunitstore.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	root, err := store.Create(ctx, "University", nil)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if len(root.Ancestors) != 0 {
		t.Errorf("root ancestors: got %d, want 0", len(root.Ancestors))
	}

	college, err := store.Create(ctx, "College", &root.ID)
	if err != nil {
		t.Fatalf("create college: %v", err)
	}
	dept, err := store.Create(ctx, "Department", &college.ID)
	if err != nil {
		t.Fatalf("create department: %v", err)
	}

	want := []primitive.ObjectID{root.ID, college.ID}
	if len(dept.Ancestors) != 2 || dept.Ancestors[0] != want[0] || dept.Ancestors[1] != want[1] {
		t.Errorf("department ancestors: got %v, want %v", dept.Ancestors, want)
	}
}

func TestCreateRejectsDuplicateSiblingName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := orgunitstore.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	root, err := store.Create(ctx, "University", nil)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := store.Create(ctx, "College", &root.ID); err != nil {
		t.Fatalf("create college: %v", err)
	}
	// Case-folded duplicate under the same parent.
	if _, err := store.Create(ctx, "COLLEGE", &root.ID); !errors.Is(err, orgunitstore.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	// Same name under a different parent is fine.
	other, err := store.Create(ctx, "Annex", &root.ID)
	if err != nil {
		t.Fatalf("create annex: %v", err)
	}
	if _, err := store.Create(ctx, "College", &other.ID); err != nil {
		t.Errorf("same name under different parent must be allowed: %v", err)
	}
}

func TestListDescendantsOrSelf(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := orgunitstore.New(db)

	root, _ := store.Create(ctx, "University", nil)
	college, _ := store.Create(ctx, "College", &root.ID)
	sibling, _ := store.Create(ctx, "Other College", &root.ID)
	dept, _ := store.Create(ctx, "Department", &college.ID)

	got, err := store.ListDescendantsOrSelf(ctx, []primitive.ObjectID{college.ID})
	if err != nil {
		t.Fatalf("ListDescendantsOrSelf: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("descendant set size: got %d, want 2", len(got))
	}
	if _, ok := got[college.ID]; !ok {
		t.Error("set must include the unit itself")
	}
	if _, ok := got[dept.ID]; !ok {
		t.Error("set must include the descendant")
	}
	if _, ok := got[sibling.ID]; ok {
		t.Error("set must not include siblings")
	}

	empty, err := store.ListDescendantsOrSelf(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("no input units must cover nothing: %v / %d", err, len(empty))
	}
}

func TestReparentRewritesSubtreeChains(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := orgunitstore.New(db)

	root, _ := store.Create(ctx, "University", nil)
	collegeA, _ := store.Create(ctx, "College A", &root.ID)
	collegeB, _ := store.Create(ctx, "College B", &root.ID)
	dept, _ := store.Create(ctx, "Department", &collegeA.ID)
	class, _ := store.Create(ctx, "Class", &dept.ID)

	if err := store.Reparent(ctx, dept.ID, &collegeB.ID); err != nil {
		t.Fatalf("Reparent: %v", err)
	}

	moved, err := store.Get(ctx, dept.ID)
	if err != nil {
		t.Fatalf("get moved: %v", err)
	}
	if len(moved.Ancestors) != 2 || moved.Ancestors[1] != collegeB.ID {
		t.Errorf("moved unit chain: got %v", moved.Ancestors)
	}

	child, err := store.Get(ctx, class.ID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	want := []primitive.ObjectID{root.ID, collegeB.ID, dept.ID}
	if len(child.Ancestors) != 3 {
		t.Fatalf("child chain length: got %d, want 3", len(child.Ancestors))
	}
	for i := range want {
		if child.Ancestors[i] != want[i] {
			t.Errorf("child chain[%d]: got %s, want %s", i, child.Ancestors[i].Hex(), want[i].Hex())
		}
	}

	// Coverage of College B now includes the moved subtree.
	cov, err := store.ListDescendantsOrSelf(ctx, []primitive.ObjectID{collegeB.ID})
	if err != nil {
		t.Fatalf("coverage after reparent: %v", err)
	}
	if _, ok := cov[class.ID]; !ok {
		t.Error("moved descendant must be covered by the new parent")
	}
	covA, _ := store.ListDescendantsOrSelf(ctx, []primitive.ObjectID{collegeA.ID})
	if _, ok := covA[dept.ID]; ok {
		t.Error("old parent must no longer cover the moved unit")
	}
}

func TestReparentRejectsCycles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := orgunitstore.New(db)

	root, _ := store.Create(ctx, "University", nil)
	college, _ := store.Create(ctx, "College", &root.ID)
	dept, _ := store.Create(ctx, "Department", &college.ID)

	if err := store.Reparent(ctx, college.ID, &dept.ID); !errors.Is(err, orgunitstore.ErrCycle) {
		t.Errorf("moving under own descendant: expected ErrCycle, got %v", err)
	}
	if err := store.Reparent(ctx, college.ID, &college.ID); !errors.Is(err, orgunitstore.ErrCycle) {
		t.Errorf("moving under self: expected ErrCycle, got %v", err)
	}
}

func TestDeleteIsSoftAndGuarded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := orgunitstore.New(db)

	root, _ := store.Create(ctx, "University", nil)
	college, _ := store.Create(ctx, "College", &root.ID)

	// A unit with active children cannot be deleted.
	if err := store.Delete(ctx, root.ID); err == nil {
		t.Error("deleting a unit with active children must fail")
	}

	if err := store.Delete(ctx, college.ID); err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	if _, err := store.Get(ctx, college.ID); !errors.Is(err, orgunitstore.ErrNotFound) {
		t.Errorf("deleted unit must not resolve: %v", err)
	}
	// Now the parent can go.
	if err := store.Delete(ctx, root.ID); err != nil {
		t.Errorf("delete root after pruning: %v", err)
	}
	// Double delete reports not found.
	if err := store.Delete(ctx, root.ID); !errors.Is(err, orgunitstore.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}
