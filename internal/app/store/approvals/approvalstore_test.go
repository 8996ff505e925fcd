package approvalstore_test

import (
	"errors"
	"testing"

	approvalstore "github.com/dalemusser/taskhub/internal/app/store/approvals"
	"github.com/dalemusser/taskhub/internal/app/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/dalemusser/taskhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func twoLevelSpecs() ([]workflow.LevelSpec, primitive.ObjectID, primitive.ObjectID) {
	first := primitive.NewObjectID()
	second := primitive.NewObjectID()
	return []workflow.LevelSpec{
		{Level: 1, ApproverID: &first},
		{Level: 2, ApproverID: &second},
	}, first, second
}

func TestCreateChainAndCurrentStep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}

	specs, _, _ := twoLevelSpecs()
	taskID := primitive.NewObjectID()
	subID := primitive.NewObjectID()

	steps, err := store.CreateChain(ctx, taskID, subID, specs)
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("chain length: got %d, want 2", len(steps))
	}

	current, err := store.CurrentStep(ctx, subID)
	if err != nil {
		t.Fatalf("CurrentStep: %v", err)
	}
	if current.Level != 1 {
		t.Errorf("current level: got %d, want 1", current.Level)
	}
}

func TestCompleteEnforcesOrdering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)

	specs, first, second := twoLevelSpecs()
	subID := primitive.NewObjectID()
	steps, err := store.CreateChain(ctx, primitive.NewObjectID(), subID, specs)
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}

	// Level 2 before level 1 is out of order.
	_, err = store.Complete(ctx, steps[1].ID, second, models.ActionApprove, "")
	var outOfOrder *workflow.OutOfOrderApprovalError
	if !errors.As(err, &outOfOrder) {
		t.Fatalf("expected OutOfOrderApprovalError, got %v", err)
	}

	// Level 1 approves; a higher level remains.
	d, err := store.Complete(ctx, steps[0].ID, first, models.ActionApprove, "looks good")
	if err != nil {
		t.Fatalf("complete level 1: %v", err)
	}
	if !d.HasHigherLevel {
		t.Error("level 1 approve must report a pending higher level")
	}
	if d.Step.Action != models.ActionApprove || d.Step.Feedback != "looks good" {
		t.Errorf("decision fields: %+v", d.Step)
	}

	// Level 2 now decidable; chain ends.
	d, err = store.Complete(ctx, steps[1].ID, second, models.ActionApprove, "")
	if err != nil {
		t.Fatalf("complete level 2: %v", err)
	}
	if d.HasHigherLevel {
		t.Error("top level approve must report no higher level")
	}
}

func TestCompleteIsIdempotencyGuarded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)

	approver := primitive.NewObjectID()
	specs := []workflow.LevelSpec{{Level: 1, ApproverID: &approver}}
	steps, err := store.CreateChain(ctx, primitive.NewObjectID(), primitive.NewObjectID(), specs)
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}

	if _, err := store.Complete(ctx, steps[0].ID, approver, models.ActionApprove, ""); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	_, err = store.Complete(ctx, steps[0].ID, approver, models.ActionApprove, "")
	var decided *workflow.AlreadyDecidedError
	if !errors.As(err, &decided) {
		t.Errorf("second complete: expected AlreadyDecidedError, got %v", err)
	}
}

func TestRequestRevisionSkipsHigherLevels(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)

	specs, first, _ := twoLevelSpecs()
	subID := primitive.NewObjectID()
	steps, err := store.CreateChain(ctx, primitive.NewObjectID(), subID, specs)
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}

	d, err := store.Complete(ctx, steps[0].ID, first, models.ActionRequestRevision, "needs work")
	if err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if d.HasHigherLevel {
		t.Error("request_revision ends the chain for this version")
	}

	chain, err := store.ListBySubmission(ctx, subID)
	if err != nil {
		t.Fatalf("ListBySubmission: %v", err)
	}
	if chain[1].Status != models.StepSkipped {
		t.Errorf("higher level after request_revision: got %s, want skipped", chain[1].Status)
	}
	if _, err := store.CurrentStep(ctx, subID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("no current step should remain: %v", err)
	}
}

func TestRejectSkipsHigherLevels(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)

	specs, first, _ := twoLevelSpecs()
	subID := primitive.NewObjectID()
	steps, err := store.CreateChain(ctx, primitive.NewObjectID(), subID, specs)
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}

	d, err := store.Complete(ctx, steps[0].ID, first, models.ActionReject, "no")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.HasHigherLevel {
		t.Error("reject ends the chain")
	}
	chain, _ := store.ListBySubmission(ctx, subID)
	if chain[1].Status != models.StepSkipped {
		t.Errorf("higher level after reject: got %s", chain[1].Status)
	}
}

func TestCompleteRejectsUnknownAction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)

	approver := primitive.NewObjectID()
	steps, err := store.CreateChain(ctx, primitive.NewObjectID(), primitive.NewObjectID(),
		[]workflow.LevelSpec{{Level: 1, ApproverID: &approver}})
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}

	_, err = store.Complete(ctx, steps[0].ID, approver, models.StepAction("escalate"), "")
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	// Forward is not a completion action either.
	if _, err := store.Complete(ctx, steps[0].ID, approver, models.ActionForward, ""); err == nil {
		t.Error("forward must not complete a step")
	}
}

func TestForwardReassignsPendingStep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := testutil.TestContext(t)
	store := approvalstore.New(db)

	approver := primitive.NewObjectID()
	delegate := primitive.NewObjectID()
	steps, err := store.CreateChain(ctx, primitive.NewObjectID(), primitive.NewObjectID(),
		[]workflow.LevelSpec{{Level: 1, ApproverID: &approver}})
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}

	updated, err := store.Forward(ctx, steps[0].ID, approver, delegate)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if updated.DelegatedToID == nil || *updated.DelegatedToID != delegate {
		t.Error("forward must record the delegate")
	}
	if updated.Level != steps[0].Level || updated.Status != models.StepPending {
		t.Error("forward must not change level or status")
	}

	// The delegate can now decide.
	if _, err := store.Complete(ctx, updated.ID, delegate, models.ActionApprove, ""); err != nil {
		t.Fatalf("delegate complete: %v", err)
	}

	// A decided step cannot be forwarded.
	if _, err := store.Forward(ctx, updated.ID, approver, delegate); err == nil {
		t.Error("forwarding a decided step must fail")
	}
}
