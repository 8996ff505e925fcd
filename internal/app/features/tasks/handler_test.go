package tasks_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/taskhub/internal/app/features/apierr"
	"github.com/dalemusser/taskhub/internal/app/features/tasks"
	userstore "github.com/dalemusser/taskhub/internal/app/store/users"
	"github.com/dalemusser/taskhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*tasks.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	return tasks.NewHandler(db, apierr.NewErrorLogger(logger), nil, logger), db
}

func postJSON(user testutil.TestUser, target, body string) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return testutil.WithUser(req, user)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}

type taskJSON struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Assignments []struct {
		ID         string `json:"id"`
		AssigneeID string `json:"assignee_id"`
		Status     string `json:"status"`
	} `json:"assignments"`
}

type submissionJSON struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

type stepJSON struct {
	ID     string `json:"id"`
	Level  int    `json:"level"`
	Status string `json:"status"`
	Action string `json:"action"`
}

func TestFullApprovalWorkflow(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := testutil.TestContext(t)
	fix := testutil.NewFixtures(t, db)

	unit := fix.CreateOrgUnit(ctx, "Department", nil)
	admin := testutil.AdminUser()
	studentDoc := fix.CreateUser(ctx, "Sam Student", "sam@test.com", "student")
	student := testutil.UserFor(studentDoc)

	// Create a draft task.
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, postJSON(admin, "/tasks",
		`{"title":"Thesis","description":"<p>Write it</p><script>x()</script>","org_unit_id":"`+unit.ID.Hex()+`",
		  "deliverables":[{"type":"file","label":"Report"}]}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d (%s)", rec.Code, rec.Body.String())
	}
	var created taskJSON
	decode(t, rec, &created)
	if created.Status != "draft" {
		t.Errorf("new task status: got %s", created.Status)
	}
	if strings.Contains(created.Description, "<script>") {
		t.Error("description must be sanitized")
	}

	// Assign the student.
	rec = httptest.NewRecorder()
	req := postJSON(admin, "/tasks/"+created.ID+"/assign",
		`{"assignees":[{"assignee_id":"`+student.ID+`","role":"student"}]}`)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	h.HandleAssign(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: got %d (%s)", rec.Code, rec.Body.String())
	}
	var assigned taskJSON
	decode(t, rec, &assigned)
	if assigned.Status != "assigned" || len(assigned.Assignments) != 1 {
		t.Fatalf("after assign: %+v", assigned)
	}
	assignmentID := assigned.Assignments[0].ID

	// The student submits.
	rec = httptest.NewRecorder()
	req = postJSON(student, "/tasks/"+created.ID+"/assignments/"+assignmentID+"/submit",
		`{"note":"first draft","attachments":[{"name":"thesis.pdf","content_type":"application/pdf","size":2048}]}`)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	req = testutil.WithChiURLParam(req, "assignmentID", assignmentID)
	h.HandleSubmit(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: got %d (%s)", rec.Code, rec.Body.String())
	}
	var sub submissionJSON
	decode(t, rec, &sub)
	if sub.Version != 1 || sub.Type != "initial" || sub.Status != "under_review" {
		t.Errorf("submission: %+v", sub)
	}

	// The chain defaults to a single level owned by the task creator.
	rec = httptest.NewRecorder()
	req = testutil.NewAuthenticatedRequest("GET", "/tasks/"+created.ID+"/assignments/"+assignmentID+"/approvals", admin)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	req = testutil.WithChiURLParam(req, "assignmentID", assignmentID)
	h.HandleListSteps(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list steps: got %d (%s)", rec.Code, rec.Body.String())
	}
	var steps []stepJSON
	decode(t, rec, &steps)
	if len(steps) != 1 || steps[0].Level != 1 || steps[0].Status != "pending" {
		t.Fatalf("chain: %+v", steps)
	}

	// The creator approves at the only level: final approval.
	rec = httptest.NewRecorder()
	req = postJSON(admin, "/tasks/"+created.ID+"/steps/"+steps[0].ID+"/decide", `{"action":"approve"}`)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	req = testutil.WithChiURLParam(req, "stepID", steps[0].ID)
	h.HandleDecide(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("decide: got %d (%s)", rec.Code, rec.Body.String())
	}
	var decided stepJSON
	decode(t, rec, &decided)
	if decided.Status != "completed" || decided.Action != "approve" {
		t.Errorf("decided step: %+v", decided)
	}

	// Task closed out.
	rec = httptest.NewRecorder()
	req = testutil.NewAuthenticatedRequest("GET", "/tasks/"+created.ID, admin)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	h.HandleGet(rec, req)
	var final taskJSON
	decode(t, rec, &final)
	if final.Status != "final_approved" {
		t.Errorf("final task status: got %s, want final_approved", final.Status)
	}
	if final.Assignments[0].Status != "approved" {
		t.Errorf("final assignment status: got %s", final.Assignments[0].Status)
	}
}

func TestRevisionLoop(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := testutil.TestContext(t)
	fix := testutil.NewFixtures(t, db)

	unit := fix.CreateOrgUnit(ctx, "Department", nil)
	admin := testutil.AdminUser()
	studentDoc := fix.CreateUser(ctx, "Sam Student", "sam@test.com", "student")
	student := testutil.UserFor(studentDoc)

	rec := httptest.NewRecorder()
	h.HandleCreate(rec, postJSON(admin, "/tasks",
		`{"title":"Essay","org_unit_id":"`+unit.ID.Hex()+`","deliverables":[{"type":"text","label":"Essay"}]}`))
	var created taskJSON
	decode(t, rec, &created)

	rec = httptest.NewRecorder()
	req := postJSON(admin, "/", `{"assignees":[{"assignee_id":"`+student.ID+`"}]}`)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	h.HandleAssign(rec, req)
	var assigned taskJSON
	decode(t, rec, &assigned)
	assignmentID := assigned.Assignments[0].ID

	submit := func() submissionJSON {
		rec := httptest.NewRecorder()
		req := postJSON(student, "/", `{"note":"take"}`)
		req = testutil.WithChiURLParam(req, "taskID", created.ID)
		req = testutil.WithChiURLParam(req, "assignmentID", assignmentID)
		h.HandleSubmit(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit: got %d (%s)", rec.Code, rec.Body.String())
		}
		var sub submissionJSON
		decode(t, rec, &sub)
		return sub
	}
	currentStep := func() stepJSON {
		rec := httptest.NewRecorder()
		req := testutil.NewAuthenticatedRequest("GET", "/", admin)
		req = testutil.WithChiURLParam(req, "taskID", created.ID)
		req = testutil.WithChiURLParam(req, "assignmentID", assignmentID)
		h.HandleListSteps(rec, req)
		var steps []stepJSON
		decode(t, rec, &steps)
		for _, s := range steps {
			if s.Status == "pending" {
				return s
			}
		}
		t.Fatal("no pending step")
		return stepJSON{}
	}
	decide := func(stepID, action string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := postJSON(admin, "/", `{"action":"`+action+`","feedback":"see notes"}`)
		req = testutil.WithChiURLParam(req, "taskID", created.ID)
		req = testutil.WithChiURLParam(req, "stepID", stepID)
		h.HandleDecide(rec, req)
		return rec
	}
	taskStatus := func() string {
		rec := httptest.NewRecorder()
		req := testutil.NewAuthenticatedRequest("GET", "/", admin)
		req = testutil.WithChiURLParam(req, "taskID", created.ID)
		h.HandleGet(rec, req)
		var got taskJSON
		decode(t, rec, &got)
		return got.Status
	}

	first := submit()
	if first.Version != 1 {
		t.Fatalf("v1: %+v", first)
	}

	if rec := decide(currentStep().ID, "request_revision"); rec.Code != http.StatusOK {
		t.Fatalf("request revision: got %d (%s)", rec.Code, rec.Body.String())
	}
	// The approver's decision leaves the task in revision_requested; it
	// moves forward on the assignee's resubmission, not here.
	if got := taskStatus(); got != "revision_requested" {
		t.Fatalf("status after revision request: got %s, want revision_requested", got)
	}

	// The resubmission is a new version with a fresh chain.
	second := submit()
	if second.Version != 2 || second.Type != "revision" {
		t.Fatalf("v2: %+v", second)
	}
	if got := taskStatus(); got != "under_review" {
		t.Errorf("status after resubmission: got %s, want under_review", got)
	}

	step := currentStep()
	if rec := decide(step.ID, "approve"); rec.Code != http.StatusOK {
		t.Fatalf("approve v2: got %d (%s)", rec.Code, rec.Body.String())
	}

	// Deciding the same step twice conflicts.
	if rec := decide(step.ID, "approve"); rec.Code != http.StatusConflict {
		t.Errorf("double decide: got %d, want 409", rec.Code)
	}
}

func TestTaskHiddenOutsideAudience(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := testutil.TestContext(t)
	fix := testutil.NewFixtures(t, db)

	unit := fix.CreateOrgUnit(ctx, "Department", nil)
	creator := fix.CreateUser(ctx, "Head", "head@test.com", "hod")
	task := fix.CreateTask(ctx, "Secret Review", unit.ID, creator.ID, "assigned")

	outsiderDoc := fix.CreateUser(ctx, "Out Sider", "out@test.com", "professor")
	outsider := testutil.UserFor(outsiderDoc)

	rec := httptest.NewRecorder()
	req := testutil.NewAuthenticatedRequest("GET", "/tasks/"+task.ID.Hex(), outsider)
	req = testutil.WithChiURLParam(req, "taskID", task.ID.Hex())
	h.HandleGet(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("outsider: got %d, want 404", rec.Code)
	}

	// With a membership covering the unit, the task appears.
	fix.CreateMembership(ctx, outsiderDoc.ID, unit.ID, "professor")
	rec = httptest.NewRecorder()
	req = testutil.NewAuthenticatedRequest("GET", "/tasks/"+task.ID.Hex(), outsider)
	req = testutil.WithChiURLParam(req, "taskID", task.ID.Hex())
	h.HandleGet(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("covered viewer: got %d, want 200", rec.Code)
	}
}

func TestStudentCannotCreateTasks(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := testutil.TestContext(t)
	fix := testutil.NewFixtures(t, db)

	unit := fix.CreateOrgUnit(ctx, "Department", nil)
	student := testutil.UserWithRole("student")

	rec := httptest.NewRecorder()
	h.HandleCreate(rec, postJSON(student, "/tasks",
		`{"title":"Nope","org_unit_id":"`+unit.ID.Hex()+`","deliverables":[{"type":"file","label":"F"}]}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("student create: got %d, want 404", rec.Code)
	}
}

func TestAssignRequiresExistingActiveUser(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := testutil.TestContext(t)
	fix := testutil.NewFixtures(t, db)
	admin := testutil.AdminUser()

	unit := fix.CreateOrgUnit(ctx, "Department", nil)
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, postJSON(admin, "/tasks",
		`{"title":"Audit","org_unit_id":"`+unit.ID.Hex()+`","deliverables":[{"type":"file","label":"Report"}]}`))
	var created taskJSON
	decode(t, rec, &created)

	assign := func(assigneeID string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := postJSON(admin, "/", `{"assignees":[{"assignee_id":"`+assigneeID+`"}]}`)
		req = testutil.WithChiURLParam(req, "taskID", created.ID)
		h.HandleAssign(rec, req)
		return rec
	}

	// A well-formed id with no user behind it is rejected.
	if rec := assign(primitive.NewObjectID().Hex()); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown assignee: got %d, want 400", rec.Code)
	}

	// A soft-deleted user is no longer assignable.
	goneDoc := fix.CreateUser(ctx, "Gone", "gone@test.com", "student")
	if err := userstore.New(db).Delete(ctx, goneDoc.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if rec := assign(goneDoc.ID.Hex()); rec.Code != http.StatusBadRequest {
		t.Errorf("deleted assignee: got %d, want 400", rec.Code)
	}

	// The task never left draft.
	rec = httptest.NewRecorder()
	req := testutil.NewAuthenticatedRequest("GET", "/", admin)
	req = testutil.WithChiURLParam(req, "taskID", created.ID)
	h.HandleGet(rec, req)
	var got taskJSON
	decode(t, rec, &got)
	if got.Status != "draft" || len(got.Assignments) != 0 {
		t.Errorf("task after rejected assigns: %+v", got)
	}

	// A real active user still assigns fine.
	okDoc := fix.CreateUser(ctx, "Here", "here@test.com", "student")
	if rec := assign(okDoc.ID.Hex()); rec.Code != http.StatusOK {
		t.Errorf("active assignee: got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOnlyAssigneeCanSubmit(t *testing.T) {
	h, db := newTestHandler(t)
	ctx := testutil.TestContext(t)
	fix := testutil.NewFixtures(t, db)

	unit := fix.CreateOrgUnit(ctx, "Department", nil)
	creator := fix.CreateUser(ctx, "Head", "head@test.com", "hod")
	task := fix.CreateTask(ctx, "Review", unit.ID, creator.ID, "assigned")
	assignee := fix.CreateUser(ctx, "Worker", "worker@test.com", "student")
	assignment := fix.AddAssignment(ctx, task.ID, assignee.ID, creator.ID)

	imposter := testutil.UserWithRole("student")
	rec := httptest.NewRecorder()
	req := postJSON(imposter, "/", `{"note":"mine now"}`)
	req = testutil.WithChiURLParam(req, "taskID", task.ID.Hex())
	req = testutil.WithChiURLParam(req, "assignmentID", assignment.ID.Hex())
	h.HandleSubmit(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("imposter submit: got %d, want 404", rec.Code)
	}
}
