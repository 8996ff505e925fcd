// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entity types carried on events.
const (
	EntityTask       = "task"
	EntityAssignment = "assignment"
	EntitySubmission = "submission"
	EntityApproval   = "approval_step"
	EntityOrgUnit    = "org_unit"
	EntityUser       = "user"
)

// Event types. One event is recorded per accepted state transition.
const (
	EventTaskCreated        = "task_created"
	EventTaskAssigned       = "task_assigned"
	EventTaskStatusChanged  = "task_status_changed"
	EventSubmissionAccepted = "submission_accepted"
	EventApprovalDecided    = "approval_decided"
	EventApprovalForwarded  = "approval_forwarded"
	EventOrgUnitCreated     = "org_unit_created"
	EventOrgUnitReparented  = "org_unit_reparented"
	EventOrgUnitDeleted     = "org_unit_deleted"
	EventMembershipGranted  = "membership_granted"
	EventMembershipRevoked  = "membership_revoked"
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventLogout             = "logout"
)

// Event is one immutable audit record. The store is append-only: the
// core emits events and never reads them back for decisions.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`

	ActorID   *primitive.ObjectID `bson:"actor_id,omitempty"`
	OrgUnitID *primitive.ObjectID `bson:"org_unit_id,omitempty"`

	EventType  string              `bson:"event_type"`
	EntityType string              `bson:"entity_type"`
	EntityID   *primitive.ObjectID `bson:"entity_id,omitempty"`

	BeforeStatus string `bson:"before_status,omitempty"`
	AfterStatus  string `bson:"after_status,omitempty"`

	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	ActorID    *primitive.ObjectID
	OrgUnitIDs []primitive.ObjectID
	EntityType string
	EventType  string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int64
	Offset     int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// EnsureIndexes creates necessary indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Log appends one event, stamping the timestamp if unset.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query returns events matching the filter, most recent first.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]Event, error) {
	filter := bson.M{}
	if f.ActorID != nil {
		filter["actor_id"] = *f.ActorID
	}
	if len(f.OrgUnitIDs) > 0 {
		filter["org_unit_id"] = bson.M{"$in": f.OrgUnitIDs}
	}
	if f.EntityType != "" {
		filter["entity_type"] = f.EntityType
	}
	if f.EventType != "" {
		filter["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		t := bson.M{}
		if f.StartTime != nil {
			t["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			t["$lte"] = *f.EndTime
		}
		filter["timestamp"] = t
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	if f.Offset > 0 {
		opts.SetSkip(f.Offset)
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
