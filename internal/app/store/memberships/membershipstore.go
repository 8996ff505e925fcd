// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/taskhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrBadRole             = errors.New("unrecognized role")
	ErrDuplicateMembership = errors.New("user already holds a role in this org unit")
)

// Store manages the memberships collection: the authoritative join
// between users and org units. Exactly one document per
// (user_id, org_unit_id); revocation deletes the document.
type Store struct {
	c *mongo.Collection
}

// New creates a Store bound to the memberships collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("memberships")}
}

// EnsureIndexes creates the uniqueness and lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "org_unit_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "org_unit_id", Value: 1}, {Key: "role", Value: 1}}},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Grant creates a membership after validating the role.
func (s *Store) Grant(ctx context.Context, userID, orgUnitID primitive.ObjectID, role string, grantedBy primitive.ObjectID) (models.Membership, error) {
	if !models.IsValidRole(role) {
		return models.Membership{}, ErrBadRole
	}

	m := models.Membership{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		OrgUnitID:   orgUnitID,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
		CreatedByID: grantedBy,
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrDuplicateMembership
		}
		return models.Membership{}, err
	}
	return m, nil
}

// Revoke deletes the membership document for (userID, orgUnitID).
func (s *Store) Revoke(ctx context.Context, userID, orgUnitID primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID, "org_unit_id": orgUnitID})
	return err
}

// ListByUser returns all memberships a user holds.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByOrgUnits returns all memberships in the given units, optionally
// filtered by role.
func (s *Store) ListByOrgUnits(ctx context.Context, unitIDs []primitive.ObjectID, role string) ([]models.Membership, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"org_unit_id": bson.M{"$in": unitIDs}}
	if role != "" {
		filter["role"] = role
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByOrgUnit removes all memberships for a unit. Returns the number
// of documents deleted.
func (s *Store) DeleteByOrgUnit(ctx context.Context, orgUnitID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"org_unit_id": orgUnitID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByUser removes all memberships for a user. Returns the number of
// documents deleted.
func (s *Store) DeleteByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
