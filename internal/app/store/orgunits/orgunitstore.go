// internal/app/store/orgunits/orgunitstore.go
package orgunitstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/taskhub/internal/app/system/hierarchy"
	"github.com/dalemusser/taskhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound      = errors.New("org unit not found")
	ErrDuplicateName = errors.New("an org unit with this name already exists under the same parent")
	ErrBlankName     = errors.New("org unit name must not be blank")
	ErrCycle         = errors.New("cannot reparent an org unit under its own subtree")
)

// Store manages the org_units collection.
type Store struct {
	c *mongo.Collection
}

// New creates a Store bound to the org_units collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("org_units")}
}

// EnsureIndexes creates the indexes the coverage queries depend on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Descendants-or-self scans filter on ancestor containment.
		{Keys: bson.D{{Key: "ancestors", Value: 1}}},
		{Keys: bson.D{{Key: "parent_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "parent_id", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a unit under the given parent (nil parent means root).
// Ancestors is derived from the parent's chain at insert time, which is
// what keeps coverage a containment scan instead of a walk.
func (s *Store) Create(ctx context.Context, name string, parentID *primitive.ObjectID) (models.OrgUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.OrgUnit{}, ErrBlankName
	}

	var ancestors []primitive.ObjectID
	if parentID != nil {
		parent, err := s.Get(ctx, *parentID)
		if err != nil {
			return models.OrgUnit{}, err
		}
		ancestors = hierarchy.ChildAncestors(parent)
	} else {
		ancestors = []primitive.ObjectID{}
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

	if _, err := s.c.InsertOne(ctx, unit); err != nil {
		if wafflemongo.IsDup(err) {
			return models.OrgUnit{}, ErrDuplicateName
		}
		return models.OrgUnit{}, err
	}
	return unit, nil
}

// Get returns one active unit by id.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.OrgUnit, error) {
	var unit models.OrgUnit
	err := s.c.FindOne(ctx, bson.M{"_id": id, "status": models.OrgUnitActive}).Decode(&unit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.OrgUnit{}, ErrNotFound
	}
	return unit, err
}

// ListActive returns every active unit. The hierarchy snapshot is built
// from this.
func (s *Store) ListActive(ctx context.Context) ([]models.OrgUnit, error) {
	cur, err := s.c.Find(ctx, bson.M{"status": models.OrgUnitActive})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var units []models.OrgUnit
	if err := cur.All(ctx, &units); err != nil {
		return nil, err
	}
	return units, nil
}

// ListDescendantsOrSelf returns the ids of every active unit that is one
// of the given units or sits below one of them, via the
// ancestor-containment filter.
func (s *Store) ListDescendantsOrSelf(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]struct{}, error) {
	out := make(map[primitive.ObjectID]struct{})
	if len(ids) == 0 {
		return out, nil
	}

	filter := bson.M{
		"status": models.OrgUnitActive,
		"$or": []bson.M{
			{"_id": bson.M{"$in": ids}},
			{"ancestors": bson.M{"$in": ids}},
		},
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = struct{}{}
	}
	return out, cur.Err()
}

// Reparent moves a unit under a new parent (nil means make it a root)
// and recomputes the ancestor chain for the unit and its entire
// subtree. Moving a unit under itself or one of its descendants is
// rejected.
func (s *Store) Reparent(ctx context.Context, id primitive.ObjectID, newParentID *primitive.ObjectID) error {
	unit, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var newChain []primitive.ObjectID
	if newParentID != nil {
		if *newParentID == id {
			return ErrCycle
		}
		parent, err := s.Get(ctx, *newParentID)
		if err != nil {
			return err
		}
		if parent.IsDescendantOf(id) {
			return ErrCycle
		}
		newChain = hierarchy.ChildAncestors(parent)
	} else {
		newChain = []primitive.ObjectID{}
	}

	now := time.Now().UTC()
	_, err = s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"parent_id":  newParentID,
		"ancestors":  newChain,
		"updated_at": now,
	}})
	if err != nil {
		return err
	}
	if newParentID == nil {
		_, err = s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{"parent_id": ""}})
		if err != nil {
			return err
		}
	}

	// Rewrite the chains of everything below the moved unit. The old
	// prefix (up to and including the moved unit's old position) is
	// replaced by the new chain; the suffix below the unit is kept.
	descendants, err := s.listSubtree(ctx, id)
	if err != nil {
		return err
	}
	oldDepth := len(unit.Ancestors)
	for _, d := range descendants {
		suffix := d.Ancestors[oldDepth:]
		chain := make([]primitive.ObjectID, 0, len(newChain)+len(suffix))
		chain = append(chain, newChain...)
		chain = append(chain, suffix...)
		_, err := s.c.UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{"$set": bson.M{
			"ancestors":  chain,
			"updated_at": now,
		}})
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete marks a unit deleted. Units with active children cannot be
// deleted; callers must prune bottom-up.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.c.CountDocuments(ctx, bson.M{"parent_id": id, "status": models.OrgUnitActive})
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.New("org unit has active children")
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.OrgUnitActive},
		bson.M{"$set": bson.M{"status": models.OrgUnitDeleted, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// listSubtree returns every active unit strictly below the given one.
func (s *Store) listSubtree(ctx context.Context, id primitive.ObjectID) ([]models.OrgUnit, error) {
	cur, err := s.c.Find(ctx, bson.M{"ancestors": id, "status": models.OrgUnitActive})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var units []models.OrgUnit
	if err := cur.All(ctx, &units); err != nil {
		return nil, err
	}
	return units, nil
}
