// internal/app/features/orgunits/handler.go
package orgunits

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/dalemusser/taskhub/internal/app/features/apierr"
	"github.com/dalemusser/taskhub/internal/app/policy/taskpolicy"
	"github.com/dalemusser/taskhub/internal/app/store/audit"
	membershipstore "github.com/dalemusser/taskhub/internal/app/store/memberships"
	orgunitstore "github.com/dalemusser/taskhub/internal/app/store/orgunits"
	userstore "github.com/dalemusser/taskhub/internal/app/store/users"
	"github.com/dalemusser/taskhub/internal/app/system/auditlog"
	"github.com/dalemusser/taskhub/internal/app/system/authz"
	"github.com/dalemusser/taskhub/internal/app/system/hierarchy"
	"github.com/dalemusser/taskhub/internal/app/system/visibility"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler owns the org unit and membership management endpoints.
type Handler struct {
	DB       *mongo.Database
	Log      *zap.Logger
	ErrLog   *apierr.ErrorLogger
	AuditLog *auditlog.Logger
}

// NewHandler constructs an org units Handler.
func NewHandler(db *mongo.Database, errLog *apierr.ErrorLogger, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{DB: db, Log: logger, ErrLog: errLog, AuditLog: auditLog}
}

// HandleCreate creates an org unit under an optional parent.
// POST /org-units
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !authz.CanManageOrgUnits(r) {
		apierr.Forbidden(w)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.BadRequest(w, "invalid JSON body")
		return
	}
	var parentID *primitive.ObjectID
	if req.ParentID != "" {
		pid, err := primitive.ObjectIDFromHex(req.ParentID)
		if err != nil {
			apierr.BadRequest(w, "parent_id is not a valid id")
			return
		}
		parentID = &pid
	}

	unit, err := orgunitstore.New(h.DB).Create(r.Context(), req.Name, parentID)
	if err != nil {
		switch {
		case errors.Is(err, orgunitstore.ErrBlankName),
			errors.Is(err, orgunitstore.ErrDuplicateName):
			apierr.BadRequest(w, err.Error())
		case errors.Is(err, orgunitstore.ErrNotFound):
			apierr.NotFound(w)
		default:
			h.ErrLog.Render(w, r, err)
		}
		return
	}

	_, _, uid, _ := authz.UserCtx(r)
	h.AuditLog.Log(r.Context(), audit.Event{
		ActorID:    &uid,
		OrgUnitID:  &unit.ID,
		EventType:  audit.EventOrgUnitCreated,
		EntityType: audit.EntityOrgUnit,
		EntityID:   &unit.ID,
		Success:    true,
		Details:    map[string]string{"name": unit.Name},
	})

	apierr.WriteJSON(w, http.StatusCreated, toUnitResponse(unit))
}

// HandleList returns every active org unit.
// GET /org-units
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	units, err := orgunitstore.New(h.DB).ListActive(r.Context())
	if err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}
	out := make([]unitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, toUnitResponse(u))
	}
	apierr.WriteJSON(w, http.StatusOK, out)
}

// HandleReparent moves an org unit under a new parent.
// POST /org-units/{orgUnitID}/reparent
func (h *Handler) HandleReparent(w http.ResponseWriter, r *http.Request) {
	if !authz.CanManageOrgUnits(r) {
		apierr.Forbidden(w)
		return
	}
	id, ok := pathID(w, r, "orgUnitID")
	if !ok {
		return
	}

	var req reparentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.BadRequest(w, "invalid JSON body")
		return
	}
	var parentID *primitive.ObjectID
	if req.ParentID != "" {
		pid, err := primitive.ObjectIDFromHex(req.ParentID)
		if err != nil {
			apierr.BadRequest(w, "parent_id is not a valid id")
			return
		}
		parentID = &pid
	}

	store := orgunitstore.New(h.DB)
	if err := store.Reparent(r.Context(), id, parentID); err != nil {
		switch {
		case errors.Is(err, orgunitstore.ErrCycle):
			apierr.BadRequest(w, err.Error())
		case errors.Is(err, orgunitstore.ErrNotFound):
			apierr.NotFound(w)
		default:
			h.ErrLog.Render(w, r, err)
		}
		return
	}

	_, _, uid, _ := authz.UserCtx(r)
	h.AuditLog.Log(r.Context(), audit.Event{
		ActorID:    &uid,
		OrgUnitID:  &id,
		EventType:  audit.EventOrgUnitReparented,
		EntityType: audit.EntityOrgUnit,
		EntityID:   &id,
		Success:    true,
		Details:    map[string]string{"new_parent_id": req.ParentID},
	})

	unit, err := store.Get(r.Context(), id)
	if err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, toUnitResponse(unit))
}

// HandleDelete soft-deletes an org unit. Units with active children are
// rejected; historical tasks keep pointing at the deleted unit.
// DELETE /org-units/{orgUnitID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !authz.CanManageOrgUnits(r) {
		apierr.Forbidden(w)
		return
	}
	id, ok := pathID(w, r, "orgUnitID")
	if !ok {
		return
	}

	if err := orgunitstore.New(h.DB).Delete(r.Context(), id); err != nil {
		if errors.Is(err, orgunitstore.ErrNotFound) {
			apierr.NotFound(w)
			return
		}
		// "active children" and similar are caller errors.
		apierr.BadRequest(w, err.Error())
		return
	}

	// Memberships in a deleted unit grant nothing; drop them so coverage
	// stays an exact reflection of the active tree.
	if _, err := membershipstore.New(h.DB).DeleteByOrgUnit(r.Context(), id); err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}

	_, _, uid, _ := authz.UserCtx(r)
	h.AuditLog.Log(r.Context(), audit.Event{
		ActorID:    &uid,
		OrgUnitID:  &id,
		EventType:  audit.EventOrgUnitDeleted,
		EntityType: audit.EntityOrgUnit,
		EntityID:   &id,
		Success:    true,
	})

	apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleGrant grants a user a role in a unit.
// POST /org-units/{orgUnitID}/memberships
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	if !authz.CanManageOrgUnits(r) {
		apierr.Forbidden(w)
		return
	}
	unitID, ok := pathID(w, r, "orgUnitID")
	if !ok {
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.BadRequest(w, "invalid JSON body")
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		apierr.BadRequest(w, "user_id is not a valid id")
		return
	}

	// The unit must exist and be active.
	if _, err := orgunitstore.New(h.DB).Get(r.Context(), unitID); err != nil {
		if errors.Is(err, orgunitstore.ErrNotFound) {
			apierr.NotFound(w)
			return
		}
		h.ErrLog.Render(w, r, err)
		return
	}

	_, _, uid, _ := authz.UserCtx(r)
	m, err := membershipstore.New(h.DB).Grant(r.Context(), userID, unitID, req.Role, uid)
	if err != nil {
		switch {
		case errors.Is(err, membershipstore.ErrBadRole),
			errors.Is(err, membershipstore.ErrDuplicateMembership):
			apierr.BadRequest(w, err.Error())
		default:
			h.ErrLog.Render(w, r, err)
		}
		return
	}

	h.AuditLog.Log(r.Context(), audit.Event{
		ActorID:    &uid,
		OrgUnitID:  &unitID,
		EventType:  audit.EventMembershipGranted,
		EntityType: audit.EntityUser,
		EntityID:   &userID,
		Success:    true,
		Details:    map[string]string{"role": req.Role},
	})

	apierr.WriteJSON(w, http.StatusCreated, toMembershipResponse(m))
}

// HandleRevoke revokes a user's membership in a unit.
// DELETE /org-units/{orgUnitID}/memberships/{userID}
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if !authz.CanManageOrgUnits(r) {
		apierr.Forbidden(w)
		return
	}
	unitID, ok := pathID(w, r, "orgUnitID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := membershipstore.New(h.DB).Revoke(r.Context(), userID, unitID); err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}

	_, _, uid, _ := authz.UserCtx(r)
	h.AuditLog.Log(r.Context(), audit.Event{
		ActorID:    &uid,
		OrgUnitID:  &unitID,
		EventType:  audit.EventMembershipRevoked,
		EntityType: audit.EntityUser,
		EntityID:   &userID,
		Success:    true,
	})

	apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// HandleListMembers lists the members of a unit and its descendants that
// the caller may see. Each record must sit in the caller's coverage and
// carry a role the caller's role may view; the caller always sees their
// own membership. Program admins see everyone. An optional ?role= query
// narrows to one role.
// GET /org-units/{orgUnitID}/members
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	role, _, uid, ok := authz.UserCtx(r)
	if !ok {
		apierr.Forbidden(w)
		return
	}
	unitID, ok := pathID(w, r, "orgUnitID")
	if !ok {
		return
	}

	unitStore := orgunitstore.New(h.DB)
	if _, err := unitStore.Get(r.Context(), unitID); err != nil {
		if errors.Is(err, orgunitstore.ErrNotFound) {
			apierr.NotFound(w)
			return
		}
		h.ErrLog.Render(w, r, err)
		return
	}

	subtree, err := unitStore.ListDescendantsOrSelf(r.Context(), []primitive.ObjectID{unitID})
	if err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}
	unitIDs := make([]primitive.ObjectID, 0, len(subtree))
	for id := range subtree {
		unitIDs = append(unitIDs, id)
	}

	memberStore := membershipstore.New(h.DB)
	members, err := memberStore.ListByOrgUnits(r.Context(), unitIDs, r.URL.Query().Get("role"))
	if err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}

	candidates := make([]visibility.Candidate, 0, len(members))
	for _, m := range members {
		candidates = append(candidates, visibility.Candidate{
			UserID:    m.UserID,
			OrgUnitID: m.OrgUnitID,
			Role:      m.Role,
		})
	}

	if !authz.IsProgramAdmin(r) {
		active, err := unitStore.ListActive(r.Context())
		if err != nil {
			h.ErrLog.Render(w, r, err)
			return
		}
		mine, err := memberStore.ListByUser(r.Context(), uid)
		if err != nil {
			h.ErrLog.Render(w, r, err)
			return
		}
		resolver := visibility.New(hierarchy.NewSnapshot(active))
		candidates = resolver.FilterVisible(uid, role, mine, candidates)
	}

	userIDs := make([]primitive.ObjectID, 0, len(candidates))
	for _, c := range candidates {
		userIDs = append(userIDs, c.UserID)
	}
	users, err := userstore.New(h.DB).ListByIDs(r.Context(), userIDs)
	if err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]memberResponse, 0, len(candidates))
	for _, c := range candidates {
		u, found := byID[c.UserID]
		if !found {
			// Membership pointing at a deleted user.
			continue
		}
		out = append(out, memberResponse{
			UserID:    c.UserID.Hex(),
			Name:      u.FullName,
			Email:     u.Email,
			Role:      c.Role,
			OrgUnitID: c.OrgUnitID.Hex(),
		})
	}
	apierr.WriteJSON(w, http.StatusOK, out)
}

// HandleCoverage returns the closed set of org unit ids the current
// user's memberships cover, sorted for stable output.
// GET /org-units/coverage
func (h *Handler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	_, _, uid, ok := authz.UserCtx(r)
	if !ok {
		apierr.Forbidden(w)
		return
	}

	coverage, err := taskpolicy.CoverageOf(r.Context(), h.DB, uid)
	if err != nil {
		h.ErrLog.Render(w, r, err)
		return
	}

	ids := make([]string, 0, len(coverage))
	for id := range coverage {
		ids = append(ids, id.Hex())
	}
	sort.Strings(ids)
	apierr.WriteJSON(w, http.StatusOK, coverageResponse{OrgUnitIDs: ids})
}

// helpers

func pathID(w http.ResponseWriter, r *http.Request, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, param))
	if err != nil {
		apierr.BadRequest(w, param+" is not a valid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func toUnitResponse(u models.OrgUnit) unitResponse {
	resp := unitResponse{
		ID:        u.ID.Hex(),
		Name:      u.Name,
		Ancestors: make([]string, 0, len(u.Ancestors)),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.ParentID != nil {
		resp.ParentID = u.ParentID.Hex()
	}
	for _, a := range u.Ancestors {
		resp.Ancestors = append(resp.Ancestors, a.Hex())
	}
	return resp
}

func toMembershipResponse(m models.Membership) membershipResponse {
	return membershipResponse{
		ID:        m.ID.Hex(),
		UserID:    m.UserID.Hex(),
		OrgUnitID: m.OrgUnitID.Hex(),
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}
