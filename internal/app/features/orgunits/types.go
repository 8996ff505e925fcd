// internal/app/features/orgunits/types.go
package orgunits

import "time"

// createRequest is the body for creating an org unit. ParentID empty
// means a new root.
type createRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// reparentRequest is the body for moving an org unit. ParentID empty
// makes the unit a root.
type reparentRequest struct {
	ParentID string `json:"parent_id,omitempty"`
}

// grantRequest is the body for granting a membership in a unit.
type grantRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// unitResponse is the JSON shape of one org unit.
type unitResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	Ancestors []string  `json:"ancestors"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// membershipResponse is the JSON shape of one membership.
type membershipResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrgUnitID string    `json:"org_unit_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// memberResponse is one visible member of a unit subtree.
type memberResponse struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	OrgUnitID string `json:"org_unit_id"`
}

// coverageResponse lists the org unit ids the current user covers.
type coverageResponse struct {
	OrgUnitIDs []string `json:"org_unit_ids"`
}
