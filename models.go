package policykit

import (
	"time"

	"github.com/uptrace/bun"
)

// Polarity is the effect of a role assignment.
type Polarity string

const (
	// Allow grants the role's actions.
	Allow Polarity = "allow"
	// Deny blocks the role's actions, overriding allows at equal or
	// farther scope distance.
	Deny Polarity = "deny"
)

// Stable decision reason codes, consumed by explainability surfaces.
const (
	ReasonFirefighter  = "firefighter"
	ReasonExplicitDeny = "explicit_deny"
	ReasonRoleGrant    = "role_grant"
	ReasonNoGrant      = "no_grant"
)

// Wildcard is the reserved action matching every action check.
const Wildcard = "*"

// FirefighterRole is the reserved role used by break-glass grants.
const FirefighterRole = "firefighter"

// GlobalDistance is the scope distance of a global (unscoped) assignment.
// It is farther than any reachable graph ancestor.
const GlobalDistance = 1 << 30

// Entity is a node in the relationship graph. Principals and resources are
// both entities; policykit only relies on existence and parent edges.
type Entity struct {
	bun.BaseModel `bun:"table:entities,alias:e"`

	ID        string    `bun:"id,pk"`
	Kind      string    `bun:"kind,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// EntityEdge is a typed parent relationship between two entities. Grants
// propagate from parent to child along edge types configured as
// permission-propagating (Config.InheritanceEdgeTypes).
type EntityEdge struct {
	bun.BaseModel `bun:"table:entity_edges,alias:ee"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ChildID   string    `bun:"child_id,notnull"`
	ParentID  string    `bun:"parent_id,notnull"`
	EdgeType  string    `bun:"edge_type,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Role is a named bundle of permission actions with a numeric level.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name      string    `bun:"name,notnull,unique"`
	Level     int       `bun:"level,notnull,default:0"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// PermissionAction names an operation that can be checked.
type PermissionAction struct {
	bun.BaseModel `bun:"table:permission_actions,alias:pa"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name        string    `bun:"name,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RolePermission binds an action to a role. The pair is unique, which makes
// AddPermission idempotent at the store level.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	RoleID    string    `bun:"role_id,notnull"`
	ActionID  string    `bun:"action_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RoleDelegation allows principals holding the delegator role to grant the
// grantee role to others. Checked at assignment time, never at check time.
type RoleDelegation struct {
	bun.BaseModel `bun:"table:role_delegations,alias:rd"`

	ID              string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	DelegatorRoleID string    `bun:"delegator_role_id,notnull"`
	GranteeRoleID   string    `bun:"grantee_role_id,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RoleAssignment binds a principal to a role, optionally scoped to a
// resource, bounded in time, schedule-constrained, with ALLOW or DENY
// polarity and delegation provenance. Assignments are soft-revoked to
// preserve audit history; renewal always creates a new assignment.
type RoleAssignment struct {
	bun.BaseModel `bun:"table:role_assignments,alias:ra"`

	ID          string `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	PrincipalID string `bun:"principal_id,notnull"`
	RoleID      string `bun:"role_id,notnull"`
	RoleName    string `bun:"role_name,notnull"`

	// ScopeID limits the assignment to one resource (and, through
	// inheritance edges, its descendants). Empty means global.
	ScopeID string `bun:"scope_id,notnull,default:''"`

	Polarity   Polarity     `bun:"polarity,notnull,default:'allow'"`
	ValidFrom  *time.Time   `bun:"valid_from"`
	ValidUntil *time.Time   `bun:"valid_until"`
	Schedule   ScheduleKind `bun:"schedule,notnull,default:''"`

	GrantedBy string    `bun:"granted_by"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`

	RevokedAt    *time.Time `bun:"revoked_at"`
	RevokedBy    string     `bun:"revoked_by"`
	RevokeReason string     `bun:"revoke_reason"`
}

// IsGlobal reports whether the assignment applies everywhere.
func (a *RoleAssignment) IsGlobal() bool {
	return a.ScopeID == ""
}

// Revoked reports whether the assignment has been explicitly revoked.
func (a *RoleAssignment) Revoked() bool {
	return a.RevokedAt != nil
}

// ActiveAt reports whether the assignment is in effect at t: not revoked,
// within its validity window, and inside its recurring schedule. Validity is
// always evaluated against check time, never assignment time.
func (a *RoleAssignment) ActiveAt(t time.Time) bool {
	if a.Revoked() {
		return false
	}
	if a.ValidFrom != nil && t.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && !t.Before(*a.ValidUntil) {
		return false
	}
	return a.Schedule.ActiveAt(t)
}

// CheckRequest is a single (action, resource) pair for CheckMany.
type CheckRequest struct {
	Action     string
	ResourceID string
}

// Decision is the ephemeral output of a permission check. It is not
// persisted by the engine.
type Decision struct {
	Granted bool `json:"granted"`

	// Reason is a stable code: "firefighter", "explicit_deny",
	// "role_grant" or "no_grant".
	Reason string `json:"reason"`

	// MatchedAssignmentID identifies the assignment that decided the
	// outcome, when one did.
	MatchedAssignmentID string `json:"matched_assignment_id,omitempty"`

	// Distance is the scope distance of the matched assignment: 0 for the
	// resource itself, hop count for ancestors, GlobalDistance for global
	// assignments.
	Distance int `json:"-"`
}

// PrincipalAssignments is a snapshot of a principal's currently-valid
// assignments plus the interned action sets of the referenced roles. It is
// computed once and shared by every candidate of a batch call, so all of
// them observe the same "now".
type PrincipalAssignments struct {
	PrincipalID string
	Assignments []RoleAssignment

	actionsByRole map[string]*actionSet
	byScope       map[string][]int // scope id ("" = global) -> indexes into Assignments
}

// NewPrincipalAssignments indexes a set of active assignments together with
// each role's granted actions.
func NewPrincipalAssignments(principalID string, assignments []RoleAssignment, roleActions map[string][]string) *PrincipalAssignments {
	pa := &PrincipalAssignments{
		PrincipalID:   principalID,
		Assignments:   assignments,
		actionsByRole: make(map[string]*actionSet, len(roleActions)),
		byScope:       make(map[string][]int),
	}
	for roleID, actions := range roleActions {
		pa.actionsByRole[roleID] = newActionSet(actions)
	}
	for i, a := range assignments {
		pa.byScope[a.ScopeID] = append(pa.byScope[a.ScopeID], i)
	}
	return pa
}

// Grants reports whether the assignment at index i grants the action,
// by exact match, dot-segment pattern or wildcard.
func (pa *PrincipalAssignments) grants(i int, action string) bool {
	set := pa.actionsByRole[pa.Assignments[i].RoleID]
	if set == nil {
		return false
	}
	return set.grants(action)
}

// HasFirefighter reports whether the snapshot contains an active
// break-glass assignment.
func (pa *PrincipalAssignments) HasFirefighter() bool {
	for _, a := range pa.Assignments {
		if a.RoleName == FirefighterRole && a.Polarity == Allow {
			return true
		}
	}
	return false
}

// ScopeIDs returns the distinct non-global scopes present in the snapshot.
func (pa *PrincipalAssignments) ScopeIDs() []string {
	ids := make([]string, 0, len(pa.byScope))
	for scope := range pa.byScope {
		if scope != "" {
			ids = append(ids, scope)
		}
	}
	return ids
}

// AuditEvent is the fire-and-forget record handed to the AuditEmitter for
// consequential decisions and assignment changes.
type AuditEvent struct {
	ID                  string         `json:"id"`
	PrincipalID         string         `json:"principal_id"`
	Action              string         `json:"action"`
	ResourceID          string         `json:"resource_id,omitempty"`
	Granted             bool           `json:"granted"`
	Reason              string         `json:"reason"`
	MatchedAssignmentID string         `json:"matched_assignment_id,omitempty"`
	ActorID             string         `json:"actor_id,omitempty"`
	IPAddress           string         `json:"ip_address,omitempty"`
	RequestID           string         `json:"request_id,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	Timestamp           time.Time      `json:"timestamp"`
}
