package policykit

import "time"

// AssignmentFilter provides options for filtering ledger queries.
type AssignmentFilter struct {
	// Filter by principal the assignment targets
	PrincipalID string

	// Filter by role name
	Role string

	// Filter by scope resource; use GlobalOnly for unscoped assignments
	ScopeID string

	// Only global (unscoped) assignments
	GlobalOnly bool

	// Filter by polarity ("allow" or "deny")
	Polarity Polarity

	// Filter by who granted the assignment
	GrantedBy string

	// Include soft-revoked rows
	IncludeRevoked bool

	// Filter by creation time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAssignmentFilter creates a new AssignmentFilter with default values.
func NewAssignmentFilter() AssignmentFilter {
	return AssignmentFilter{
		Limit: 100,
	}
}

// WithPrincipal sets the principal filter.
func (f AssignmentFilter) WithPrincipal(principalID string) AssignmentFilter {
	f.PrincipalID = principalID
	return f
}

// WithRole sets the role name filter.
func (f AssignmentFilter) WithRole(role string) AssignmentFilter {
	f.Role = role
	return f
}

// WithScope sets the scope resource filter.
func (f AssignmentFilter) WithScope(scopeID string) AssignmentFilter {
	f.ScopeID = scopeID
	return f
}

// OnlyGlobal restricts results to unscoped assignments.
func (f AssignmentFilter) OnlyGlobal() AssignmentFilter {
	f.GlobalOnly = true
	return f
}

// WithPolarity sets the polarity filter.
func (f AssignmentFilter) WithPolarity(p Polarity) AssignmentFilter {
	f.Polarity = p
	return f
}

// WithGrantedBy sets the grantor filter.
func (f AssignmentFilter) WithGrantedBy(actorID string) AssignmentFilter {
	f.GrantedBy = actorID
	return f
}

// WithRevoked includes soft-revoked rows in the results.
func (f AssignmentFilter) WithRevoked() AssignmentFilter {
	f.IncludeRevoked = true
	return f
}

// WithTimeRange sets the creation time range filter.
func (f AssignmentFilter) WithTimeRange(since, until time.Time) AssignmentFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AssignmentFilter) WithSince(since time.Time) AssignmentFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AssignmentFilter) WithUntil(until time.Time) AssignmentFilter {
	f.Until = until
	return f
}

// WithLimit sets the limit for results.
func (f AssignmentFilter) WithLimit(limit int) AssignmentFilter {
	f.Limit = limit
	return f
}

// WithOffset sets the offset for pagination.
func (f AssignmentFilter) WithOffset(offset int) AssignmentFilter {
	f.Offset = offset
	return f
}

// WithPagination sets both limit and offset.
func (f AssignmentFilter) WithPagination(limit, offset int) AssignmentFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
