package policykit

// Resolver evaluates permission decisions against a fixed snapshot of a
// principal's active assignments. It is pure: the outcome depends only on
// the snapshot, the ancestor distances and the precedence configuration, so
// a Resolver built once can serve every candidate of a batch call and all
// results match what individual checks would return at the same instant.
type Resolver struct {
	snapshot *PrincipalAssignments

	// denyOverridesAllow hardens precedence so that an explicit DENY wins
	// even against a strictly closer ALLOW. The default (false) lets a
	// closer ALLOW override a farther DENY.
	denyOverridesAllow bool
}

// NewResolver creates a Resolver over a snapshot of active assignments.
func NewResolver(snapshot *PrincipalAssignments, denyOverridesAllow bool) *Resolver {
	return &Resolver{
		snapshot:           snapshot,
		denyOverridesAllow: denyOverridesAllow,
	}
}

// PrincipalID returns the principal this resolver decides for.
func (r *Resolver) PrincipalID() string {
	return r.snapshot.PrincipalID
}

// HasFirefighter reports whether the snapshot carries an active break-glass
// assignment.
func (r *Resolver) HasFirefighter() bool {
	return r.snapshot.HasFirefighter()
}

// Decide resolves a single permission decision.
//
// distances maps the checked resource and every ancestor reachable through
// configured inheritance edges to its hop count (the resource itself is 0).
// Global assignments participate at GlobalDistance, farther than any
// ancestor. For a check without a resource, pass nil: only global
// assignments apply.
//
// Precedence: the closest-scoped DENY that grants the action wins unless a
// strictly closer ALLOW exists; with no DENY in range, any ALLOW grants;
// with neither, the default is deny.
func (r *Resolver) Decide(action, resourceID string, distances map[string]int) Decision {
	bestAllow := -1
	bestDeny := -1
	allowDist := 0
	denyDist := 0

	for i := range r.snapshot.Assignments {
		a := &r.snapshot.Assignments[i]

		var d int
		if a.IsGlobal() {
			d = GlobalDistance
		} else {
			if resourceID == "" {
				continue
			}
			var ok bool
			d, ok = distances[a.ScopeID]
			if !ok {
				// Scoped to a sibling, descendant or unrelated
				// resource: not a candidate.
				continue
			}
		}

		if !r.snapshot.grants(i, action) {
			continue
		}

		switch a.Polarity {
		case Deny:
			if bestDeny == -1 || d < denyDist {
				bestDeny = i
				denyDist = d
			}
		default:
			if bestAllow == -1 || d < allowDist {
				bestAllow = i
				allowDist = d
			}
		}
	}

	if bestDeny != -1 {
		closerAllowWins := bestAllow != -1 && allowDist < denyDist && !r.denyOverridesAllow
		if !closerAllowWins {
			return Decision{
				Granted:             false,
				Reason:              ReasonExplicitDeny,
				MatchedAssignmentID: r.snapshot.Assignments[bestDeny].ID,
				Distance:            denyDist,
			}
		}
	}

	if bestAllow != -1 {
		return Decision{
			Granted:             true,
			Reason:              ReasonRoleGrant,
			MatchedAssignmentID: r.snapshot.Assignments[bestAllow].ID,
			Distance:            allowDist,
		}
	}

	return Decision{Granted: false, Reason: ReasonNoGrant}
}

// GrantedActions returns the union of action patterns the snapshot's ALLOW
// assignments carry for the given resource distances. Useful for
// explainability surfaces; not used on the decision path.
func (r *Resolver) GrantedActions(resourceID string, distances map[string]int) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range r.snapshot.Assignments {
		a := &r.snapshot.Assignments[i]
		if a.Polarity != Allow {
			continue
		}
		if !a.IsGlobal() {
			if resourceID == "" {
				continue
			}
			if _, ok := distances[a.ScopeID]; !ok {
				continue
			}
		}
		set := r.snapshot.actionsByRole[a.RoleID]
		if set == nil {
			continue
		}
		for _, p := range set.list() {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out
}
