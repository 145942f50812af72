package policykit

import (
	"context"
	"strings"
)

// Check resolves whether a principal may perform an action, optionally on a
// resource. Pass an empty resourceID for resource-less checks; only global
// assignments apply to those.
//
// The outcome is always explicit. A missing principal or resource is
// ErrNotFound, a store failure is ErrUnavailable, and neither ever degrades
// into a permissive default. A granted=false decision with a nil error is a
// real deny.
//
// Active break-glass grants short-circuit everything: the decision is
// granted with reason "firefighter", bypasses the cache and is always
// audited.
//
// Example:
//
//	d, err := service.Check(ctx, "user-1", "documents.read", "doc-42")
//	if err != nil {
//	    return err
//	}
//	if !d.Granted {
//	    return fmt.Errorf("denied: %s", d.Reason)
//	}
func (s *Service) Check(ctx context.Context, principalID, action, resourceID string) (Decision, error) {
	if err := s.validateCheck(ctx, principalID, action, resourceID); err != nil {
		return Decision{}, err
	}

	ff, err := s.HasActiveFirefighter(ctx, principalID)
	if err != nil {
		return Decision{}, err
	}
	if ff {
		d := Decision{Granted: true, Reason: ReasonFirefighter}
		s.txMonitor.recordCheck(true)
		if s.audit != nil {
			s.audit.Emit(ctx, s.newAuditEvent(ctx, principalID, action, resourceID, d))
		}
		return d, nil
	}

	computed := false
	d, err := s.cache.GetOrCompute(ctx, CacheKey{
		PrincipalID: principalID,
		Action:      action,
		ResourceID:  resourceID,
	}, func(ctx context.Context) (Decision, []string, error) {
		computed = true
		return s.resolve(ctx, principalID, action, resourceID)
	})
	if err != nil {
		return Decision{}, err
	}
	if !computed {
		s.txMonitor.recordCacheHit()
	}

	s.txMonitor.recordCheck(d.Granted)
	s.emitDecision(ctx, principalID, action, resourceID, d)
	return d, nil
}

// resolve computes a decision from scratch: load the assignment snapshot,
// walk the resource's ancestors and run the precedence rules. Returns the
// cache tags the decision depends on.
func (s *Service) resolve(ctx context.Context, principalID, action, resourceID string) (Decision, []string, error) {
	now := s.now()

	snap, err := s.snapshot(ctx, principalID, now)
	if err != nil {
		return Decision{}, nil, err
	}

	var distances map[string]int
	tags := []string{PrincipalTag(principalID)}
	if resourceID != "" {
		distances, err = s.ancestors(ctx, resourceID)
		if err != nil {
			return Decision{}, nil, err
		}
		for id := range distances {
			tags = append(tags, ResourceTag(id))
		}
	}

	r := NewResolver(snap, s.cfg.DenyOverridesAllow)
	return r.Decide(action, resourceID, distances), tags, nil
}

// validateCheck rejects malformed inputs and unknown entities before any
// decision logic runs.
func (s *Service) validateCheck(ctx context.Context, principalID, action, resourceID string) error {
	if principalID == "" {
		return NewError(ErrInvalidInput, "principal id cannot be empty").WithAction(action)
	}
	if action == "" {
		return NewError(ErrInvalidInput, "action cannot be empty").WithPrincipal(principalID)
	}
	// Wildcards belong on grants. A check asks about one concrete action.
	if strings.Contains(action, Wildcard) {
		return NewError(ErrInvalidInput, "checked action cannot contain wildcards").
			WithPrincipal(principalID).
			WithAction(action)
	}
	if err := DefaultMatcher.Validate(action); err != nil {
		return err
	}

	exists, err := s.graph.Exists(ctx, principalID)
	if err != nil {
		return err
	}
	if !exists {
		return NewError(ErrNotFound, "principal not found").WithPrincipal(principalID)
	}

	if resourceID != "" {
		exists, err := s.graph.Exists(ctx, resourceID)
		if err != nil {
			return err
		}
		if !exists {
			return NewError(ErrNotFound, "resource not found").
				WithPrincipal(principalID).
				WithResource(resourceID)
		}
	}
	return nil
}

// LoadResolver builds a Resolver over the principal's current snapshot.
// Handlers can run any number of decisions against it without further
// ledger reads; all of them observe the same instant.
func (s *Service) LoadResolver(ctx context.Context, principalID string) (*Resolver, error) {
	snap, err := s.snapshot(ctx, principalID, s.now())
	if err != nil {
		return nil, err
	}
	return NewResolver(snap, s.cfg.DenyOverridesAllow), nil
}

// GrantedActions returns the union of action patterns the principal's
// active ALLOW assignments carry for a resource. Explanatory surface only;
// DENY assignments and break-glass grants are not reflected here.
func (s *Service) GrantedActions(ctx context.Context, principalID, resourceID string) ([]string, error) {
	snap, err := s.snapshot(ctx, principalID, s.now())
	if err != nil {
		return nil, err
	}

	var distances map[string]int
	if resourceID != "" {
		distances, err = s.ancestors(ctx, resourceID)
		if err != nil {
			return nil, err
		}
	}

	r := NewResolver(snap, s.cfg.DenyOverridesAllow)
	return r.GrantedActions(resourceID, distances), nil
}
