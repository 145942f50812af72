package policykit

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// batchWalkConcurrency bounds parallel ancestor walks in batch calls.
const batchWalkConcurrency = 8

// CheckMany resolves many (action, resource) pairs for one principal in a
// single call. The snapshot is loaded once and every pair is decided against
// it at the same instant, so the results are exactly what individual Check
// calls would return at that moment. Results are positional: result i
// answers request i.
//
// Ancestor walks for distinct resources run concurrently; the ledger is
// still read only once.
//
// Example:
//
//	decisions, err := service.CheckMany(ctx, "user-1", []policykit.CheckRequest{
//	    {Action: "documents.read", ResourceID: "doc-1"},
//	    {Action: "documents.write", ResourceID: "doc-1"},
//	    {Action: "admin.settings", ResourceID: ""},
//	})
func (s *Service) CheckMany(ctx context.Context, principalID string, reqs []CheckRequest) ([]Decision, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	for i := range reqs {
		if err := s.validateCheck(ctx, principalID, reqs[i].Action, reqs[i].ResourceID); err != nil {
			return nil, err
		}
	}

	ff, err := s.HasActiveFirefighter(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if ff {
		decisions := make([]Decision, len(reqs))
		for i := range reqs {
			d := Decision{Granted: true, Reason: ReasonFirefighter}
			decisions[i] = d
			s.txMonitor.recordCheck(true)
			if s.audit != nil {
				s.audit.Emit(ctx, s.newAuditEvent(ctx, principalID, reqs[i].Action, reqs[i].ResourceID, d))
			}
		}
		return decisions, nil
	}

	snap, err := s.snapshot(ctx, principalID, s.now())
	if err != nil {
		return nil, err
	}
	r := NewResolver(snap, s.cfg.DenyOverridesAllow)

	distancesByResource, err := s.walkAll(ctx, distinctResources(reqs))
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, len(reqs))
	for i := range reqs {
		d := r.Decide(reqs[i].Action, reqs[i].ResourceID, distancesByResource[reqs[i].ResourceID])
		decisions[i] = d
		s.txMonitor.recordCheck(d.Granted)
		s.emitDecision(ctx, principalID, reqs[i].Action, reqs[i].ResourceID, d)
	}
	return decisions, nil
}

// AccessibleResources filters candidates down to the ones the principal may
// perform the action on, all decided against one snapshot. Candidate ids
// that do not exist in the graph are omitted rather than failing the whole
// call; this is a filtering surface, not a validator.
//
// Example:
//
//	visible, err := service.AccessibleResources(ctx, "user-1", "documents.read", docIDs)
func (s *Service) AccessibleResources(ctx context.Context, principalID, action string, candidates []string) ([]string, error) {
	if err := s.validateCheck(ctx, principalID, action, ""); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ff, err := s.HasActiveFirefighter(ctx, principalID)
	if err != nil {
		return nil, err
	}

	existing := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == "" {
			continue
		}
		ok, err := s.graph.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			existing = append(existing, id)
		}
	}

	if ff {
		for _, id := range existing {
			s.audit.Emit(ctx, s.newAuditEvent(ctx, principalID, action, id,
				Decision{Granted: true, Reason: ReasonFirefighter}))
		}
		return existing, nil
	}

	snap, err := s.snapshot(ctx, principalID, s.now())
	if err != nil {
		return nil, err
	}
	r := NewResolver(snap, s.cfg.DenyOverridesAllow)

	distancesByResource, err := s.walkAll(ctx, existing)
	if err != nil {
		return nil, err
	}

	var granted []string
	for _, id := range existing {
		if r.Decide(action, id, distancesByResource[id]).Granted {
			granted = append(granted, id)
		}
	}
	return granted, nil
}

// walkAll resolves ancestor distances for each resource id concurrently.
func (s *Service) walkAll(ctx context.Context, resourceIDs []string) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return out, nil
	}

	results := make([]map[string]int, len(resourceIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWalkConcurrency)
	for i, id := range resourceIDs {
		g.Go(func() error {
			distances, err := s.ancestors(gctx, id)
			if err != nil {
				return err
			}
			results[i] = distances
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, id := range resourceIDs {
		out[id] = results[i]
	}
	return out, nil
}

func distinctResources(reqs []CheckRequest) []string {
	seen := make(map[string]struct{}, len(reqs))
	var out []string
	for i := range reqs {
		id := reqs[i].ResourceID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
