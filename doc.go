// Package policykit is a relationship-based + attribute-based (ReBAC/ABAC)
// permission resolution engine.
//
// Given a principal, an action and an optional resource, policykit decides
// whether access is granted, taking into account role bundles, resource-scoped
// assignments, inheritance along a relationship graph, temporal validity
// windows, recurring schedules, explicit DENY overrides, wildcard actions,
// delegation rules, and an audited break-glass ("firefighter") path.
//
// # Core Concepts
//
// Principal: an identity (a graph entity) subject to permission checks.
//
// Resource: any graph entity that can be the object of a check; resources may
// have parents via typed edges, and grants propagate down configured
// inheritance edge types.
//
// Action: a string naming an operation, e.g. "documents.edit". "*" is the
// reserved wildcard matching every action; dot-segment patterns such as
// "documents.*" and "*.read" are also supported.
//
// Role: a named bundle of actions with a numeric level.
//
// Role Assignment: binds a principal to a role, optionally scoped to a
// resource (absent scope = global), optionally bounded by a validity window
// and/or a recurring schedule, with ALLOW or DENY polarity and delegation
// provenance. Assignments are soft-revoked, never deleted.
//
// # Decision Semantics
//
// Checks are default-deny: with no matching ALLOW the answer is denied.
// An explicit DENY beats an ALLOW at equal or farther scope distance; only a
// strictly closer ALLOW overrides a farther DENY (configurable via
// Config.DenyOverridesAllow). Every decision carries a stable reason code:
// "firefighter", "explicit_deny", "role_grant" or "no_grant".
//
// # Basic Usage
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	svc := policykit.NewService(db, policykit.Config{CacheTTL: 30 * time.Second})
//	_, _ = db.Migrate(ctx, policykit.NewMigrationService(svc).Migrations())
//
//	_, _ = svc.CreateRole(ctx, "editor")
//	_ = svc.AddPermission(ctx, "editor", "documents.edit")
//
//	_, _ = svc.Assign(ctx, policykit.AssignmentInput{
//	    PrincipalID: userID,
//	    Role:        "editor",
//	    ScopeID:     docID,
//	})
//
//	decision, err := svc.Check(ctx, userID, "documents.edit", docID)
//	if err == nil && decision.Granted {
//	    // proceed
//	}
//
// # Batch Checks
//
//	decisions, _ := svc.CheckMany(ctx, userID, []policykit.CheckRequest{
//	    {Action: "documents.edit", ResourceID: doc1},
//	    {Action: "documents.edit", ResourceID: doc2},
//	})
//
//	readable, _ := svc.AccessibleResources(ctx, userID, "documents.read", candidates)
//
// # Caching
//
// Decisions are memoized in an explicitly passed, tag-indexed cache with a
// short TTL. Every mutation that can change a decision invalidates the
// affected entries synchronously before returning, so a revoke is never
// followed by a stale allow. The cache is an optimization only: on any cache
// backend failure the engine falls back to direct computation.
//
// # Break-Glass Access
//
//	_, _ = svc.GrantFirefighter(ctx, userID, 30*time.Minute, "sev1 incident")
//
// Firefighter grants are mandatorily time-boxed, reuse the ordinary
// assignment expiry/revocation machinery, and every use fires an audit event.
//
// # Audit
//
// Firefighter use, explicit-deny overrides and assignment mutations are
// emitted to a pluggable AuditEmitter (a zap-backed one ships with the
// package, fire-and-forget). Set Config.LogAllDecisions to emit every
// decision.
package policykit
