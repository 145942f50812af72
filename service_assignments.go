package policykit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Ledger audit event names.
const (
	EventAssignmentCreated  = "assignment_created"
	EventAssignmentRevoked  = "assignment_revoked"
	EventScheduleUpdated    = "assignment_schedule_updated"
	EventFirefighterGranted = "firefighter_granted"
	EventFirefighterRevoked = "firefighter_revoked"
)

// AssignmentInput describes a new role assignment.
type AssignmentInput struct {
	// PrincipalID receives the role.
	PrincipalID string

	// Role is the role name from the catalog.
	Role string

	// ScopeID limits the assignment to one resource and its descendants.
	// Empty means global.
	ScopeID string

	// Polarity defaults to Allow.
	Polarity Polarity

	// ValidFrom and ValidUntil bound the assignment in time. Nil means
	// unbounded on that side.
	ValidFrom  *time.Time
	ValidUntil *time.Time

	// Schedule restricts the assignment to a recurring window.
	Schedule ScheduleKind
}

func (in AssignmentInput) validate() error {
	if in.PrincipalID == "" {
		return NewError(ErrInvalidInput, "principal id cannot be empty")
	}
	if in.Role == "" {
		return NewError(ErrInvalidInput, "role name cannot be empty").WithPrincipal(in.PrincipalID)
	}
	if in.Polarity != "" && in.Polarity != Allow && in.Polarity != Deny {
		return NewError(ErrInvalidInput, "polarity must be allow or deny").WithPrincipal(in.PrincipalID)
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidFrom.Before(*in.ValidUntil) {
		return NewError(ErrInvalidInput, "valid_from must precede valid_until").WithPrincipal(in.PrincipalID)
	}
	return ValidateSchedule(in.Schedule)
}

// ============================================================================
// LEDGER OPERATIONS
// ============================================================================

// Assign creates a role assignment.
//
// The actor (from the context) is recorded as the grantor. When delegation
// rules exist for the role, the actor must hold an active assignment of a
// delegator role or the call fails with ErrPermissionDenied; roles without
// delegation rules can only be granted through whatever guards the caller
// puts in front of Assign.
//
// An equivalent active assignment (same principal, role, scope and
// polarity) already on the ledger makes the call fail with ErrConflict.
// Revoked or expired ones never collide: a colliding row past its
// valid_until is closed out here and renewal creates a new row.
//
// Example:
//
//	ctx = policykit.WithActorID(ctx, adminID)
//	a, err := service.Assign(ctx, policykit.AssignmentInput{
//	    PrincipalID: "user-1",
//	    Role:        "editor",
//	    ScopeID:     "project-7",
//	})
func (s *Service) Assign(ctx context.Context, in AssignmentInput) (*RoleAssignment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	actorID := GetActorID(ctx)
	if actorID == "" {
		return nil, NewError(ErrNoActorID, "actor ID required for role assignment").
			WithPrincipal(in.PrincipalID).
			WithRole(in.Role)
	}

	role, err := s.GetRole(ctx, in.Role)
	if err != nil {
		return nil, err
	}

	if in.ScopeID != "" {
		exists, err := s.graph.Exists(ctx, in.ScopeID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, NewError(ErrNotFound, "scope resource not found").
				WithResource(in.ScopeID).
				WithRole(in.Role)
		}
	}

	if err := s.checkDelegation(ctx, actorID, role); err != nil {
		return nil, err
	}

	polarity := in.Polarity
	if polarity == "" {
		polarity = Allow
	}

	// A colliding row that has outlived its valid_until is inactive even
	// though it was never revoked. Close it out so the active-uniqueness
	// index only guards rows still in effect and renewal creates a fresh
	// assignment.
	now := s.now()
	expired, err := s.conn(ctx).NewUpdate().Model((*RoleAssignment)(nil)).
		Set("revoked_at = ?", now).
		Set("revoked_by = ?", actorID).
		Set("revoke_reason = ?", "expired").
		Where("principal_id = ?", in.PrincipalID).
		Where("role_id = ?", role.ID).
		Where("scope_id = ?", in.ScopeID).
		Where("polarity = ?", polarity).
		Where("revoked_at IS NULL").
		Where("valid_until IS NOT NULL").
		Where("valid_until <= ?", now).
		Exec(ctx)
	if err := dbkit.WithErr(expired, err, "ExpireAssignments").Err(); err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "expire stale assignments").WithPrincipal(in.PrincipalID)
	}

	assignment := &RoleAssignment{
		PrincipalID: in.PrincipalID,
		RoleID:      role.ID,
		RoleName:    role.Name,
		ScopeID:     in.ScopeID,
		Polarity:    polarity,
		ValidFrom:   in.ValidFrom,
		ValidUntil:  in.ValidUntil,
		Schedule:    in.Schedule,
		GrantedBy:   actorID,
	}

	result, err := s.conn(ctx).NewInsert().Model(assignment).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateAssignment").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return nil, NewError(ErrConflict, "an equivalent active assignment already exists").
				WithPrincipal(in.PrincipalID).
				WithRole(in.Role).
				WithResource(in.ScopeID)
		}
		return nil, classifyStoreErr(err, "create assignment").WithPrincipal(in.PrincipalID)
	}

	s.invalidatePrincipal(ctx, in.PrincipalID)
	s.emitLedger(ctx, EventAssignmentCreated, assignment, map[string]any{
		"polarity": string(polarity),
		"schedule": string(in.Schedule),
	})

	return assignment, nil
}

// Revoke marks an assignment as revoked, keeping the row for audit history.
// Revoking an already-revoked assignment is a no-op, so retries are safe.
// The actor and reason are recorded on the row.
//
// Example:
//
//	ctx = policykit.WithActorID(ctx, adminID)
//	err := service.Revoke(ctx, assignmentID, "left the team")
func (s *Service) Revoke(ctx context.Context, assignmentID, reason string) error {
	actorID := GetActorID(ctx)
	if actorID == "" {
		return NewError(ErrNoActorID, "actor ID required for revocation")
	}

	assignment, err := s.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment.Revoked() {
		return nil
	}

	now := s.now()
	result, err := s.conn(ctx).NewUpdate().Model((*RoleAssignment)(nil)).
		Set("revoked_at = ?", now).
		Set("revoked_by = ?", actorID).
		Set("revoke_reason = ?", reason).
		Where("id = ?", assignmentID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RevokeAssignment").Err(); err != nil {
		return classifyStoreErr(err, "revoke assignment").WithPrincipal(assignment.PrincipalID)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Lost the race to another revoker. The end state is identical.
		return nil
	}

	assignment.RevokedAt = &now
	assignment.RevokedBy = actorID
	assignment.RevokeReason = reason

	s.invalidatePrincipal(ctx, assignment.PrincipalID)
	s.emitLedger(ctx, EventAssignmentRevoked, assignment, map[string]any{
		"reason": reason,
	})

	return nil
}

// RevokeAll revokes every active assignment of a principal.
func (s *Service) RevokeAll(ctx context.Context, principalID, reason string) error {
	assignments, err := s.ListAssignments(ctx, principalID, false)
	if err != nil {
		return err
	}
	for i := range assignments {
		if err := s.Revoke(ctx, assignments[i].ID, reason); err != nil {
			return err
		}
	}
	return nil
}

// GetAssignment retrieves an assignment by id, revoked or not.
func (s *Service) GetAssignment(ctx context.Context, id string) (*RoleAssignment, error) {
	var assignment RoleAssignment
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&assignment).Where("id = ?", id).Limit(1).Scan(ctx), "GetAssignment").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "assignment not found")
		}
		return nil, classifyStoreErr(err, "get assignment")
	}
	return &assignment, nil
}

// ListAssignments returns a principal's assignments, newest first. With
// includeRevoked the full history is returned; otherwise only rows that have
// not been revoked, including ones outside their validity window or
// schedule.
func (s *Service) ListAssignments(ctx context.Context, principalID string, includeRevoked bool) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	q := s.conn(ctx).NewSelect().Model(&assignments).
		Where("principal_id = ?", principalID).
		Order("created_at DESC")
	if !includeRevoked {
		q = q.Where("revoked_at IS NULL")
	}
	err := dbkit.WithErr1(q.Scan(ctx), "ListAssignments").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "list assignments").WithPrincipal(principalID)
	}
	return assignments, nil
}

// UpdateSchedule replaces the recurring schedule of an active assignment.
func (s *Service) UpdateSchedule(ctx context.Context, assignmentID string, schedule ScheduleKind) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	assignment, err := s.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment.Revoked() {
		return NewError(ErrConflict, "cannot reschedule a revoked assignment").
			WithPrincipal(assignment.PrincipalID)
	}

	result, err := s.conn(ctx).NewUpdate().Model((*RoleAssignment)(nil)).
		Set("schedule = ?", schedule).
		Where("id = ?", assignmentID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "UpdateSchedule").Err(); err != nil {
		return classifyStoreErr(err, "update schedule").WithPrincipal(assignment.PrincipalID)
	}

	assignment.Schedule = schedule
	s.invalidatePrincipal(ctx, assignment.PrincipalID)
	s.emitLedger(ctx, EventScheduleUpdated, assignment, map[string]any{
		"schedule": string(schedule),
	})
	return nil
}

// checkDelegation enforces delegation rules at grant time. Roles with no
// rules are unguarded here; roles with rules require the actor to hold an
// active delegator role.
func (s *Service) checkDelegation(ctx context.Context, actorID string, role *Role) error {
	count, err := dbkit.Count[RoleDelegation](ctx, s.conn(ctx), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("grantee_role_id = ?", role.ID)
	})
	if err != nil {
		return classifyStoreErr(err, "delegation rules")
	}
	if count == 0 {
		return nil
	}

	ok, err := s.canDelegate(ctx, actorID, role.ID)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(ErrPermissionDenied, "actor cannot delegate this role").
			WithRole(role.Name).
			WithActor(actorID)
	}
	return nil
}

// ============================================================================
// BREAK-GLASS
// ============================================================================

// GrantFirefighter creates a time-boxed break-glass assignment. While it is
// active every check for the principal short-circuits to granted with reason
// "firefighter" and is always audited. The grant expires on its own; no
// revocation step is required, though DeactivateFirefighter ends it early.
//
// Example:
//
//	ctx = policykit.WithActorID(ctx, incidentCommanderID)
//	a, err := service.GrantFirefighter(ctx, onCallID, time.Hour, "sev1 incident")
func (s *Service) GrantFirefighter(ctx context.Context, principalID string, duration time.Duration, reason string) (*RoleAssignment, error) {
	if duration <= 0 {
		return nil, NewError(ErrInvalidInput, "firefighter duration must be positive").
			WithPrincipal(principalID)
	}
	if reason == "" {
		return nil, NewError(ErrInvalidInput, "firefighter grants require a reason").
			WithPrincipal(principalID)
	}

	role, err := s.firefighterRole(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	until := now.Add(duration)
	assignment, err := s.Assign(ctx, AssignmentInput{
		PrincipalID: principalID,
		Role:        role.Name,
		ValidFrom:   &now,
		ValidUntil:  &until,
	})
	if err != nil {
		return nil, err
	}

	s.emitLedger(ctx, EventFirefighterGranted, assignment, map[string]any{
		"duration": duration.String(),
		"expires":  until,
		"reason":   reason,
	})
	return assignment, nil
}

// HasActiveFirefighter reports whether a break-glass grant is in effect for
// the principal right now.
func (s *Service) HasActiveFirefighter(ctx context.Context, principalID string) (bool, error) {
	assignments, err := s.firefighterAssignments(ctx, principalID)
	if err != nil {
		return false, err
	}
	now := s.now()
	for i := range assignments {
		if assignments[i].ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// DeactivateFirefighter revokes every active break-glass grant of the
// principal before its natural expiry.
func (s *Service) DeactivateFirefighter(ctx context.Context, principalID, reason string) error {
	assignments, err := s.firefighterAssignments(ctx, principalID)
	if err != nil {
		return err
	}
	now := s.now()
	for i := range assignments {
		if !assignments[i].ActiveAt(now) {
			continue
		}
		if err := s.Revoke(ctx, assignments[i].ID, reason); err != nil {
			return err
		}
		s.emitLedger(ctx, EventFirefighterRevoked, &assignments[i], map[string]any{
			"reason": reason,
		})
	}
	return nil
}

// firefighterRole returns the reserved break-glass role, creating it on
// first use. The role needs no permission bindings: an active firefighter
// assignment short-circuits checks before roles are consulted.
func (s *Service) firefighterRole(ctx context.Context) (*Role, error) {
	role, err := s.GetRole(ctx, FirefighterRole)
	if err == nil {
		return role, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	role, err = s.CreateRole(ctx, FirefighterRole)
	if err != nil {
		if IsConflict(err) {
			// Another caller created it concurrently.
			return s.GetRole(ctx, FirefighterRole)
		}
		return nil, err
	}
	return role, nil
}

func (s *Service) firefighterAssignments(ctx context.Context, principalID string) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&assignments).
		Where("principal_id = ?", principalID).
		Where("role_name = ?", FirefighterRole).
		Where("polarity = ?", Allow).
		Where("revoked_at IS NULL").
		Scan(ctx), "FirefighterAssignments").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "firefighter assignments").WithPrincipal(principalID)
	}
	return assignments, nil
}

// ============================================================================
// SNAPSHOT LOADING
// ============================================================================

// snapshot loads a principal's assignments that are active at now, plus the
// action names of every referenced role, indexed for the Resolver.
func (s *Service) snapshot(ctx context.Context, principalID string, now time.Time) (*PrincipalAssignments, error) {
	var rows []RoleAssignment
	err := dbkit.WithErr1(s.conn(ctx).NewSelect().Model(&rows).
		Where("principal_id = ?", principalID).
		Where("revoked_at IS NULL").
		Scan(ctx), "LoadAssignments").Err()
	if err != nil && !dbkit.IsNotFound(err) {
		return nil, classifyStoreErr(err, "load assignments").WithPrincipal(principalID)
	}

	// Validity windows and schedules are evaluated here, against the check
	// instant, so the snapshot only carries assignments in effect right now.
	active := rows[:0]
	for i := range rows {
		if rows[i].ActiveAt(now) {
			active = append(active, rows[i])
		}
	}

	roleIDs := make([]string, 0, len(active))
	seen := make(map[string]struct{}, len(active))
	for i := range active {
		if _, dup := seen[active[i].RoleID]; !dup {
			seen[active[i].RoleID] = struct{}{}
			roleIDs = append(roleIDs, active[i].RoleID)
		}
	}

	actions, err := s.roleActions(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	return NewPrincipalAssignments(principalID, active, actions), nil
}

// invalidatePrincipal evicts the principal's memoized decisions. Eviction
// happens before the mutation returns so a revoke is never followed by a
// stale allow.
func (s *Service) invalidatePrincipal(ctx context.Context, principalID string) {
	if err := s.cache.InvalidatePrincipal(ctx, principalID); err != nil {
		s.logger.Warn("decision cache invalidation failed",
			zap.String("principal_id", principalID),
			zap.Error(err))
	}
}
