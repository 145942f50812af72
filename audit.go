package policykit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditEmitter receives consequential decision and ledger events.
// Emit is fire-and-forget: implementations must not block the decision path
// and a failing emitter never fails a check or an assignment.
type AuditEmitter interface {
	Emit(ctx context.Context, event AuditEvent)
}

// ZapEmitter logs audit events as structured records.
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter creates an emitter writing to the given logger.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEmitter{logger: logger}
}

// Emit implements AuditEmitter.
func (e *ZapEmitter) Emit(_ context.Context, event AuditEvent) {
	e.logger.Info("policykit audit",
		zap.String("event_id", event.ID),
		zap.String("principal_id", event.PrincipalID),
		zap.String("action", event.Action),
		zap.String("resource_id", event.ResourceID),
		zap.Bool("granted", event.Granted),
		zap.String("reason", event.Reason),
		zap.String("matched_assignment_id", event.MatchedAssignmentID),
		zap.String("actor_id", event.ActorID),
		zap.String("ip_address", event.IPAddress),
		zap.String("request_id", event.RequestID),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("metadata", event.Metadata),
	)
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit implements AuditEmitter.
func (NopEmitter) Emit(context.Context, AuditEvent) {}

// newAuditEvent stamps an event with an id, a timestamp and the audit
// information carried in the context.
func (s *Service) newAuditEvent(ctx context.Context, principalID, action, resourceID string, d Decision) AuditEvent {
	ac := GetAuditContext(ctx)
	return AuditEvent{
		ID:                  uuid.NewString(),
		PrincipalID:         principalID,
		Action:              action,
		ResourceID:          resourceID,
		Granted:             d.Granted,
		Reason:              d.Reason,
		MatchedAssignmentID: d.MatchedAssignmentID,
		ActorID:             ac.ActorID,
		IPAddress:           ac.IPAddress,
		RequestID:           ac.RequestID,
		Timestamp:           s.now(),
	}
}

// emitDecision fires audit events according to the configured policy:
// firefighter use and explicit-deny overrides always, every decision when
// LogAllDecisions is set.
func (s *Service) emitDecision(ctx context.Context, principalID, action, resourceID string, d Decision) {
	if s.audit == nil {
		return
	}
	if !s.cfg.LogAllDecisions && d.Reason != ReasonFirefighter && d.Reason != ReasonExplicitDeny {
		return
	}
	s.audit.Emit(ctx, s.newAuditEvent(ctx, principalID, action, resourceID, d))
}

// emitLedger fires an audit event for an assignment mutation.
func (s *Service) emitLedger(ctx context.Context, event string, a *RoleAssignment, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	ac := GetAuditContext(ctx)
	s.audit.Emit(ctx, AuditEvent{
		ID:                  uuid.NewString(),
		PrincipalID:         a.PrincipalID,
		Action:              event,
		ResourceID:          a.ScopeID,
		Granted:             a.Polarity == Allow,
		Reason:              event,
		MatchedAssignmentID: a.ID,
		ActorID:             ac.ActorID,
		IPAddress:           ac.IPAddress,
		RequestID:           ac.RequestID,
		Metadata:            metadata,
		Timestamp:           s.now(),
	})
}
