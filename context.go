package policykit

import (
	"context"
)

// Context keys for policykit values.
type contextKey string

const (
	contextKeyPrincipalID contextKey = "policykit:principal_id"
	contextKeyActorID     contextKey = "policykit:actor_id"
	contextKeyIPAddress   contextKey = "policykit:ip_address"
	contextKeyRequestID   contextKey = "policykit:request_id"
	contextKeyResolver    contextKey = "policykit:resolver"
)

// WithPrincipalID adds a principal ID to the context.
// This is the identity being checked for permissions.
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, contextKeyPrincipalID, principalID)
}

// GetPrincipalID retrieves the principal ID from context.
// Returns empty string if not set.
func GetPrincipalID(ctx context.Context) string {
	if v := ctx.Value(contextKeyPrincipalID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithActorID adds an actor ID to the context.
// The actor is the identity performing a mutation (delegation provenance and
// audit). Often the same as the principal, but different for admin actions.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID, actorID)
}

// GetActorID retrieves the actor ID from context.
// Falls back to the principal ID if no actor is explicitly set.
func GetActorID(ctx context.Context) string {
	if v := ctx.Value(contextKeyActorID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return GetPrincipalID(ctx)
}

// WithIPAddress adds the client IP address to the context (for audit).
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress retrieves the IP address from context.
func GetIPAddress(ctx context.Context) string {
	if v := ctx.Value(contextKeyIPAddress); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context (for audit correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithResolver adds a Resolver to the context.
// Set by middleware so handlers can run further checks against the same
// snapshot without re-reading the ledger.
func WithResolver(ctx context.Context, r *Resolver) context.Context {
	return context.WithValue(ctx, contextKeyResolver, r)
}

// ResolverFromContext retrieves the Resolver from context.
// Returns nil if not set.
func ResolverFromContext(ctx context.Context) *Resolver {
	if v := ctx.Value(contextKeyResolver); v != nil {
		if r, ok := v.(*Resolver); ok {
			return r
		}
	}
	return nil
}

// AuditContext holds all audit-related information from context.
type AuditContext struct {
	ActorID   string
	IPAddress string
	RequestID string
}

// GetAuditContext extracts all audit information from context.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		ActorID:   GetActorID(ctx),
		IPAddress: GetIPAddress(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext adds all audit information to context at once.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.ActorID != "" {
		ctx = WithActorID(ctx, ac.ActorID)
	}
	if ac.IPAddress != "" {
		ctx = WithIPAddress(ctx, ac.IPAddress)
	}
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	return ctx
}
