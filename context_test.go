package policykit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestContextPrincipalID tests principal round-trips
func TestContextPrincipalID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetPrincipalID(ctx))

	ctx = WithPrincipalID(ctx, "user-1")
	assert.Equal(t, "user-1", GetPrincipalID(ctx))
}

// TestContextActorFallsBackToPrincipal tests actor resolution
func TestContextActorFallsBackToPrincipal(t *testing.T) {
	ctx := WithPrincipalID(context.Background(), "user-1")
	assert.Equal(t, "user-1", GetActorID(ctx))

	ctx = WithActorID(ctx, "admin-7")
	assert.Equal(t, "admin-7", GetActorID(ctx))
	assert.Equal(t, "user-1", GetPrincipalID(ctx))
}

// TestContextAuditValues tests IP and request id round-trips
func TestContextAuditValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithRequestID(ctx, "req-42")

	assert.Equal(t, "10.0.0.1", GetIPAddress(ctx))
	assert.Equal(t, "req-42", GetRequestID(ctx))
}

// TestContextAuditContext tests the aggregate helpers
func TestContextAuditContext(t *testing.T) {
	ctx := WithAuditContext(context.Background(), AuditContext{
		ActorID:   "admin-7",
		IPAddress: "10.0.0.1",
		RequestID: "req-42",
	})

	ac := GetAuditContext(ctx)
	assert.Equal(t, "admin-7", ac.ActorID)
	assert.Equal(t, "10.0.0.1", ac.IPAddress)
	assert.Equal(t, "req-42", ac.RequestID)

	// Empty fields must not clobber existing values
	ctx = WithAuditContext(ctx, AuditContext{RequestID: "req-43"})
	ac = GetAuditContext(ctx)
	assert.Equal(t, "admin-7", ac.ActorID)
	assert.Equal(t, "req-43", ac.RequestID)
}

// TestContextResolver tests resolver stashing
func TestContextResolver(t *testing.T) {
	assert.Nil(t, ResolverFromContext(context.Background()))

	r := NewResolver(NewPrincipalAssignments("user-1", nil, nil), false)
	ctx := WithResolver(context.Background(), r)
	assert.Same(t, r, ResolverFromContext(ctx))
}
