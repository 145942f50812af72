package policykit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func timePtr(t time.Time) *time.Time { return &t }

// TestAssignmentActiveAt tests validity evaluation at check time
func TestAssignmentActiveAt(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	// Unbounded assignment is always active
	a := RoleAssignment{}
	assert.True(t, a.ActiveAt(now))

	// Not yet valid
	a = RoleAssignment{ValidFrom: timePtr(now.Add(time.Hour))}
	assert.False(t, a.ActiveAt(now))
	assert.True(t, a.ActiveAt(now.Add(2*time.Hour)))

	// Expired; valid_until is exclusive
	a = RoleAssignment{ValidUntil: timePtr(now)}
	assert.False(t, a.ActiveAt(now))
	assert.True(t, a.ActiveAt(now.Add(-time.Minute)))

	// Window start is inclusive
	a = RoleAssignment{ValidFrom: timePtr(now)}
	assert.True(t, a.ActiveAt(now))

	// Revoked beats everything
	a = RoleAssignment{RevokedAt: timePtr(now.Add(-time.Hour))}
	assert.False(t, a.ActiveAt(now))

	// Schedule applies on top of the window
	a = RoleAssignment{Schedule: ScheduleBusinessHours}
	assert.True(t, a.ActiveAt(now))                       // Wednesday noon
	assert.False(t, a.ActiveAt(now.Add(10*time.Hour)))    // 22:00
	assert.False(t, a.ActiveAt(now.AddDate(0, 0, 3)))     // Saturday
}

// TestAssignmentHelpers tests the small predicates
func TestAssignmentHelpers(t *testing.T) {
	a := RoleAssignment{}
	assert.True(t, a.IsGlobal())
	assert.False(t, a.Revoked())

	a.ScopeID = "doc-1"
	assert.False(t, a.IsGlobal())

	now := time.Now()
	a.RevokedAt = &now
	assert.True(t, a.Revoked())
}

// TestPrincipalAssignmentsScopeIDs tests distinct scope extraction
func TestPrincipalAssignmentsScopeIDs(t *testing.T) {
	snap := NewPrincipalAssignments("user-1", []RoleAssignment{
		{ID: "a1", RoleID: "r1", ScopeID: "doc-1"},
		{ID: "a2", RoleID: "r2", ScopeID: "doc-1"},
		{ID: "a3", RoleID: "r1", ScopeID: "org-1"},
		{ID: "a4", RoleID: "r1", ScopeID: ""},
	}, nil)

	assert.ElementsMatch(t, []string{"doc-1", "org-1"}, snap.ScopeIDs())
}

// TestPrincipalAssignmentsGrants tests grant lookup through interned sets
func TestPrincipalAssignmentsGrants(t *testing.T) {
	snap := NewPrincipalAssignments("user-1", []RoleAssignment{
		{ID: "a1", RoleID: "r1"},
		{ID: "a2", RoleID: "missing"},
	}, map[string][]string{"r1": {"files.read"}})

	assert.True(t, snap.grants(0, "files.read"))
	assert.False(t, snap.grants(0, "files.write"))
	// A role with no catalog entry grants nothing
	assert.False(t, snap.grants(1, "files.read"))
}
