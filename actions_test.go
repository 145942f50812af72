package policykit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestActionMatcherMatch tests pattern matching
func TestActionMatcherMatch(t *testing.T) {
	am := NewActionMatcher()

	// Exact match
	assert.True(t, am.Match("files.read", "files.read"))
	assert.False(t, am.Match("files.read", "files.write"))

	// Universal wildcard
	assert.True(t, am.Match("*", "files.read"))
	assert.True(t, am.Match("*", "anything"))

	// Resource wildcard
	assert.True(t, am.Match("files.*", "files.read"))
	assert.True(t, am.Match("files.*", "files.write"))
	assert.False(t, am.Match("files.*", "docs.read"))

	// Operation wildcard
	assert.True(t, am.Match("*.read", "files.read"))
	assert.False(t, am.Match("*.read", "files.write"))

	// Segment counts must match
	assert.False(t, am.Match("files.*", "files.archive.restore"))
	assert.False(t, am.Match("files.read", "files"))
}

// TestActionMatcherMatchAny tests matching against multiple patterns
func TestActionMatcherMatchAny(t *testing.T) {
	am := NewActionMatcher()

	assert.True(t, am.MatchAny([]string{"docs.*", "files.read"}, "files.read"))
	assert.False(t, am.MatchAny([]string{"docs.*", "tasks.*"}, "files.read"))
	assert.False(t, am.MatchAny(nil, "files.read"))
}

// TestActionMatcherValidate tests action validation
func TestActionMatcherValidate(t *testing.T) {
	am := NewActionMatcher()

	assert.NoError(t, am.Validate("files.read"))
	assert.NoError(t, am.Validate("*"))
	assert.NoError(t, am.Validate("files.*"))
	assert.NoError(t, am.Validate("my-service.sub_op"))

	assert.Error(t, am.Validate(""))
	assert.Error(t, am.Validate("files..read"))
	assert.Error(t, am.Validate("files.re ad"))
	assert.Error(t, am.Validate("files.re/ad"))

	err := am.Validate("")
	assert.True(t, IsInvalidInput(err))
}

// TestActionSetGrants tests the compiled action set
func TestActionSetGrants(t *testing.T) {
	set := newActionSet([]string{"files.read", "docs.*"})

	assert.True(t, set.grants("files.read"))
	assert.True(t, set.grants("docs.write"))
	assert.False(t, set.grants("files.write"))
	assert.False(t, set.grants("tasks.read"))

	wild := newActionSet([]string{"*"})
	assert.True(t, wild.grants("anything.here"))

	empty := newActionSet(nil)
	assert.False(t, empty.grants("files.read"))
}

// TestActionSetList tests that the set reproduces its patterns
func TestActionSetList(t *testing.T) {
	set := newActionSet([]string{"files.read", "docs.*", "*"})
	assert.ElementsMatch(t, []string{"files.read", "docs.*", "*"}, set.list())
}
