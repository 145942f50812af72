package policykit

import (
	"strings"
)

// ActionMatcher handles action matching with wildcard support.
//
// Supported patterns:
//   - "*" matches all actions
//   - "resource.*" matches all operations on a resource (e.g., "files.*" matches "files.read")
//   - "*.operation" matches an operation on all resources (e.g., "*.read" matches "files.read")
//   - "exact.match" matches exactly
type ActionMatcher struct{}

// NewActionMatcher creates a new ActionMatcher.
func NewActionMatcher() *ActionMatcher {
	return &ActionMatcher{}
}

// Match checks if an action pattern matches a required action.
//
// Examples:
//
//	Match("*", "files.read")           // true - wildcard matches all
//	Match("files.*", "files.read")     // true - resource wildcard
//	Match("*.read", "files.read")      // true - operation wildcard
//	Match("files.read", "files.read")  // true - exact match
//	Match("files.read", "files.write") // false - no match
func (am *ActionMatcher) Match(pattern, action string) bool {
	// Exact match
	if pattern == action {
		return true
	}

	// Universal wildcard
	if pattern == Wildcard {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	actionParts := strings.Split(action, ".")

	// Must have same number of parts (or pattern is just "*")
	if len(patternParts) != len(actionParts) {
		return false
	}

	for i, pp := range patternParts {
		if pp == Wildcard {
			continue
		}
		if pp != actionParts[i] {
			return false
		}
	}

	return true
}

// MatchAny checks if any of the patterns match the required action.
func (am *ActionMatcher) MatchAny(patterns []string, action string) bool {
	for _, pattern := range patterns {
		if am.Match(pattern, action) {
			return true
		}
	}
	return false
}

// Validate checks if an action string is well-formed: "*" or a dot-separated
// sequence of identifiers, where any segment may be "*".
func (am *ActionMatcher) Validate(action string) error {
	if action == "" {
		return NewError(ErrInvalidInput, "action cannot be empty")
	}

	if action == Wildcard {
		return nil
	}

	for _, part := range strings.Split(action, ".") {
		if part == "" {
			return NewError(ErrInvalidInput, "action segments cannot be empty").WithAction(action)
		}
		if part == Wildcard {
			continue
		}
		for _, c := range part {
			if !isValidActionChar(c) {
				return NewError(ErrInvalidInput, "action contains invalid character").WithAction(action)
			}
		}
	}

	return nil
}

func isValidActionChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}

// DefaultMatcher is the default action matcher instance.
var DefaultMatcher = NewActionMatcher()

// MatchAction is a convenience function using the default matcher.
func MatchAction(pattern, action string) bool {
	return DefaultMatcher.Match(pattern, action)
}

// actionSet is a role's granted actions compiled for O(1) checks: exact
// names go into a lookup table, "*" collapses into a flag, and only
// dot-segment patterns fall back to the matcher.
type actionSet struct {
	wildcard bool
	exact    map[string]struct{}
	patterns []string
}

func newActionSet(actions []string) *actionSet {
	set := &actionSet{exact: make(map[string]struct{}, len(actions))}
	for _, a := range actions {
		switch {
		case a == Wildcard:
			set.wildcard = true
		case strings.Contains(a, Wildcard):
			set.patterns = append(set.patterns, a)
		default:
			set.exact[a] = struct{}{}
		}
	}
	return set
}

// list returns the patterns the set was built from.
func (s *actionSet) list() []string {
	out := make([]string, 0, len(s.exact)+len(s.patterns)+1)
	if s.wildcard {
		out = append(out, Wildcard)
	}
	for a := range s.exact {
		out = append(out, a)
	}
	out = append(out, s.patterns...)
	return out
}

func (s *actionSet) grants(action string) bool {
	if s.wildcard {
		return true
	}
	if _, ok := s.exact[action]; ok {
		return true
	}
	return DefaultMatcher.MatchAny(s.patterns, action)
}
