package oauth

import (
	"slices"
	"strings"
)

// DefaultScope is granted when a client asks for nothing.
const DefaultScope = "read"

var topScopes = []string{"read", "write", "follow", "push", "profile"}

// followScopes are the sub-scopes the legacy follow scope stands for.
var followScopes = []string{
	"read:blocks", "write:blocks", "read:follows", "write:follows", "read:mutes", "write:mutes",
}

// KnownScope reports whether s is a scope clients may request: a top-level
// scope or any sub-scope beneath one.
func KnownScope(s string) bool {
	if slices.Contains(topScopes, s) {
		return true
	}
	parent, child, ok := strings.Cut(s, ":")
	return ok && child != "" && slices.Contains(topScopes, parent)
}

// Satisfies reports whether a space separated list of granted scopes covers
// required. A granted parent scope covers all of its children.
func Satisfies(required, granted string) bool {
	parent := ""
	if i := strings.LastIndex(required, ":"); i > 0 {
		parent = required[:i]
	}
	for _, g := range strings.Fields(granted) {
		if g == required || g == parent {
			return true
		}
		if g == "follow" && slices.Contains(followScopes, required) {
			return true
		}
	}
	return false
}

// SatisfiesAll reports whether every scope in requested is covered by granted.
func SatisfiesAll(requested, granted string) bool {
	for _, r := range strings.Fields(requested) {
		if !Satisfies(r, granted) {
			return false
		}
	}
	return true
}

// NormalizeScopes returns the scopes deduplicated and joined by single
// spaces, or the unknown scopes when there are any.
func NormalizeScopes(scopes string) (string, []string) {
	var kept, unknown []string
	for _, s := range strings.Fields(strings.ReplaceAll(scopes, "+", " ")) {
		if !KnownScope(s) {
			unknown = append(unknown, s)
			continue
		}
		if !slices.Contains(kept, s) {
			kept = append(kept, s)
		}
	}
	if len(unknown) > 0 {
		return "", unknown
	}
	if len(kept) == 0 {
		return DefaultScope, nil
	}
	return strings.Join(kept, " "), nil
}
