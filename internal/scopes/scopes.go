package scopes

import "strings"

// Catalog scope identifiers.
const (
	ProfileRead  = "profile:read"
	EmailRead    = "email:read"
	ProfileWrite = "profile:write"
	LinksRead    = "links:read"
	LinksWrite   = "links:write"
)

// descriptions maps each grantable scope to the disclosure text shown on the
// consent screen. Adding a scope means adding a row here; there is no dynamic
// registration.
var descriptions = map[string]string{
	ProfileRead:  "View your basic profile information (name, bio, avatar).",
	EmailRead:    "View your email address.",
	ProfileWrite: "Update your profile information on your behalf.",
	LinksRead:    "View your links.",
	LinksWrite:   "Add or update your links.",
}

// ordered keeps consent screens and validation errors deterministic.
var ordered = []string{ProfileRead, EmailRead, ProfileWrite, LinksRead, LinksWrite}

// Valid reports whether id is a catalog member.
func Valid(id string) bool {
	_, ok := descriptions[id]
	return ok
}

// Describe returns the disclosure description for a scope, or "".
func Describe(id string) string {
	return descriptions[id]
}

// All returns every catalog scope id in stable order.
func All() []string {
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}

// Parse splits a space-delimited scope string into a deduplicated list,
// preserving first-seen order. Empty segments are dropped.
func Parse(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Join is the inverse of Parse.
func Join(ids []string) string {
	return strings.Join(ids, " ")
}

// Contains reports whether granted includes id.
func Contains(granted []string, id string) bool {
	for _, g := range granted {
		if g == id {
			return true
		}
	}
	return false
}

// CoveredBy reports whether every requested scope is present in granted.
func CoveredBy(requested, granted []string) bool {
	for _, r := range requested {
		if !Contains(granted, r) {
			return false
		}
	}
	return true
}
