package reconcile

import (
	"strings"

	"golang.org/x/mod/semver"
)

// StripConstraintPrefix removes a leading comparison operator
// (^ ~ = >= <= > <) from a version constraint, leaving the bare version
// for comparison against a freshly resolved release.
func StripConstraintPrefix(constraint string) string {
	v := strings.TrimSpace(constraint)
	switch {
	case strings.HasPrefix(v, ">="), strings.HasPrefix(v, "<="):
		v = v[2:]
	case strings.HasPrefix(v, "^"), strings.HasPrefix(v, "~"),
		strings.HasPrefix(v, "="), strings.HasPrefix(v, ">"),
		strings.HasPrefix(v, "<"):
		v = v[1:]
	}
	return strings.TrimSpace(v)
}

// needsUpdate reports whether latest is strictly newer than the declared
// constraint. Constraints that don't parse as versions (wildcards, multi
// requirements) are left alone.
func needsUpdate(constraint, latest string) bool {
	current := "v" + StripConstraintPrefix(constraint)
	next := "v" + strings.TrimSpace(latest)
	if !semver.IsValid(current) || !semver.IsValid(next) {
		return false
	}
	return semver.Compare(next, current) > 0
}
