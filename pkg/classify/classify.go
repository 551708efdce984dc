// Package classify maps detected crate names to how the reconciler should
// treat them.
//
// Every name passes through exactly one classification, decided with a
// fixed precedence: a standard-library name is filtered before anything
// else, a path-local crate can never be excluded into a registry lookup,
// and an excluded crate cannot still be pinned essential.
package classify

import (
	"github.com/matzehuels/depsync/pkg/manifest"
)

// Classification is the outcome of classifying one crate name.
type Classification int

const (
	// StdLibrary names ship with the toolchain and are filtered
	// unconditionally, independent of config.
	StdLibrary Classification = iota
	// PathLocal crates resolve from a local path or are workspace members;
	// they are never submitted to the registry.
	PathLocal
	// Excluded crates are dropped by user config before aggregation.
	Excluded
	// EssentialPinned crates are always retained in the manifest, even
	// with zero detected usage.
	EssentialPinned
	// Resolvable crates are eligible for version lookup, addition and
	// removal based on usage. This is the default.
	Resolvable
)

// String returns the classification name used in reports.
func (c Classification) String() string {
	switch c {
	case StdLibrary:
		return "standard library"
	case PathLocal:
		return "path-local"
	case Excluded:
		return "excluded by config"
	case EssentialPinned:
		return "essential"
	default:
		return "resolvable"
	}
}

// stdCrates is the closed set of toolchain-provided module names. Usage of
// these never maps to a registry dependency.
var stdCrates = map[string]bool{
	"std":         true,
	"core":        true,
	"alloc":       true,
	"test":        true,
	"proc_macro":  true,
	"libc":        true,
	"collections": true,
}

// essentialCrates is the built-in essential set: foundational crates that
// are never auto-removed regardless of detected usage. It is immutable
// policy, merged with the user's essential list at config load.
var essentialCrates = map[string]bool{
	"serde":       true,
	"tokio":       true,
	"anyhow":      true,
	"thiserror":   true,
	"async_trait": true,
	"futures":     true,
}

// IsStdCrate reports whether name (in either separator convention) is a
// toolchain module.
func IsStdCrate(name string) bool {
	return stdCrates[manifest.Normalize(name)]
}

// Classify determines how the named crate is treated. m is the member
// manifest under reconciliation; ws is the governing workspace root
// manifest, or nil outside a workspace.
//
// Precedence: StdLibrary > PathLocal > Excluded > EssentialPinned >
// Resolvable.
func Classify(name string, m *manifest.Manifest, ws *manifest.Manifest, cfg *Config) Classification {
	norm := manifest.Normalize(name)

	if stdCrates[norm] {
		return StdLibrary
	}
	if isPathLocal(norm, m, ws) {
		return PathLocal
	}
	if cfg != nil && cfg.IsExcluded(norm) {
		return Excluded
	}
	if cfg != nil && cfg.IsEssential(norm) {
		return EssentialPinned
	}
	if essentialCrates[norm] {
		return EssentialPinned
	}
	return Resolvable
}

func isPathLocal(norm string, m *manifest.Manifest, ws *manifest.Manifest) bool {
	if m != nil {
		if dep, ok := m.Dependency(norm); ok && dep.Kind == manifest.KindPathLocal {
			return true
		}
		for _, member := range m.MemberNames() {
			if member == norm {
				return true
			}
		}
	}
	if ws != nil {
		for _, member := range ws.MemberNames() {
			if member == norm {
				return true
			}
		}
	}
	return false
}
