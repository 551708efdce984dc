package scan

import (
	"regexp"
	"strings"

	"github.com/matzehuels/depsync/pkg/manifest"
)

// Origin tags where a reference was found.
type Origin int

const (
	// OriginLibrary marks references in library or binary code.
	OriginLibrary Origin = iota
	// OriginTest marks references in test code (tests/, *_test.rs,
	// benches/, examples/).
	OriginTest
	// OriginBuildScript marks references in build.rs.
	OriginBuildScript
)

// String returns the origin name used in reports.
func (o Origin) String() string {
	switch o {
	case OriginTest:
		return "test"
	case OriginBuildScript:
		return "build-script"
	default:
		return "library"
	}
}

// Reference is one detected crate usage site within a single file.
type Reference struct {
	RawName   string // as written at the reference site
	Name      string // normalized form used for all set membership
	Origin    Origin
	ViaImport bool // explicit use/extern statement vs. bare qualified path
}

var (
	// useRe captures the path expression of a use declaration, including
	// multi-line grouped forms, up to the terminating semicolon.
	useRe = regexp.MustCompile(`(?:^|\n)\s*(?:pub(?:\([^)]*\))?\s+)?use\s+([^;]+);`)

	// externRe matches extern crate declarations.
	externRe = regexp.MustCompile(`(?:^|\n)\s*(?:pub\s+)?extern\s+crate\s+([A-Za-z_][A-Za-z0-9_]*)`)

	// qualifiedRe matches the leading segment of a bare qualified path
	// (serde_json::to_string). Crate names are lower_snake, which keeps
	// type-associated paths like String::from out.
	qualifiedRe = regexp.MustCompile(`(^|[^A-Za-z0-9_:])([a-z_][a-z0-9_]*)::`)
)

// pathKeywords never denote an external crate.
var pathKeywords = map[string]bool{
	"self":  true,
	"super": true,
	"crate": true,
}

// Extract scans one source file's text and returns the crate references
// found in it, tagged with origin. It is a pure function of its inputs.
//
// Recognition runs in priority order: use declarations (grouped forms
// expanded), extern crate declarations, then bare qualified references,
// which are deduplicated against names already found by the first two
// rules. Comment and string spans are stripped before any matching.
//
// Known imprecision, accepted: a local module alias that shadows a real
// crate name (use local::foo as bar; bar::x()) can be misattributed to
// the external crate. The exclude list is the supported workaround.
func Extract(src string, origin Origin) []Reference {
	text := stripCommentsAndStrings(src)

	var refs []Reference
	seen := map[string]bool{}

	add := func(raw string, viaImport bool) {
		raw = strings.TrimPrefix(raw, "r#")
		if raw == "" || pathKeywords[raw] {
			return
		}
		norm := manifest.Normalize(raw)
		if seen[norm] {
			return
		}
		seen[norm] = true
		refs = append(refs, Reference{
			RawName:   raw,
			Name:      norm,
			Origin:    origin,
			ViaImport: viaImport,
		})
	}

	rest := text
	for _, idx := range useRe.FindAllStringSubmatchIndex(text, -1) {
		for _, root := range useRoots(text[idx[2]:idx[3]]) {
			add(root, true)
		}
		rest = blankSpan(rest, idx[0], idx[1])
	}

	for _, idx := range externRe.FindAllStringSubmatchIndex(text, -1) {
		add(text[idx[2]:idx[3]], true)
		rest = blankSpan(rest, idx[0], idx[1])
	}

	// Bare qualified references are matched on the remaining executable
	// code only; a nested group leaf like use a::{b::c} must not read as
	// a crate named b.
	for _, m := range qualifiedRe.FindAllStringSubmatch(rest, -1) {
		add(m[2], false)
	}

	return refs
}

// blankSpan replaces s[from:to] with spaces, preserving newlines.
func blankSpan(s string, from, to int) string {
	b := []byte(s)
	for i := from; i < to && i < len(b); i++ {
		if b[i] != '\n' {
			b[i] = ' '
		}
	}
	return string(b)
}

// useRoots returns the leading path segments of a use expression. Most
// expressions have one root (serde::{Serialize, Deserialize} -> serde);
// a top-level group (use {a::b, c::d}) has one per alternative. Nested
// groups below the root never change the leading segment, so they are
// not descended into.
func useRoots(expr string) []string {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "::")

	if strings.HasPrefix(expr, "{") {
		inner := strings.TrimPrefix(expr, "{")
		inner = strings.TrimSuffix(strings.TrimSpace(inner), "}")
		var roots []string
		for _, alt := range splitTopLevel(inner) {
			if root := leadingSegment(alt); root != "" {
				roots = append(roots, root)
			}
		}
		return roots
	}

	if root := leadingSegment(expr); root != "" {
		return []string{root}
	}
	return nil
}

// leadingSegment extracts the first path segment of a use alternative,
// cutting at ::, the start of a group, whitespace, or an as-rename.
func leadingSegment(expr string) string {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "::")
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == ':' || c == '{' || c == ' ' || c == '\t' || c == '\n' || c == ',' || c == '}' || c == '*' {
			expr = expr[:i]
			break
		}
	}
	return strings.TrimSpace(expr)
}

// splitTopLevel splits a group body on commas that sit outside nested
// braces, so "a::{b, c}, d" yields ["a::{b, c}", " d"].
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
