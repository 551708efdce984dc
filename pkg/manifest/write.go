package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/matzehuels/depsync/pkg/errors"
)

// Render produces new manifest content with the [dependencies] and
// [dev-dependencies] tables updated to the given entries.
//
// Declared entries keep their original source text verbatim, in their
// original order and form (inline or block table), so attributes the model
// does not carry (git sources, default-features, registry overrides)
// survive every rewrite. Only added entries get synthesized text; version
// updates are edited into the preserved text in place. No TOML library in
// use round-trips comments and formatting, so the surgery is line-based.
//
// Render is pure: dry-run mode renders and diffs without ever writing.
func Render(original []byte, normal, dev []Dependency) []byte {
	lines := strings.Split(string(original), "\n")
	spans := dependencySpans(lines)
	normalSrc, devSrc := collectEntries(lines, spans)

	// Whether a plain [dependencies] / [dev-dependencies] header existed,
	// as opposed to only block-table forms.
	plainNormal, plainDev := false, false
	for _, s := range spans {
		if s.name == "" {
			if s.dev {
				plainDev = true
			} else {
				plainNormal = true
			}
		}
	}

	// Rebuild the file without the dependency spans, remembering where the
	// first normal and dev spans sat so the rewritten tables land in place.
	normalAt, devAt := -1, -1
	var out []string

	for i := 0; i < len(lines); {
		matched := false
		for _, s := range spans {
			if s.start == i {
				if s.dev {
					if devAt < 0 {
						devAt = len(out)
					}
				} else if normalAt < 0 {
					normalAt = len(out)
				}
				i = s.end
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, lines[i])
			i++
		}
	}

	if normalAt < 0 {
		normalAt = len(out)
	}
	if devAt < 0 {
		devAt = len(out)
	}

	normalBlock := renderSection("dependencies", normal, normalSrc, devSrc, plainNormal)
	devBlock := renderSection("dev-dependencies", dev, devSrc, normalSrc, plainDev)

	// Insert the later span first so the earlier index stays valid.
	if devAt >= normalAt {
		out = insertLines(out, devAt, devBlock)
		out = insertLines(out, normalAt, normalBlock)
	} else {
		out = insertLines(out, normalAt, normalBlock)
		out = insertLines(out, devAt, devBlock)
	}

	return []byte(strings.Join(out, "\n"))
}

// WriteAtomic replaces the file at path with data using a
// write-new-then-rename sequence, so a crash mid-write cannot leave a
// half-written manifest behind.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "write %s", tmpName)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "chmod %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, err, "replace %s", path)
	}
	return nil
}

// span is one dependency table region of the original file: either a plain
// [dependencies]/[dev-dependencies] table or a block table
// ([dependencies.name]), whose name is then non-empty.
type span struct {
	start, end int // line span [start, end)
	dev        bool
	name       string
}

func dependencySpans(lines []string) []span {
	var spans []span
	for i := 0; i < len(lines); {
		dev, name, ok := dependencyHeader(lines[i])
		if !ok {
			i++
			continue
		}
		j := i + 1
		for j < len(lines) && !isTableHeader(lines[j]) {
			j++
		}
		spans = append(spans, span{start: i, end: j, dev: dev, name: name})
		i = j
	}
	return spans
}

// dependencyHeader reports whether line opens a dependency table, which
// section it belongs to, and the entry name for block-table forms.
func dependencyHeader(line string) (dev bool, name string, ok bool) {
	t := strings.TrimSpace(line)
	switch {
	case t == "[dev-dependencies]":
		return true, "", true
	case t == "[dependencies]":
		return false, "", true
	case strings.HasPrefix(t, "[dev-dependencies.") && strings.HasSuffix(t, "]"):
		return true, strings.Trim(t[len("[dev-dependencies."):len(t)-1], `"`), true
	case strings.HasPrefix(t, "[dependencies.") && strings.HasSuffix(t, "]"):
		return false, strings.Trim(t[len("[dependencies."):len(t)-1], `"`), true
	}
	return false, "", false
}

func isTableHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "[")
}

// sourceEntry is one declared dependency's original source text.
type sourceEntry struct {
	lines []string
	block bool // declared as [dependencies.name] rather than inline
	order int  // position among all entries, for stable re-emission
}

// entryStartRe matches the first line of an inline dependency entry.
var entryStartRe = regexp.MustCompile(`^\s*(?:"([^"]+)"|([A-Za-z0-9_\-]+))\s*=`)

// collectEntries indexes each declared dependency's source text by
// normalized name, split by section.
func collectEntries(lines []string, spans []span) (normal, dev map[string]*sourceEntry) {
	normal = map[string]*sourceEntry{}
	dev = map[string]*sourceEntry{}
	order := 0

	put := func(name string, isDev, block bool, text []string) {
		m := normal
		if isDev {
			m = dev
		}
		m[Normalize(name)] = &sourceEntry{lines: text, block: block, order: order}
		order++
	}

	for _, s := range spans {
		if s.name != "" {
			put(s.name, s.dev, true, trimBlank(lines[s.start:s.end]))
			continue
		}
		for i := s.start + 1; i < s.end; {
			name, n := entryAt(lines, i, s.end)
			if n == 0 {
				i++
				continue
			}
			put(name, s.dev, false, lines[i:i+n])
			i += n
		}
	}
	return normal, dev
}

// entryAt returns the name and line count of the inline entry starting at
// lines[i], or 0 if the line does not start one. Entries may span lines
// through multi-line arrays; the entry ends when brackets balance out.
func entryAt(lines []string, i, end int) (string, int) {
	m := entryStartRe.FindStringSubmatch(lines[i])
	if m == nil {
		return "", 0
	}
	name := m[1]
	if name == "" {
		name = m[2]
	}
	depth := 0
	for j := i; j < end; j++ {
		depth += bracketDelta(lines[j])
		if depth <= 0 {
			return name, j - i + 1
		}
	}
	return name, end - i
}

// bracketDelta counts unclosed brackets and braces on one line, ignoring
// string literals and comments.
func bracketDelta(line string) int {
	depth := 0
	inStr := false
	for k := 0; k < len(line); k++ {
		c := line[k]
		switch {
		case inStr:
			if c == '\\' {
				k++
			} else if c == '"' {
				inStr = false
			}
		case c == '"':
			inStr = true
		case c == '#':
			return depth
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		}
	}
	return depth
}

func trimBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// renderSection assembles one dependency section. Entries that existed in
// the original keep their source text (same-section first, then the other
// section for moves) in original order; entries the plan added are
// synthesized and appended in name order. Block tables stay block tables
// and are emitted after the plain table. An empty plain table is kept only
// if the manifest declared it before, so untouched manifests stay stable.
func renderSection(header string, deps []Dependency, sameSection, otherSection map[string]*sourceEntry, plainExisted bool) []string {
	if len(deps) == 0 && !plainExisted {
		return nil
	}

	type kept struct {
		order int
		lines []string
	}
	var inline, blocks []kept
	var added []Dependency

	for _, dep := range deps {
		norm := Normalize(dep.Name)
		src, moved := sameSection[norm], false
		if src == nil {
			if src = otherSection[norm]; src != nil {
				moved = true
			}
		}
		if src == nil {
			added = append(added, dep)
			continue
		}

		text := append([]string(nil), src.lines...)
		if dep.Kind == KindDirect && dep.Constraint != "" && !containsQuoted(text, dep.Constraint) {
			text = replaceVersion(text, dep.Constraint)
		}
		if src.block {
			if moved {
				text[0] = fmt.Sprintf("[%s.%s]", header, dep.Name)
			}
			blocks = append(blocks, kept{order: src.order, lines: text})
		} else {
			inline = append(inline, kept{order: src.order, lines: text})
		}
	}

	sort.Slice(inline, func(i, j int) bool { return inline[i].order < inline[j].order })
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].order < blocks[j].order })
	sort.Slice(added, func(i, j int) bool { return added[i].Name < added[j].Name })

	var block []string
	if plainExisted || len(inline)+len(added) > 0 {
		block = append(block, fmt.Sprintf("[%s]", header))
		for _, k := range inline {
			block = append(block, k.lines...)
		}
		for _, dep := range added {
			block = append(block, renderDependency(dep))
		}
		block = append(block, "")
	}
	for _, k := range blocks {
		block = append(block, k.lines...)
		block = append(block, "")
	}
	return block
}

func containsQuoted(lines []string, value string) bool {
	return strings.Contains(strings.Join(lines, "\n"), `"`+value+`"`)
}

var (
	versionKeyRe = regexp.MustCompile(`(version\s*=\s*)"[^"]*"`)
	plainDepRe   = regexp.MustCompile(`^(\s*(?:"[^"]+"|[A-Za-z0-9_\-]+)\s*=\s*)"[^"]*"(\s*(?:#.*)?)$`)
)

// replaceVersion edits a new version constraint into preserved entry text,
// touching only the version value so every other attribute survives. An
// entry with no version (git or workspace forms) is left alone.
func replaceVersion(lines []string, constraint string) []string {
	out := append([]string(nil), lines...)
	for i, line := range out {
		if versionKeyRe.MatchString(line) {
			out[i] = versionKeyRe.ReplaceAllString(line, `${1}"`+constraint+`"`)
			return out
		}
	}
	if len(out) > 0 {
		if m := plainDepRe.FindStringSubmatch(out[0]); m != nil {
			out[0] = m[1] + `"` + constraint + `"` + m[2]
		}
	}
	return out
}

// renderDependency renders one added entry in inline form.
func renderDependency(dep Dependency) string {
	switch dep.Kind {
	case KindWorkspaceInherited:
		if len(dep.Features) > 0 {
			return fmt.Sprintf("%s = { workspace = true, features = %s }", dep.Name, renderFeatures(dep.Features))
		}
		return fmt.Sprintf("%s = { workspace = true }", dep.Name)

	case KindPathLocal:
		attrs := []string{fmt.Sprintf("path = %q", dep.Path)}
		if dep.Constraint != "" {
			attrs = append(attrs, fmt.Sprintf("version = %q", dep.Constraint))
		}
		if dep.Publish != nil {
			attrs = append(attrs, fmt.Sprintf("publish = %v", *dep.Publish))
		}
		return fmt.Sprintf("%s = { %s }", dep.Name, strings.Join(attrs, ", "))

	default:
		if len(dep.Features) > 0 {
			return fmt.Sprintf("%s = { version = %q, features = %s }", dep.Name, dep.Constraint, renderFeatures(dep.Features))
		}
		return fmt.Sprintf("%s = %q", dep.Name, dep.Constraint)
	}
}

func renderFeatures(features []string) string {
	quoted := make([]string, len(features))
	for i, f := range features {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// insertLines splices block into lines at index.
func insertLines(lines []string, index int, block []string) []string {
	if len(block) == 0 {
		return lines
	}
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:index]...)
	out = append(out, block...)
	return append(out, lines[index:]...)
}
