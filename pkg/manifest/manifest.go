// Package manifest models Cargo.toml: the declared dependency set of a
// Rust package or workspace member.
//
// Dependencies are represented with a tagged [Kind] rather than scattered
// boolean flags so the reconciler's precedence rules stay exhaustive:
//
//   - [KindDirect]: a registry dependency with a version constraint
//   - [KindPathLocal]: resolved from a local filesystem path, never from a
//     registry
//   - [KindWorkspaceInherited]: declared as { workspace = true }; its
//     version lives in the workspace root and is never rewritten here
//
// Parsing recognizes plain version strings, inline attribute tables,
// block tables ([dependencies.name]), the [workspace.dependencies] table
// and [workspace] membership. A manifest that fails to parse is a fatal
// error: no mutation may happen after that point.
package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depsync/pkg/errors"
)

// FileName is the manifest file name Cargo uses.
const FileName = "Cargo.toml"

// Kind tags how a dependency is resolved.
type Kind int

const (
	// KindDirect is a registry dependency with a version constraint.
	KindDirect Kind = iota
	// KindPathLocal is resolved from a local path.
	KindPathLocal
	// KindWorkspaceInherited takes its version from the workspace root.
	KindWorkspaceInherited
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindPathLocal:
		return "path"
	case KindWorkspaceInherited:
		return "workspace"
	default:
		return "direct"
	}
}

// Dependency is one entry in the manifest's dependency tables.
type Dependency struct {
	Name       string   // as written in the manifest
	Constraint string   // version constraint, may carry an operator prefix
	Kind       Kind     // how the dependency resolves
	Path       string   // local path when Kind == KindPathLocal
	Dev        bool     // declared under [dev-dependencies]
	Features   []string // enabled feature names
	Publish    *bool    // publish passthrough for path dependencies
}

// Manifest is the parsed model of one Cargo.toml.
type Manifest struct {
	Path        string // manifest file location on disk
	PackageName string // [package].name, empty for a bare workspace root
	HasPackage  bool   // whether a [package] table exists
	IsWorkspace bool   // whether a [workspace] table exists

	Dependencies []Dependency // normal + dev entries, in table order

	WorkspaceDeps map[string]string // [workspace.dependencies] name -> constraint
	Members       []string          // [workspace].members paths
}

// Normalize collapses the two interchangeable crate-name separator
// conventions to one canonical form. Cargo treats "foo-bar" and "foo_bar"
// as the same crate; source code always uses the underscore form.
func Normalize(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeManifestMissing, err, "no %s at %s", FileName, filepath.Dir(path))
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// manifestFile mirrors the TOML structure of Cargo.toml. Dependency values
// are kept as any: a string is a plain version, a table carries attributes.
type manifestFile struct {
	Package *struct {
		Name    string `toml:"name"`
		Publish *bool  `toml:"publish"`
	} `toml:"package"`
	Workspace *struct {
		Members      []string       `toml:"members"`
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
	Dependencies    map[string]any `toml:"dependencies"`
	DevDependencies map[string]any `toml:"dev-dependencies"`
}

// Parse decodes manifest bytes into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	var file manifestFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", FileName)
	}

	m := &Manifest{
		HasPackage:    file.Package != nil,
		IsWorkspace:   file.Workspace != nil,
		WorkspaceDeps: map[string]string{},
	}
	if file.Package != nil {
		m.PackageName = file.Package.Name
	}
	if file.Workspace != nil {
		m.Members = file.Workspace.Members
		for name, raw := range file.Workspace.Dependencies {
			dep, err := decodeDependency(name, raw, false)
			if err != nil {
				return nil, err
			}
			m.WorkspaceDeps[Normalize(name)] = dep.Constraint
		}
	}

	for _, section := range []struct {
		deps map[string]any
		dev  bool
	}{
		{file.Dependencies, false},
		{file.DevDependencies, true},
	} {
		names := make([]string, 0, len(section.deps))
		for name := range section.deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dep, err := decodeDependency(name, section.deps[name], section.dev)
			if err != nil {
				return nil, err
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}

	return m, nil
}

// decodeDependency interprets one dependency table value. A bare string is
// a version constraint; a table may carry version, path, workspace,
// features and publish attributes.
func decodeDependency(name string, raw any, dev bool) (Dependency, error) {
	dep := Dependency{Name: name, Dev: dev}

	switch v := raw.(type) {
	case string:
		dep.Constraint = v
	case map[string]any:
		if ver, ok := v["version"].(string); ok {
			dep.Constraint = ver
		}
		if path, ok := v["path"].(string); ok {
			dep.Path = path
			dep.Kind = KindPathLocal
		}
		if ws, ok := v["workspace"].(bool); ok && ws {
			dep.Kind = KindWorkspaceInherited
		}
		if pub, ok := v["publish"].(bool); ok {
			dep.Publish = &pub
		}
		if feats, ok := v["features"].([]any); ok {
			for _, f := range feats {
				if s, ok := f.(string); ok {
					dep.Features = append(dep.Features, s)
				}
			}
		}
	default:
		return dep, errors.New(errors.ErrCodeInvalidManifest, "dependency %q has unsupported form", name)
	}

	return dep, nil
}

// Dependency returns the entry whose normalized name matches name.
func (m *Manifest) Dependency(name string) (*Dependency, bool) {
	norm := Normalize(name)
	for i := range m.Dependencies {
		if Normalize(m.Dependencies[i].Name) == norm {
			return &m.Dependencies[i], true
		}
	}
	return nil, false
}

// WorkspaceConstraint returns the [workspace.dependencies] constraint for
// the normalized name, if declared.
func (m *Manifest) WorkspaceConstraint(name string) (string, bool) {
	c, ok := m.WorkspaceDeps[Normalize(name)]
	return c, ok
}

// MemberNames returns the normalized package names of workspace members,
// derived from the final path segment of each members entry.
func (m *Manifest) MemberNames() []string {
	names := make([]string, 0, len(m.Members))
	for _, member := range m.Members {
		base := filepath.Base(strings.TrimSuffix(member, "/"))
		if base == "" || base == "*" || base == "." {
			continue
		}
		names = append(names, Normalize(base))
	}
	return names
}
