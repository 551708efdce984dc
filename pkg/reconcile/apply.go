package reconcile

import (
	"github.com/matzehuels/depsync/pkg/manifest"
)

// Apply projects the plan onto the manifest's declared dependencies and
// returns the final normal and dev tables for the writer. The manifest
// itself is not mutated; persisting the result is the caller's job.
func Apply(m *manifest.Manifest, plan *Plan) (normal, dev []manifest.Dependency) {
	removed := map[string]bool{}
	for _, r := range plan.Removals {
		removed[manifest.Normalize(r.Name)] = true
	}
	moved := map[string]Section{}
	for _, mv := range plan.Moves {
		moved[manifest.Normalize(mv.Name)] = mv.To
	}
	updated := map[string]string{}
	for _, u := range plan.Updates {
		updated[manifest.Normalize(u.Name)] = u.To
	}

	for _, dep := range m.Dependencies {
		norm := manifest.Normalize(dep.Name)
		if removed[norm] {
			continue
		}
		if to, ok := updated[norm]; ok {
			dep.Constraint = to
		}
		target := SectionNormal
		if dep.Dev {
			target = SectionDev
		}
		if to, ok := moved[norm]; ok {
			target = to
		}
		dep.Dev = target == SectionDev
		if dep.Dev {
			dev = append(dev, dep)
		} else {
			normal = append(normal, dep)
		}
	}

	for _, add := range plan.Additions {
		dep := manifest.Dependency{
			Name:       add.Name,
			Constraint: add.Version,
			Dev:        add.Section == SectionDev,
		}
		if add.Workspace {
			dep.Kind = manifest.KindWorkspaceInherited
			dep.Constraint = ""
		}
		if dep.Dev {
			dev = append(dev, dep)
		} else {
			normal = append(normal, dep)
		}
	}

	return normal, dev
}
