// Package reconcile computes the delta between a manifest's declared
// dependencies and the crate usage detected in source.
//
// The plan is computed fully in memory before anything touches the
// filesystem: additions (with resolved versions or workspace
// inheritance), removals, section moves and version updates. Registry
// lookups run with bounded concurrency and are idempotent, so a
// cancelled run simply omits unresolved names; it never leaves the model
// partially mutated.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depsync/pkg/classify"
	"github.com/matzehuels/depsync/pkg/errors"
	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/scan"
)

// Resolver resolves the latest published version of a crate. The
// reconciler calls it once per name slated for addition or update, never
// for path-local or workspace-inherited crates.
type Resolver interface {
	LatestVersion(ctx context.Context, name string) (string, error)
}

// Section identifies a manifest dependency table.
type Section int

const (
	// SectionNormal is [dependencies].
	SectionNormal Section = iota
	// SectionDev is [dev-dependencies].
	SectionDev
)

// String returns the table header name.
func (s Section) String() string {
	if s == SectionDev {
		return "dev-dependencies"
	}
	return "dependencies"
}

// Addition is one crate to add to the manifest.
type Addition struct {
	Name      string // spelling used in the manifest entry
	Version   string // resolved version; empty when Workspace is true
	Section   Section
	Workspace bool // inherit from [workspace.dependencies] instead of pinning
}

// Removal is one declared dependency with no detected usage.
type Removal struct {
	Name string
	Dev  bool
}

// Move reclassifies a dependency between sections.
type Move struct {
	Name string
	From Section
	To   Section
}

// Update bumps a declared version constraint to the latest release.
type Update struct {
	Name string
	From string // current constraint as declared
	To   string // resolved latest version
}

// Diagnostic is a recoverable per-name condition surfaced at end of run.
type Diagnostic struct {
	Name   string
	Reason string
}

// Plan is the computed reconciliation delta.
type Plan struct {
	Additions   []Addition
	Removals    []Removal
	Moves       []Move
	Updates     []Update
	Diagnostics []Diagnostic
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Additions) == 0 && len(p.Removals) == 0 && len(p.Moves) == 0 && len(p.Updates) == 0
}

// defaultConcurrency bounds parallel registry lookups so a large plan
// doesn't trip crates.io rate limits.
const defaultConcurrency = 8

// Options configures plan computation.
type Options struct {
	// Config is the classification policy. Nil means defaults.
	Config *classify.Config
	// Workspace is the governing workspace root manifest, nil outside a
	// workspace.
	Workspace *manifest.Manifest
	// Resolver performs version lookups. Required when additions or
	// updates are possible.
	Resolver Resolver
	// UpdateExisting also checks declared dependencies for version bumps.
	UpdateExisting bool
	// Concurrency bounds parallel lookups; zero means the default.
	Concurrency int
}

// Build computes the reconciliation plan for manifest m given aggregated
// source usage. Lookup failures for individual names are recorded as
// diagnostics and the name is omitted from the plan for this run.
func Build(ctx context.Context, m *manifest.Manifest, usages map[string]*scan.Usage, opts Options) (*Plan, error) {
	if m.IsWorkspace && !m.HasPackage {
		// A bare workspace root has no source of its own to reconcile.
		return &Plan{Diagnostics: []Diagnostic{{
			Reason: "workspace root without a package, nothing to reconcile",
		}}}, nil
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = &classify.Config{}
	}

	plan := &Plan{}

	pending := additions(plan, m, usages, cfg, opts.Workspace)
	removals(plan, m, usages, cfg, opts.Workspace)
	moves(plan, m, usages, cfg)

	if err := resolveVersions(ctx, plan, pending, m, cfg, opts); err != nil {
		return nil, err
	}

	sortPlan(plan)
	return plan, nil
}

// additions fills plan with unresolved additions and returns the names
// that still need a version lookup.
func additions(plan *Plan, m *manifest.Manifest, usages map[string]*scan.Usage, cfg *classify.Config, ws *manifest.Manifest) []Addition {
	var pending []Addition

	names := make([]string, 0, len(usages))
	for name := range usages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		usage := usages[name]
		if _, declared := m.Dependency(name); declared {
			continue
		}

		switch classify.Classify(name, m, ws, cfg) {
		case classify.StdLibrary:
			continue
		case classify.PathLocal:
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Name:   name,
				Reason: "path-local crate referenced but not declared; declare it with a path entry",
			})
			continue
		case classify.Excluded:
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Name:   name,
				Reason: "excluded by config",
			})
			continue
		}

		add := Addition{Name: usage.RawName, Section: targetSection(usage, name, cfg)}
		if ws != nil {
			if _, ok := ws.WorkspaceConstraint(name); ok {
				// The workspace already pins a compatible version; the
				// member inherits instead of pinning its own.
				add.Workspace = true
			}
		}
		pending = append(pending, add)
	}

	// Config-declared essentials not yet present must still be added,
	// unless a higher-precedence classification claims the name first
	// (an exclude entry beats an essential one for the same crate).
	for _, name := range cfg.Essential {
		norm := manifest.Normalize(name)
		if _, declared := m.Dependency(norm); declared {
			continue
		}
		if _, used := usages[norm]; used {
			continue // already queued above
		}
		switch classify.Classify(norm, m, ws, cfg) {
		case classify.StdLibrary, classify.PathLocal, classify.Excluded:
			continue
		}
		add := Addition{Name: name, Section: SectionNormal}
		if ws != nil {
			if _, ok := ws.WorkspaceConstraint(norm); ok {
				add.Workspace = true
			}
		}
		pending = append(pending, add)
	}

	return pending
}

func removals(plan *Plan, m *manifest.Manifest, usages map[string]*scan.Usage, cfg *classify.Config, ws *manifest.Manifest) {
	for _, dep := range m.Dependencies {
		norm := manifest.Normalize(dep.Name)
		if _, used := usages[norm]; used {
			continue
		}
		switch classify.Classify(norm, m, ws, cfg) {
		case classify.Resolvable:
			plan.Removals = append(plan.Removals, Removal{Name: dep.Name, Dev: dep.Dev})
		case classify.EssentialPinned:
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Name:   dep.Name,
				Reason: "unused but essential, kept",
			})
		}
	}
}

func moves(plan *Plan, m *manifest.Manifest, usages map[string]*scan.Usage, cfg *classify.Config) {
	for _, dep := range m.Dependencies {
		norm := manifest.Normalize(dep.Name)
		usage, used := usages[norm]
		if !used {
			continue
		}
		switch {
		case !dep.Dev && cfg.IsDevOnly(norm):
			plan.Moves = append(plan.Moves, Move{Name: dep.Name, From: SectionNormal, To: SectionDev})
		case !dep.Dev && usage.Origins.TestOnly():
			plan.Moves = append(plan.Moves, Move{Name: dep.Name, From: SectionNormal, To: SectionDev})
		case dep.Dev && usage.Origins.Has(scan.OriginLibrary) && !cfg.IsDevOnly(norm):
			plan.Moves = append(plan.Moves, Move{Name: dep.Name, From: SectionDev, To: SectionNormal})
		}
	}
}

// targetSection picks the manifest table for a new dependency: dev when
// the usage is test-only or the config forces it, normal otherwise.
func targetSection(usage *scan.Usage, norm string, cfg *classify.Config) Section {
	if cfg.IsDevOnly(norm) {
		return SectionDev
	}
	if usage.Origins.TestOnly() {
		return SectionDev
	}
	return SectionNormal
}

// resolveVersions looks up versions for pending additions and, when
// requested, update candidates among the declared dependencies. Lookups
// run concurrently with a bounded limit; each name is resolved once.
func resolveVersions(ctx context.Context, plan *Plan, pending []Addition, m *manifest.Manifest, cfg *classify.Config, opts Options) error {
	type lookup struct {
		name string // registry spelling
	}

	removed := map[string]bool{}
	for _, r := range plan.Removals {
		removed[manifest.Normalize(r.Name)] = true
	}

	var lookups []lookup
	for _, add := range pending {
		if !add.Workspace {
			lookups = append(lookups, lookup{name: add.Name})
		}
	}

	var updates []manifest.Dependency
	if opts.UpdateExisting {
		for _, dep := range m.Dependencies {
			norm := manifest.Normalize(dep.Name)
			if dep.Kind != manifest.KindDirect || removed[norm] {
				continue
			}
			if classify.Classify(norm, m, opts.Workspace, cfg) == classify.Excluded {
				continue
			}
			updates = append(updates, dep)
			lookups = append(lookups, lookup{name: dep.Name})
		}
	}

	if len(lookups) == 0 {
		plan.Additions = append(plan.Additions, pending...)
		return nil
	}
	if opts.Resolver == nil {
		return errors.New(errors.ErrCodeInternal, "version resolution required but no resolver configured")
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	var mu sync.Mutex
	resolved := map[string]string{}
	failures := map[string]string{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	seen := map[string]bool{}
	for _, l := range lookups {
		norm := manifest.Normalize(l.name)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		l := l
		g.Go(func() error {
			version, err := opts.Resolver.LatestVersion(gctx, l.name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[norm] = err.Error()
				return nil // recoverable: warn and omit this name
			}
			resolved[norm] = version
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, add := range pending {
		if add.Workspace {
			plan.Additions = append(plan.Additions, add)
			continue
		}
		norm := manifest.Normalize(add.Name)
		if reason, failed := failures[norm]; failed {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Name:   add.Name,
				Reason: fmt.Sprintf("version lookup failed, skipped this run: %s", reason),
			})
			continue
		}
		add.Version = resolved[norm]
		plan.Additions = append(plan.Additions, add)
	}

	for _, dep := range updates {
		norm := manifest.Normalize(dep.Name)
		latest, ok := resolved[norm]
		if !ok {
			if reason, failed := failures[norm]; failed {
				plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
					Name:   dep.Name,
					Reason: fmt.Sprintf("version lookup failed, skipped this run: %s", reason),
				})
			}
			continue
		}
		if needsUpdate(dep.Constraint, latest) {
			plan.Updates = append(plan.Updates, Update{Name: dep.Name, From: dep.Constraint, To: latest})
		}
	}

	return nil
}

func sortPlan(plan *Plan) {
	sort.Slice(plan.Additions, func(i, j int) bool { return plan.Additions[i].Name < plan.Additions[j].Name })
	sort.Slice(plan.Removals, func(i, j int) bool { return plan.Removals[i].Name < plan.Removals[j].Name })
	sort.Slice(plan.Moves, func(i, j int) bool { return plan.Moves[i].Name < plan.Moves[j].Name })
	sort.Slice(plan.Updates, func(i, j int) bool { return plan.Updates[i].Name < plan.Updates[j].Name })
}
