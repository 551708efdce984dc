package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/reconcile"
	"github.com/matzehuels/depsync/pkg/scan"
)

// syncOpts holds flags for the default reconcile action.
type syncOpts struct {
	dryRun bool
}

// runSync is the default action: scan the source tree, compute the
// reconciliation plan and write the updated manifest. In dry-run mode the
// identical pipeline runs but the write step is skipped entirely, so the
// manifest's bytes are guaranteed unchanged.
func runSync(ctx context.Context, opts *rootOpts, so *syncOpts) error {
	logger := loggerFromContext(ctx)

	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}

	// The default action is the full reconciliation: additions, removals,
	// section moves and version bumps for already-declared entries.
	plan, err := buildPlan(ctx, s, true)
	if err != nil {
		return err
	}

	if out := renderPlan(plan); out != "" {
		fmt.Print(out)
	}
	if out := renderDiagnostics(plan.Diagnostics); out != "" {
		fmt.Print(out)
	}

	if plan.Empty() {
		fmt.Println(styleSuccess.Render("Nothing to do, manifest is in sync"))
		return nil
	}

	if so.dryRun {
		fmt.Println(styleDim.Render("Dry run, no changes were made"))
		return nil
	}

	if err := writePlan(s, plan); err != nil {
		return err
	}

	logger.Infof("Updated %s", s.manifest.Path)
	fmt.Println(styleSuccess.Render("Manifest updated"))
	return nil
}

// buildPlan runs the scan/aggregate/reconcile pipeline for the session.
func buildPlan(ctx context.Context, s *session, updateExisting bool) (*reconcile.Plan, error) {
	prog := newProgress(s.logger)

	result, err := scan.Scan(ctx, s.root)
	if err != nil {
		return nil, err
	}
	for _, warn := range result.Warnings {
		s.logger.Warnf("%v", warn)
	}
	prog.done(fmt.Sprintf("Scanned %d source files", len(result.Files)))

	usages := scan.Aggregate(result.Files, s.cfg.SkipTests)
	s.logger.Debugf("detected %d distinct crates", len(usages))

	ws := s.workspace
	if ws == nil && s.manifest.IsWorkspace {
		// A workspace root with its own package inherits from itself.
		ws = s.manifest
	}

	return reconcile.Build(ctx, s.manifest, usages, reconcile.Options{
		Config:         s.cfg,
		Workspace:      ws,
		Resolver:       s.resolver,
		UpdateExisting: updateExisting,
	})
}

// writePlan projects the plan onto the manifest and atomically replaces
// the file on disk.
func writePlan(s *session, plan *reconcile.Plan) error {
	original, err := os.ReadFile(s.manifest.Path)
	if err != nil {
		return err
	}
	normal, dev := reconcile.Apply(s.manifest, plan)
	rendered := manifest.Render(original, normal, dev)
	return manifest.WriteAtomic(s.manifest.Path, rendered)
}
