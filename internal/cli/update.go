package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depsync/pkg/reconcile"
)

// newUpdateCmd creates the update command: a version-refresh-only pass
// that bumps declared constraints to the latest published release without
// adding or removing anything.
func newUpdateCmd(opts *rootOpts) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh declared dependency versions to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, opts)
			if err != nil {
				return err
			}

			full, err := buildPlan(ctx, s, true)
			if err != nil {
				return err
			}

			// Refresh-only: keep the version bumps, drop everything else.
			plan := &reconcile.Plan{
				Updates:     full.Updates,
				Diagnostics: full.Diagnostics,
			}

			if out := renderPlan(plan); out != "" {
				fmt.Print(out)
			}
			if out := renderDiagnostics(plan.Diagnostics); out != "" {
				fmt.Print(out)
			}

			if plan.Empty() {
				fmt.Println(styleSuccess.Render("All dependencies are up to date"))
				return nil
			}
			if dryRun {
				fmt.Println(styleDim.Render("Dry run, no changes were made"))
				return nil
			}

			if err := writePlan(s, plan); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render(fmt.Sprintf("Updated %d dependencies", len(plan.Updates))))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "preview updates without modifying Cargo.toml")
	return cmd
}
