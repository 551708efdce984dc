package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depsync/pkg/errors"
	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/reconcile"
	"github.com/matzehuels/depsync/pkg/scan"
)

// newReportCmd creates the report command: a per-dependency usage report
// covering declared version, latest release and where in the tree the
// crate is referenced.
func newReportCmd(opts *rootOpts) *cobra.Command {
	var maxFiles int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show dependency usage across the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, opts)
			if err != nil {
				return err
			}

			result, err := scan.Scan(ctx, s.root)
			if err != nil {
				return err
			}
			for _, warn := range result.Warnings {
				s.logger.Warnf("%v", warn)
			}
			usages := scan.Aggregate(result.Files, s.cfg.SkipTests)

			fmt.Println(styleTitle.Render("Dependency Usage Report"))
			fmt.Println()

			for _, dep := range s.manifest.Dependencies {
				printDependency(cmd, s, dep, usages, maxFiles)
			}
			if len(s.manifest.Dependencies) == 0 {
				fmt.Println(styleDim.Render("No dependencies declared"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxFiles, "max-files", 5, "usage locations shown per dependency (0 for all)")
	return cmd
}

func printDependency(cmd *cobra.Command, s *session, dep manifest.Dependency, usages map[string]*scan.Usage, maxFiles int) {
	name := styleValue.Render(dep.Name)
	if dep.Dev {
		name += styleDim.Render(" [dev]")
	}
	fmt.Println(name)

	switch dep.Kind {
	case manifest.KindPathLocal:
		fmt.Printf("  %s\n", styleDim.Render(fmt.Sprintf("path dependency (%s), registry not consulted", dep.Path)))
	case manifest.KindWorkspaceInherited:
		fmt.Printf("  %s\n", styleDim.Render("inherited from workspace"))
	default:
		fmt.Printf("  version: %s\n", styleValue.Render(dep.Constraint))
		latest, err := s.resolver.LatestVersion(cmd.Context(), dep.Name)
		switch {
		case errors.Is(err, errors.ErrCodeCrateNotFound):
			fmt.Printf("  %s\n", styleWarning.Render("not found on crates.io"))
		case err != nil:
			fmt.Printf("  %s\n", styleWarning.Render(fmt.Sprintf("latest version check failed: %s", errors.UserMessage(err))))
		case reconcile.StripConstraintPrefix(dep.Constraint) == latest:
			fmt.Printf("  %s\n", styleSuccess.Render("up to date"))
		default:
			fmt.Printf("  latest: %s\n", styleMove.Render(latest))
		}
	}

	usage, used := usages[manifest.Normalize(dep.Name)]
	if !used {
		fmt.Printf("  %s\n", styleWarning.Render("no usage detected in the project"))
		fmt.Println()
		return
	}

	fmt.Printf("  used in %d file(s)\n", usage.FileCount)
	files := usage.Files
	if maxFiles > 0 && len(files) > maxFiles {
		files = files[:maxFiles]
	}
	for _, f := range files {
		fmt.Printf("    %s\n", styleDim.Render(f))
	}
	if trimmed := usage.FileCount - len(files); trimmed > 0 {
		fmt.Printf("    %s\n", styleDim.Render(fmt.Sprintf("... and %d more", trimmed)))
	}
	fmt.Println()
}
