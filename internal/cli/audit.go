package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depsync/pkg/errors"
	"github.com/matzehuels/depsync/pkg/manifest"
	"github.com/matzehuels/depsync/pkg/reconcile"
)

// newAuditCmd creates the audit command: a read-only listing of declared
// dependencies whose constraint lags behind the latest published release.
func newAuditCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "List dependencies that lag behind their latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, opts)
			if err != nil {
				return err
			}

			fmt.Println(styleTitle.Render("Dependency Audit"))
			fmt.Println()

			outdated := 0
			for _, dep := range s.manifest.Dependencies {
				if dep.Kind != manifest.KindDirect {
					continue
				}
				latest, err := s.resolver.LatestVersion(ctx, dep.Name)
				if err != nil {
					fmt.Printf("  %s %s\n",
						styleWarning.Render("!"),
						fmt.Sprintf("%s: %s", dep.Name, errors.UserMessage(err)))
					continue
				}
				current := reconcile.StripConstraintPrefix(dep.Constraint)
				if current == latest {
					continue
				}
				outdated++
				line := fmt.Sprintf("%s %s -> %s", dep.Name, current, latest)
				if dep.Dev {
					line += " [dev]"
				}
				fmt.Printf("  %s %s\n", styleMove.Render("^"), line)
			}

			if outdated == 0 {
				fmt.Println(styleSuccess.Render("All dependencies are up to date"))
			} else {
				fmt.Println()
				fmt.Printf("%d outdated, run %s to bump them\n",
					outdated, styleValue.Render("depsync update"))
			}
			fmt.Println(styleDim.Render("For security advisories, use cargo audit"))
			return nil
		},
	}
}
