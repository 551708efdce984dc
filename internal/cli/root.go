package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization with
// values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the depsync CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// The root command itself runs the default action: scan, reconcile and
// write the manifest. Subcommands cover version refreshing (update),
// usage reporting (report), outdated auditing (audit) and cache
// management (cache).
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
func Execute(ctx context.Context) error {
	var verbose bool
	opts := &rootOpts{}
	so := &syncOpts{}

	root := &cobra.Command{
		Use:   "depsync",
		Short: "depsync reconciles Cargo.toml with the crates your source actually uses",
		Long: `depsync scans a Rust project's source for crate references, diffs them
against the dependencies declared in Cargo.toml, and adds, removes or
reclassifies entries so the manifest matches reality. New dependencies
get their latest stable version from crates.io; crates declared in the
workspace root are inherited instead of pinned.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, so)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("depsync %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&opts.path, "path", "C", "", "project root (default: current directory)")
	root.PersistentFlags().StringVarP(&opts.config, "config", "c", "", "config file (default: .depsync.toml in the project root)")
	root.PersistentFlags().BoolVar(&opts.refresh, "refresh", false, "bypass the registry response cache")
	root.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "disable the registry response cache")

	root.Flags().BoolVarP(&so.dryRun, "dry-run", "n", false, "preview changes without modifying Cargo.toml")

	root.AddCommand(newUpdateCmd(opts))
	root.AddCommand(newReportCmd(opts))
	root.AddCommand(newAuditCmd(opts))
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
