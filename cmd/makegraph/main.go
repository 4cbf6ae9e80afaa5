package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/makegraph/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		watchMode  bool
	)
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:   "makegraph [flags] <Makefile>",
		Short: "Analyze Makefile targets, dependencies and recursive make calls",
		Long: `makegraph builds the call graph of a Makefile: declared dependencies,
recursive $(MAKE) invocations and circular dependencies. The rule database
comes from "make -pn" when make is available, otherwise from the Makefile text.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], watchMode, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file path (YAML)")
	pf.String("neo4j-uri", "", "Store the graph in Neo4j at this URI")
	pf.String("neo4j-user", defaults.Graph.Username, "Neo4j username")
	pf.String("neo4j-password", "", "Neo4j password")
	pf.String("neo4j-database", "", "Neo4j database (server default when empty)")
	pf.String("project", "", "Project name for stored graphs (default: the Makefile's directory name)")
	pf.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	pf.String("log-format", defaults.Log.Format, "Log format: text or json")

	f := rootCmd.Flags()
	f.StringP("format", "f", defaults.Output.Format, "Output format: dot, mermaid, both, summary or json")
	f.BoolP("phony-only", "p", false, "Only show PHONY targets")
	f.Bool("no-src", false, "Exclude dependencies matching --src-pattern")
	f.String("src-pattern", defaults.Output.SrcPattern, "Pattern of source dependencies dropped by --no-src")
	f.String("mode", defaults.Make.Mode, "Database source: auto, make or text")
	f.String("make", defaults.Make.Binary, "make executable")
	f.Duration("timeout", defaults.Make.Timeout, "Time limit for the make database dump")
	f.StringArray("make-arg", nil, "Extra argument passed to make (repeatable)")
	f.Bool("follow-includes", defaults.Make.FollowIncludes, "Follow include directives in text mode")
	f.Bool("stats", false, "Print an analysis report to stderr")
	f.Bool("stats-json", false, "Print the analysis report to stderr as JSON")
	f.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	f.BoolVar(&watchMode, "watch", false, "Re-run the analysis whenever the Makefile changes")

	rootCmd.AddCommand(newShowCmd(&configPath, stdout))
	rootCmd.AddCommand(newDependentsCmd(&configPath, stdout))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the makegraph version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "makegraph %s\n", version)
		},
	})

	return rootCmd
}
