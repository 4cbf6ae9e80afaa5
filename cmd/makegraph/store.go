package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/makegraph/internal/config"
	"github.com/efebarandurmaz/makegraph/internal/depgraph"
	"github.com/efebarandurmaz/makegraph/internal/graph"
	neo4jstore "github.com/efebarandurmaz/makegraph/internal/graph/neo4j"
)

var errNoStore = errors.New("no graph store configured (set --neo4j-uri or graph.uri)")

// openRepository connects to the configured graph store.
var openRepository = func(ctx context.Context, cfg *config.Config) (graph.Repository, error) {
	if cfg.Graph.URI == "" {
		return nil, errNoStore
	}
	return neo4jstore.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
}

// withRepository loads the configuration and runs fn against the store.
func withRepository(cmd *cobra.Command, configPath string, fn func(context.Context, *config.Config, graph.Repository) error) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close(context.Background())
	return fn(ctx, cfg, repo)
}

func newShowCmd(configPath *string, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project>",
		Short: "Render a graph previously stored in Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, *configPath, func(ctx context.Context, cfg *config.Config, repo graph.Repository) error {
				project := args[0]
				g, err := repo.LoadGraph(ctx, project)
				if err != nil {
					return err
				}
				if len(g.Targets()) == 0 {
					return fmt.Errorf("no stored graph for project %q", project)
				}
				if !validFormat(cfg.Output.Format) {
					return fmt.Errorf("unknown format %q (want one of %v)", cfg.Output.Format, config.Formats)
				}
				return render(stdout, depgraph.Analyze(g), project, cfg.Output.Format, false)
			})
		},
	}
	cmd.Flags().StringP("format", "f", config.Default().Output.Format, "Output format: dot, mermaid, both, summary or json")
	return cmd
}

func newDependentsCmd(configPath *string, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "dependents <target>",
		Short: "List stored targets that depend on or call a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, *configPath, func(ctx context.Context, cfg *config.Config, repo graph.Repository) error {
				if cfg.Graph.Project == "" {
					return errors.New("--project is required")
				}
				names, err := repo.QueryDependents(ctx, cfg.Graph.Project, args[0])
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(stdout, n)
				}
				return nil
			})
		},
	}
}
