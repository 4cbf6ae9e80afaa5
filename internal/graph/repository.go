package graph

import (
	"context"

	"github.com/efebarandurmaz/makegraph/internal/depgraph"
)

// Repository provides graph storage for analysed Makefiles.
type Repository interface {
	// StoreGraph persists the targets, dependencies and recursive calls of
	// one analysis under a project name, replacing what was stored before.
	StoreGraph(ctx context.Context, project string, a *depgraph.Analysis) error
	// LoadGraph retrieves the stored graph for a project.
	LoadGraph(ctx context.Context, project string) (*depgraph.Graph, error)
	// QueryDependents returns the targets that depend on or call the given target.
	QueryDependents(ctx context.Context, project, target string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
