package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/makegraph/internal/depgraph"
	"github.com/efebarandurmaz/makegraph/internal/graph"
)

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j creates a Neo4j-backed repository. An empty database selects the
// server default.
func NewNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver, database: database}, nil
}

func (r *Neo4jRepository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// StoreGraph replaces the project's stored graph in a single transaction.
func (r *Neo4jRepository) StoreGraph(ctx context.Context, project string, a *depgraph.Analysis) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	stmts := BuildStatements(project, a)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			if _, err := tx.Run(ctx, s.Query, s.Params); err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store project %s: %w", project, err)
	}
	return nil
}

func (r *Neo4jRepository) LoadGraph(ctx context.Context, project string) (*depgraph.Graph, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"project": project}

		var rows storedRows
		records, err := tx.Run(ctx, loadPhonyQuery, params)
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			phony, _ := records.Record().Get("phony")
			rows.phony = asStrings(phony)
		}
		if err := records.Err(); err != nil {
			return nil, err
		}

		records, err = tx.Run(ctx, loadTargetsQuery, params)
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			name, _ := rec.Get("name")
			phony, _ := rec.Get("phony")
			recipe, _ := rec.Get("recipe")
			rows.targets = append(rows.targets, targetRow{
				name:   asString(name),
				phony:  phony == true,
				recipe: asStrings(recipe),
			})
		}
		if err := records.Err(); err != nil {
			return nil, err
		}

		records, err = tx.Run(ctx, loadDependenciesQuery, params)
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			from, _ := rec.Get("from")
			to, _ := rec.Get("to")
			rows.deps = append(rows.deps, edgeRow{from: asString(from), to: asString(to)})
		}
		if err := records.Err(); err != nil {
			return nil, err
		}

		records, err = tx.Run(ctx, loadCallsQuery, params)
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			rec := records.Record()
			from, _ := rec.Get("from")
			dir, _ := rec.Get("dir")
			target, _ := rec.Get("target")
			rows.calls = append(rows.calls, callRow{from: asString(from), dir: asString(dir), target: asString(target)})
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		return rows.graph(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", project, err)
	}
	return result.(*depgraph.Graph), nil
}

func (r *Neo4jRepository) QueryDependents(ctx context.Context, project, target string) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, dependentsQuery,
			map[string]any{"project": project, "name": target})
		if err != nil {
			return nil, err
		}
		var names []string
		for records.Next(ctx) {
			n, _ := records.Record().Get("name")
			names = append(names, asString(n))
		}
		return names, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
