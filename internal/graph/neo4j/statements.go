package neo4j

import (
	"strings"

	"github.com/efebarandurmaz/makegraph/internal/depgraph"
)

// Statement is one parameterised Cypher query of a store transaction.
type Statement struct {
	Name   string
	Query  string
	Params map[string]any
}

// Every node is keyed by (project, name). Nodes only referenced as a
// dependency or call destination are stored with defined=false.
const (
	clearProjectQuery = `MATCH (t:Target {project: $project}) DETACH DELETE t`

	storeTargetsQuery = `UNWIND $targets AS t
MERGE (n:Target {project: $project, name: t.name})
SET n.defined = true, n.phony = t.phony, n.ordinal = t.ordinal, n.recipe = t.recipe`

	storeDependenciesQuery = `UNWIND $edges AS e
MATCH (a:Target {project: $project, name: e.from})
MERGE (b:Target {project: $project, name: e.to})
ON CREATE SET b.defined = false, b.phony = false
CREATE (a)-[:DEPENDS_ON {position: e.position}]->(b)`

	storeCallsQuery = `UNWIND $calls AS c
MERGE (a:Target {project: $project, name: c.from})
ON CREATE SET a.defined = false, a.phony = false
MERGE (b:Target {project: $project, name: c.to})
ON CREATE SET b.defined = false, b.phony = false
CREATE (a)-[:CALLS {position: c.position, dir: c.dir, target: c.target, kind: c.kind}]->(b)`

	storeProjectQuery = `MERGE (p:Project {name: $project})
SET p.targets = $stats.targets, p.dependencies = $stats.dependencies,
    p.phony_targets = $stats.phony_targets, p.recursive_calls = $stats.recursive_calls,
    p.dangling_nodes = $stats.dangling_nodes, p.cycles = $cycles, p.phony = $phony,
    p.analysed_at = datetime()`

	loadTargetsQuery = `MATCH (t:Target {project: $project})
WHERE t.defined
RETURN t.name AS name, t.phony AS phony, t.recipe AS recipe
ORDER BY t.ordinal`

	loadPhonyQuery = `MATCH (p:Project {name: $project}) RETURN p.phony AS phony`

	loadDependenciesQuery = `MATCH (a:Target {project: $project})-[r:DEPENDS_ON]->(b:Target)
RETURN a.name AS from, b.name AS to
ORDER BY a.ordinal, r.position`

	loadCallsQuery = `MATCH (a:Target {project: $project})-[r:CALLS]->(:Target)
RETURN a.name AS from, r.dir AS dir, r.target AS target
ORDER BY a.ordinal, r.position`

	dependentsQuery = `MATCH (a:Target {project: $project})-[:DEPENDS_ON|CALLS]->(:Target {project: $project, name: $name})
RETURN DISTINCT a.name AS name
ORDER BY name`
)

// BuildStatements returns the queries that replace a project's stored graph
// with the given analysis, in execution order.
func BuildStatements(project string, a *depgraph.Analysis) []Statement {
	g := a.Graph

	targets := make([]any, 0, len(g.Targets()))
	var edges []any
	for i, t := range g.Targets() {
		recipe := t.Recipe
		if recipe == nil {
			recipe = []string{}
		}
		targets = append(targets, map[string]any{
			"name":    t.Name,
			"phony":   g.IsPhony(t.Name),
			"ordinal": i,
			"recipe":  recipe,
		})
		for pos, d := range t.Dependencies {
			edges = append(edges, map[string]any{"from": t.Name, "to": d, "position": pos})
		}
	}

	var calls []any
	for i, c := range g.RecursiveCalls() {
		calls = append(calls, map[string]any{
			"from":     c.From,
			"to":       c.To,
			"dir":      c.Dir,
			"target":   callTarget(c),
			"kind":     string(c.Kind()),
			"position": i,
		})
	}

	cycles := make([]any, 0, len(a.Cycles))
	for _, c := range a.Cycles {
		cycles = append(cycles, c.String())
	}

	stmts := []Statement{
		{Name: "clear project", Query: clearProjectQuery, Params: map[string]any{"project": project}},
		{Name: "store targets", Query: storeTargetsQuery, Params: map[string]any{"project": project, "targets": targets}},
	}
	if len(edges) > 0 {
		stmts = append(stmts, Statement{Name: "store dependencies", Query: storeDependenciesQuery,
			Params: map[string]any{"project": project, "edges": edges}})
	}
	if len(calls) > 0 {
		stmts = append(stmts, Statement{Name: "store recursive calls", Query: storeCallsQuery,
			Params: map[string]any{"project": project, "calls": calls}})
	}
	stmts = append(stmts, Statement{Name: "store project", Query: storeProjectQuery, Params: map[string]any{
		"project": project,
		"cycles":  cycles,
		"phony":   g.PhonyTargets(),
		"stats": map[string]any{
			"targets":         a.Stats.Targets,
			"dependencies":    a.Stats.Dependencies,
			"phony_targets":   a.Stats.PhonyTargets,
			"recursive_calls": a.Stats.RecursiveCalls,
			"dangling_nodes":  a.Stats.DanglingNodes,
		},
	}})
	return stmts
}

// callTarget recovers the sub-goal from a call's destination.
func callTarget(c depgraph.RecursiveCall) string {
	if c.Dir == "" {
		return c.To
	}
	return strings.TrimPrefix(c.To, strings.TrimSuffix(c.Dir, "/")+"/")
}

type targetRow struct {
	name   string
	phony  bool
	recipe []string
}

type edgeRow struct {
	from, to string
}

type callRow struct {
	from, dir, target string
}

type storedRows struct {
	phony   []string
	targets []targetRow
	deps    []edgeRow
	calls   []callRow
}

// graph rebuilds a depgraph.Graph from rows read back in stored order.
func (r storedRows) graph() *depgraph.Graph {
	g := depgraph.New()
	g.MarkPhony(r.phony...)
	for _, t := range r.targets {
		g.AddTarget(t.name)
		if len(t.recipe) > 0 {
			g.AddRecipe(t.name, t.recipe...)
		}
		if t.phony {
			g.MarkPhony(t.name)
		}
	}
	for _, e := range r.deps {
		g.AddTarget(e.from, e.to)
	}
	for _, c := range r.calls {
		g.AddRecursiveCall(c.from, c.dir, c.target)
	}
	return g
}
