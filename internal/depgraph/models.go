package depgraph

import (
	"sort"
	"strings"
)

// Target is a build goal or file named in a Makefile.
type Target struct {
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies"`
	Recipe       []string `json:"recipe,omitempty"`

	seen map[string]struct{}
}

// RecursiveCall records that a target's recipe re-invokes make.
type RecursiveCall struct {
	From string `json:"from"`
	To   string `json:"to"`
	Dir  string `json:"dir,omitempty"` // -C argument, empty when absent
}

// CrossDirectory reports whether the call leaves the current directory.
func (c RecursiveCall) CrossDirectory() bool {
	return strings.Contains(c.To, "/")
}

// EdgeKind classifies relationships in the combined graph
type EdgeKind string

const (
	EdgeDependsOn      EdgeKind = "depends_on"      // declared prerequisite
	EdgeRecursive      EdgeKind = "recursive"       // $(MAKE) target
	EdgeCrossDirectory EdgeKind = "cross_directory" // $(MAKE) -C dir target
)

// Kind returns the edge kind renderers use for styling.
func (c RecursiveCall) Kind() EdgeKind {
	if c.CrossDirectory() {
		return EdgeCrossDirectory
	}
	return EdgeRecursive
}

// Graph holds the targets, recursive calls and phony set of one Makefile.
// It is mutated while parsing and treated as read-only afterwards.
type Graph struct {
	targets   map[string]*Target
	order     []string
	calls     map[string][]RecursiveCall
	callOrder []string
	phony     map[string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		targets: make(map[string]*Target),
		calls:   make(map[string][]RecursiveCall),
		phony:   make(map[string]struct{}),
	}
}

// AddTarget inserts a target or merges deps into an existing one.
// Duplicates are dropped; first-seen order is kept.
func (g *Graph) AddTarget(name string, deps ...string) *Target {
	t, ok := g.targets[name]
	if !ok {
		t = &Target{Name: name, Dependencies: []string{}, seen: make(map[string]struct{})}
		g.targets[name] = t
		g.order = append(g.order, name)
	}
	for _, d := range deps {
		if d == "" {
			continue
		}
		if _, dup := t.seen[d]; dup {
			continue
		}
		t.seen[d] = struct{}{}
		t.Dependencies = append(t.Dependencies, d)
	}
	return t
}

// AddRecipe appends recipe text to a target, creating it if needed.
func (g *Graph) AddRecipe(name string, lines ...string) {
	t := g.AddTarget(name)
	t.Recipe = append(t.Recipe, lines...)
}

// AddRecursiveCall records a $(MAKE) invocation from one target to another.
func (g *Graph) AddRecursiveCall(from, dir, target string) RecursiveCall {
	to := target
	if dir != "" {
		to = strings.TrimSuffix(dir, "/") + "/" + target
	}
	c := RecursiveCall{From: from, To: to, Dir: dir}
	g.addCall(c)
	return c
}

// MarkPhony adds names to the phony set.
func (g *Graph) MarkPhony(names ...string) {
	for _, n := range names {
		g.phony[n] = struct{}{}
	}
}

// IsPhony reports whether name was declared .PHONY.
func (g *Graph) IsPhony(name string) bool {
	_, ok := g.phony[name]
	return ok
}

// PhonyTargets returns the phony set sorted by name.
func (g *Graph) PhonyTargets() []string {
	return sortedKeys(g.phony)
}

// Target looks up a target by name.
func (g *Graph) Target(name string) (*Target, bool) {
	t, ok := g.targets[name]
	return t, ok
}

// Targets returns targets in first-seen order.
func (g *Graph) Targets() []*Target {
	out := make([]*Target, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.targets[name])
	}
	return out
}

// SortedTargets returns targets ordered by name.
func (g *Graph) SortedTargets() []*Target {
	out := g.Targets()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecursiveCalls returns every call, grouped by source in first-seen order.
func (g *Graph) RecursiveCalls() []RecursiveCall {
	var out []RecursiveCall
	for _, from := range g.callOrder {
		out = append(out, g.calls[from]...)
	}
	return out
}

// CallsFrom returns the recursive calls made by one target.
func (g *Graph) CallsFrom(name string) []RecursiveCall {
	return g.calls[name]
}

// Adjacency returns the combined graph: declared dependencies followed by
// recursive-call destinations, deduplicated per source. Sources are ordered
// targets first, then call-only sources.
func (g *Graph) Adjacency() ([]string, map[string][]string) {
	adj := make(map[string][]string, len(g.order)+len(g.callOrder))
	var order []string

	add := func(from string, to []string) {
		if _, ok := adj[from]; !ok {
			order = append(order, from)
			adj[from] = []string{}
		}
		for _, dst := range to {
			if !contains(adj[from], dst) {
				adj[from] = append(adj[from], dst)
			}
		}
	}

	for _, name := range g.order {
		add(name, g.targets[name].Dependencies)
	}
	for _, from := range g.callOrder {
		dsts := make([]string, 0, len(g.calls[from]))
		for _, c := range g.calls[from] {
			dsts = append(dsts, c.To)
		}
		add(from, dsts)
	}
	return order, adj
}

// Stats holds counts about the graph
type Stats struct {
	Targets        int `json:"targets"`
	Dependencies   int `json:"dependencies"`
	PhonyTargets   int `json:"phony_targets"`
	RecursiveCalls int `json:"recursive_calls"`
	DanglingNodes  int `json:"dangling_nodes"` // referenced but never defined
}

// Stats computes graph counts.
func (g *Graph) Stats() Stats {
	s := Stats{
		Targets:      len(g.order),
		PhonyTargets: len(g.phony),
	}
	dangling := make(map[string]struct{})
	for _, t := range g.targets {
		s.Dependencies += len(t.Dependencies)
		for _, d := range t.Dependencies {
			if _, ok := g.targets[d]; !ok {
				dangling[d] = struct{}{}
			}
		}
	}
	for _, calls := range g.calls {
		s.RecursiveCalls += len(calls)
		for _, c := range calls {
			if _, ok := g.targets[c.To]; !ok {
				dangling[c.To] = struct{}{}
			}
		}
	}
	s.DanglingNodes = len(dangling)
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
