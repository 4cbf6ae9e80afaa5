package depgraph

import "strings"

// Cycle is a path that closes back on a node still on the DFS stack.
// Nodes holds each member once; a self-loop has a single node.
type Cycle struct {
	Nodes []string `json:"nodes"`
}

// Len returns the number of nodes in the cycle.
func (c Cycle) Len() int { return len(c.Nodes) }

// Path returns the closed sequence, starting and ending at the same node.
func (c Cycle) Path() []string {
	if len(c.Nodes) == 0 {
		return nil
	}
	path := make([]string, 0, len(c.Nodes)+1)
	path = append(path, c.Nodes...)
	return append(path, c.Nodes[0])
}

func (c Cycle) String() string {
	return strings.Join(c.Path(), " -> ")
}

// Analysis is the result of running cycle detection over a graph.
type Analysis struct {
	Graph  *Graph  `json:"-"`
	Cycles []Cycle `json:"cycles"`
	Stats  Stats   `json:"stats"`
}

// Analyze runs cycle detection over the combined graph and computes stats.
func Analyze(g *Graph) *Analysis {
	return &Analysis{
		Graph:  g,
		Cycles: FindCycles(g),
		Stats:  g.Stats(),
	}
}

// FindCycles reports every cycle reachable by depth-first search over the
// combined dependency and recursive-call graph.
func FindCycles(g *Graph) []Cycle {
	order, adj := g.Adjacency()
	return FindCyclesIn(order, adj)
}

// FindCyclesIn runs the search over a raw adjacency map, starting walks in
// the given root order.
//
// A cycle is recorded each time an edge reaches a node on the current
// recursion stack, as the stack slice from that node to the top. Reports are
// first-closure, not minimal, and the same cycle may be reported again from
// another entry point. Nodes finished by an earlier walk are not re-entered.
func FindCyclesIn(order []string, adj map[string][]string) []Cycle {
	var cycles []Cycle
	visited := make(map[string]bool)
	onStack := make(map[string]int) // node -> index in stack
	stack := make([]string, 0)

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		onStack[node] = len(stack)
		stack = append(stack, node)

		for _, next := range adj[node] {
			if idx, ok := onStack[next]; ok {
				nodes := make([]string, len(stack)-idx)
				copy(nodes, stack[idx:])
				cycles = append(cycles, Cycle{Nodes: nodes})
				continue
			}
			if visited[next] {
				continue
			}
			dfs(next)
		}

		stack = stack[:len(stack)-1]
		delete(onStack, node)
	}

	for _, n := range order {
		if !visited[n] {
			dfs(n)
		}
	}
	return cycles
}
