package depgraph

import "regexp"

// DefaultSourcePattern matches dependencies that live under a source tree.
var DefaultSourcePattern = regexp.MustCompile(`^src`)

// PhonyOnly returns a copy of g restricted to phony targets. Dependency
// lists are pruned to phony names and only calls made by phony targets are
// kept. The phony set itself is carried over unchanged.
func PhonyOnly(g *Graph) *Graph {
	out := New()
	out.MarkPhony(g.PhonyTargets()...)

	for _, t := range g.Targets() {
		if !g.IsPhony(t.Name) {
			continue
		}
		var deps []string
		for _, d := range t.Dependencies {
			if g.IsPhony(d) {
				deps = append(deps, d)
			}
		}
		nt := out.AddTarget(t.Name, deps...)
		nt.Recipe = append(nt.Recipe, t.Recipe...)
	}
	for _, c := range g.RecursiveCalls() {
		if g.IsPhony(c.From) {
			out.addCall(c)
		}
	}
	return out
}

// ExcludeDependencies returns a copy of g without dependencies whose name
// matches re. Targets and recursive calls are kept as they are.
func ExcludeDependencies(g *Graph, re *regexp.Regexp) *Graph {
	if re == nil {
		re = DefaultSourcePattern
	}
	out := New()
	out.MarkPhony(g.PhonyTargets()...)

	for _, t := range g.Targets() {
		var deps []string
		for _, d := range t.Dependencies {
			if !re.MatchString(d) {
				deps = append(deps, d)
			}
		}
		nt := out.AddTarget(t.Name, deps...)
		nt.Recipe = append(nt.Recipe, t.Recipe...)
	}
	for _, c := range g.RecursiveCalls() {
		out.addCall(c)
	}
	return out
}

func (g *Graph) addCall(c RecursiveCall) {
	if _, ok := g.calls[c.From]; !ok {
		g.callOrder = append(g.callOrder, c.From)
	}
	g.calls[c.From] = append(g.calls[c.From], c)
}
