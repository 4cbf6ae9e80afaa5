package depgraph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportDOT generates a Graphviz DOT representation of the graph.
func ExportDOT(g *Graph, title string) string {
	var b strings.Builder
	b.WriteString("digraph MakefileCallGraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n\n")

	b.WriteString("  labelloc=\"t\";\n")
	b.WriteString(fmt.Sprintf("  label=\"Makefile Call Graph\\n%s\";\n\n", escapeDOT(title)))

	// Phony targets are drawn dashed; isolated targets need an explicit node.
	wroteNodes := false
	for _, t := range g.Targets() {
		switch {
		case g.IsPhony(t.Name):
			b.WriteString(fmt.Sprintf("  \"%s\" [style=\"rounded,dashed\"];\n", escapeDOT(t.Name)))
			wroteNodes = true
		case len(t.Dependencies) == 0 && len(g.CallsFrom(t.Name)) == 0:
			b.WriteString(fmt.Sprintf("  \"%s\";\n", escapeDOT(t.Name)))
			wroteNodes = true
		}
	}
	if wroteNodes {
		b.WriteString("\n")
	}

	for _, t := range g.Targets() {
		for _, dep := range t.Dependencies {
			b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", escapeDOT(t.Name), escapeDOT(dep)))
		}
	}

	for _, c := range g.RecursiveCalls() {
		b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
			escapeDOT(c.From), escapeDOT(c.To), dotEdgeAttrs(c.Kind())))
	}

	b.WriteString("}")
	return b.String()
}

// ExportMermaid generates a Mermaid flowchart of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR")

	var isolated, phony []string
	for _, t := range g.Targets() {
		if g.IsPhony(t.Name) {
			phony = append(phony, sanitizeMermaidID(t.Name))
		}
		if len(t.Dependencies) == 0 && len(g.CallsFrom(t.Name)) == 0 {
			isolated = append(isolated, mermaidNode(t.Name))
		}
	}

	for _, t := range g.Targets() {
		for _, dep := range t.Dependencies {
			b.WriteString(fmt.Sprintf("\n  %s %s %s", mermaidNode(t.Name), mermaidArrow(EdgeDependsOn), mermaidNode(dep)))
		}
	}

	for _, c := range g.RecursiveCalls() {
		b.WriteString(fmt.Sprintf("\n  %s %s %s", mermaidNode(c.From), mermaidArrow(c.Kind()), mermaidNode(c.To)))
	}

	for _, n := range isolated {
		b.WriteString("\n  " + n)
	}

	if len(phony) > 0 {
		b.WriteString("\n  classDef phony stroke-dasharray: 5 5")
		b.WriteString("\n  class " + strings.Join(phony, ",") + " phony")
	}

	return b.String()
}

type jsonGraph struct {
	Targets        []*Target       `json:"targets"`
	Phony          []string        `json:"phony"`
	RecursiveCalls []RecursiveCall `json:"recursive_calls"`
	Cycles         [][]string      `json:"cycles"`
	Stats          Stats           `json:"stats"`
}

// ExportJSON serializes an analysis to JSON.
func ExportJSON(a *Analysis) ([]byte, error) {
	doc := jsonGraph{
		Targets:        a.Graph.Targets(),
		Phony:          a.Graph.PhonyTargets(),
		RecursiveCalls: a.Graph.RecursiveCalls(),
		Cycles:         make([][]string, 0, len(a.Cycles)),
		Stats:          a.Stats,
	}
	if doc.RecursiveCalls == nil {
		doc.RecursiveCalls = []RecursiveCall{}
	}
	for _, c := range a.Cycles {
		doc.Cycles = append(doc.Cycles, c.Path())
	}
	return json.MarshalIndent(doc, "", "  ")
}

// sanitizeMermaidID replaces characters Mermaid does not accept in node ids.
func sanitizeMermaidID(s string) string {
	return strings.NewReplacer(".", "_", "/", "_").Replace(s)
}

func mermaidNode(name string) string {
	label := strings.ReplaceAll(name, `"`, "#quot;")
	return fmt.Sprintf("%s[\"%s\"]", sanitizeMermaidID(name), label)
}

func escapeDOT(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func dotEdgeAttrs(kind EdgeKind) string {
	switch kind {
	case EdgeCrossDirectory:
		return `style=dashed, color=blue, label="make -C"`
	case EdgeRecursive:
		return `color=green, label="recursive make"`
	default:
		return ""
	}
}

func mermaidArrow(kind EdgeKind) string {
	switch kind {
	case EdgeCrossDirectory:
		return `-.->|"make -C"|`
	case EdgeRecursive:
		return `==>|"recursive"|`
	default:
		return "-->"
	}
}
