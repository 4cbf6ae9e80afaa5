package depgraph

import (
	"fmt"
	"io"
	"strings"
)

// Rule is the section separator used by the text report.
var Rule = strings.Repeat("=", 80)

var subRule = strings.Repeat("-", 80)

// SummaryOptions controls the header of the text report.
type SummaryOptions struct {
	Makefile  string
	PhonyOnly bool
}

// WriteSummary writes the human-readable analysis report.
func WriteSummary(w io.Writer, a *Analysis, opts SummaryOptions) error {
	var b strings.Builder
	g := a.Graph

	b.WriteString(Rule + "\n")
	b.WriteString("MAKEFILE CALL GRAPH ANALYSIS\n")
	b.WriteString(Rule + "\n\n")

	b.WriteString(fmt.Sprintf("Makefile: %s\n", opts.Makefile))
	b.WriteString(fmt.Sprintf("Total targets: %d\n", a.Stats.Targets))
	b.WriteString(fmt.Sprintf("Phony targets: %d\n", a.Stats.PhonyTargets))
	if opts.PhonyOnly {
		b.WriteString("(Showing PHONY targets only)\n")
	}
	b.WriteString("\n")

	b.WriteString("TARGETS AND DEPENDENCIES:\n")
	b.WriteString(subRule + "\n")
	for _, t := range g.SortedTargets() {
		b.WriteString(FormatTarget(g, t) + "\n")
	}
	b.WriteString("\n")

	if calls := g.RecursiveCalls(); len(calls) > 0 {
		b.WriteString("RECURSIVE MAKE CALLS:\n")
		b.WriteString(subRule + "\n")
		for _, c := range sortCallsBySource(calls) {
			b.WriteString(fmt.Sprintf("%s -> %s\n", c.From, c.To))
		}
		b.WriteString("\n")
	}

	if len(a.Cycles) > 0 {
		b.WriteString("⚠️  CIRCULAR DEPENDENCIES DETECTED:\n")
		b.WriteString(subRule + "\n")
		for i, c := range a.Cycles {
			b.WriteString(fmt.Sprintf("Cycle %d: %s\n", i+1, c.String()))
		}
	} else {
		b.WriteString("✓ No circular dependencies detected\n")
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatTarget renders one listing line: "name [PHONY]: deps".
func FormatTarget(g *Graph, t *Target) string {
	marker := ""
	if g.IsPhony(t.Name) {
		marker = " [PHONY]"
	}
	if len(t.Dependencies) == 0 {
		return fmt.Sprintf("%s%s: (no dependencies)", t.Name, marker)
	}
	return fmt.Sprintf("%s%s: %s", t.Name, marker, strings.Join(t.Dependencies, " "))
}

// WriteSection writes a titled block, used for the DOT and Mermaid output.
func WriteSection(w io.Writer, title, body string) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n\n", Rule, title, Rule, body)
	return err
}

// sortCallsBySource orders calls by source name, keeping per-source order.
func sortCallsBySource(calls []RecursiveCall) []RecursiveCall {
	bySource := make(map[string][]RecursiveCall)
	sources := make(map[string]struct{})
	for _, c := range calls {
		bySource[c.From] = append(bySource[c.From], c)
		sources[c.From] = struct{}{}
	}
	var out []RecursiveCall
	for _, s := range sortedKeys(sources) {
		out = append(out, bySource[s]...)
	}
	return out
}
