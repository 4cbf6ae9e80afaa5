package depgraph

import (
	"bytes"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

// Graph model tests

func TestAddTarget_MergesAndDedups(t *testing.T) {
	g := New()
	g.AddTarget("all", "build", "test")
	g.AddTarget("all", "test", "lint", "build")
	g.AddTarget("all", "docs")

	tgt, ok := g.Target("all")
	if !ok {
		t.Fatal("expected target all")
	}
	want := []string{"build", "test", "lint", "docs"}
	if !reflect.DeepEqual(tgt.Dependencies, want) {
		t.Errorf("expected %v, got %v", want, tgt.Dependencies)
	}
	if len(g.Targets()) != 1 {
		t.Errorf("expected 1 target, got %d", len(g.Targets()))
	}
}

func TestAddTarget_KeepsFirstSeenOrder(t *testing.T) {
	g := New()
	g.AddTarget("z")
	g.AddTarget("a")
	g.AddTarget("m")
	g.AddTarget("a", "x")

	var names []string
	for _, tgt := range g.Targets() {
		names = append(names, tgt.Name)
	}
	if !reflect.DeepEqual(names, []string{"z", "a", "m"}) {
		t.Errorf("unexpected order %v", names)
	}

	names = nil
	for _, tgt := range g.SortedTargets() {
		names = append(names, tgt.Name)
	}
	if !reflect.DeepEqual(names, []string{"a", "m", "z"}) {
		t.Errorf("unexpected sorted order %v", names)
	}
}

func TestAddRecursiveCall(t *testing.T) {
	g := New()
	c := g.AddRecursiveCall("all", "lib", "build")
	if c.To != "lib/build" {
		t.Errorf("expected lib/build, got %s", c.To)
	}
	if !c.CrossDirectory() || c.Kind() != EdgeCrossDirectory {
		t.Error("expected cross-directory call")
	}

	c = g.AddRecursiveCall("all", "", "install")
	if c.To != "install" {
		t.Errorf("expected install, got %s", c.To)
	}
	if c.CrossDirectory() || c.Kind() != EdgeRecursive {
		t.Error("expected same-directory call")
	}

	if len(g.CallsFrom("all")) != 2 {
		t.Errorf("expected 2 calls from all, got %d", len(g.CallsFrom("all")))
	}
}

func TestAdjacency_MergesEdgeKinds(t *testing.T) {
	g := New()
	g.AddTarget("all", "build", "sub")
	g.AddRecursiveCall("all", "", "sub")
	g.AddRecursiveCall("all", "", "install")
	g.AddRecursiveCall("deploy", "ops", "push")

	order, adj := g.Adjacency()
	if !reflect.DeepEqual(order, []string{"all", "deploy"}) {
		t.Errorf("unexpected order %v", order)
	}
	if !reflect.DeepEqual(adj["all"], []string{"build", "sub", "install"}) {
		t.Errorf("unexpected adjacency %v", adj["all"])
	}
	if !reflect.DeepEqual(adj["deploy"], []string{"ops/push"}) {
		t.Errorf("unexpected adjacency %v", adj["deploy"])
	}
}

func TestStats(t *testing.T) {
	g := New()
	g.AddTarget("all", "build", "missing")
	g.AddTarget("build")
	g.AddRecursiveCall("all", "lib", "x")
	g.MarkPhony("all", "clean")

	s := g.Stats()
	if s.Targets != 2 {
		t.Errorf("expected 2 targets, got %d", s.Targets)
	}
	if s.Dependencies != 2 {
		t.Errorf("expected 2 dependencies, got %d", s.Dependencies)
	}
	if s.PhonyTargets != 2 {
		t.Errorf("expected 2 phony, got %d", s.PhonyTargets)
	}
	if s.RecursiveCalls != 1 {
		t.Errorf("expected 1 recursive call, got %d", s.RecursiveCalls)
	}
	if s.DanglingNodes != 2 {
		t.Errorf("expected 2 dangling nodes (missing, lib/x), got %d", s.DanglingNodes)
	}
}

// Cycle detection tests

func TestFindCycles_DAG(t *testing.T) {
	g := New()
	g.AddTarget("all", "build", "test")
	g.AddTarget("test", "build")
	g.AddTarget("build", "main.o")

	if cycles := FindCycles(g); len(cycles) != 0 {
		t.Errorf("expected no cycles, got %v", cycles)
	}
}

func TestFindCycles_SelfDependency(t *testing.T) {
	g := New()
	g.AddTarget("loop", "loop")

	cycles := FindCycles(g)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	if !reflect.DeepEqual(cycles[0].Nodes, []string{"loop"}) {
		t.Errorf("expected [loop], got %v", cycles[0].Nodes)
	}
	if cycles[0].String() != "loop -> loop" {
		t.Errorf("unexpected rendering %q", cycles[0].String())
	}
}

func TestFindCycles_SelfRecursiveCall(t *testing.T) {
	g := New()
	g.AddTarget("again")
	g.AddRecursiveCall("again", "", "again")

	cycles := FindCycles(g)
	if len(cycles) != 1 || cycles[0].Len() != 1 || cycles[0].Nodes[0] != "again" {
		t.Errorf("expected one-element cycle [again], got %v", cycles)
	}
}

func TestFindCycles_ThreeNodes(t *testing.T) {
	g := New()
	g.AddTarget("A", "B")
	g.AddTarget("B", "C")
	g.AddTarget("C", "A")

	cycles := FindCycles(g)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	path := cycles[0].Path()
	if path[0] != path[len(path)-1] {
		t.Errorf("cycle path should be closed, got %v", path)
	}
	for _, n := range []string{"A", "B", "C"} {
		found := false
		for _, p := range cycles[0].Nodes {
			if p == n {
				found = true
			}
		}
		if !found {
			t.Errorf("cycle %v missing %s", cycles[0].Nodes, n)
		}
	}
	if cycles[0].String() != "A -> B -> C -> A" {
		t.Errorf("unexpected rendering %q", cycles[0].String())
	}
}

func TestFindCycles_ThroughRecursiveCall(t *testing.T) {
	g := New()
	g.AddTarget("all", "sub/build")
	g.AddTarget("sub/build")
	g.AddRecursiveCall("sub/build", "", "all")

	cycles := FindCycles(g)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	if cycles[0].String() != "all -> sub/build -> all" {
		t.Errorf("unexpected cycle %q", cycles[0].String())
	}
}

func TestFindCycles_NotDeduplicated(t *testing.T) {
	// y closes twice: back to x and onto itself.
	order := []string{"x"}
	adj := map[string][]string{
		"x": {"y"},
		"y": {"x", "y"},
	}
	cycles := FindCyclesIn(order, adj)
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %v", cycles)
	}
	if cycles[0].String() != "x -> y -> x" {
		t.Errorf("unexpected first cycle %q", cycles[0].String())
	}
	if cycles[1].String() != "y -> y" {
		t.Errorf("unexpected second cycle %q", cycles[1].String())
	}
}

func TestFindCycles_SameCycleFromTwoEdges(t *testing.T) {
	// Both edges out of c close on a, so the same loop is reported twice.
	order := []string{"a"}
	adj := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a", "b"},
	}
	cycles := FindCyclesIn(order, adj)
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %v", cycles)
	}
	if cycles[0].String() != "a -> b -> c -> a" {
		t.Errorf("unexpected cycle %q", cycles[0].String())
	}
	if cycles[1].String() != "b -> c -> b" {
		t.Errorf("unexpected cycle %q", cycles[1].String())
	}
}

func TestFindCycles_DanglingLeaves(t *testing.T) {
	g := New()
	g.AddTarget("app", "main.o", "util.o")
	g.AddTarget("main.o", "main.c")

	if cycles := FindCycles(g); len(cycles) != 0 {
		t.Errorf("dangling leaves should not produce cycles, got %v", cycles)
	}
}

func TestAnalyze(t *testing.T) {
	g := New()
	g.AddTarget("a", "b")
	g.AddTarget("b", "a")
	g.MarkPhony("a")

	a := Analyze(g)
	if len(a.Cycles) != 1 {
		t.Errorf("expected 1 cycle, got %d", len(a.Cycles))
	}
	if a.Stats.Targets != 2 || a.Stats.PhonyTargets != 1 {
		t.Errorf("unexpected stats %+v", a.Stats)
	}
}

// Filter tests

func TestPhonyOnly(t *testing.T) {
	g := New()
	g.AddTarget("all", "build", "test", "main.o")
	g.AddTarget("test", "main.o")
	g.AddTarget("main.o", "main.c")
	g.AddRecursiveCall("all", "docs", "html")
	g.AddRecursiveCall("main.o", "", "gen")
	g.MarkPhony("all", "build", "test")

	f := PhonyOnly(g)
	if len(f.Targets()) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(f.Targets()))
	}
	all, _ := f.Target("all")
	if !reflect.DeepEqual(all.Dependencies, []string{"build", "test"}) {
		t.Errorf("unexpected deps %v", all.Dependencies)
	}
	if _, ok := f.Target("main.o"); ok {
		t.Error("file target should be filtered out")
	}
	calls := f.RecursiveCalls()
	if len(calls) != 1 || calls[0].To != "docs/html" {
		t.Errorf("unexpected calls %v", calls)
	}
	if len(f.PhonyTargets()) != 3 {
		t.Errorf("phony set should be preserved, got %v", f.PhonyTargets())
	}
	// original untouched
	orig, _ := g.Target("all")
	if len(orig.Dependencies) != 3 {
		t.Errorf("original graph mutated: %v", orig.Dependencies)
	}
}

func TestExcludeDependencies(t *testing.T) {
	g := New()
	g.AddTarget("app", "src/main.c", "lib.a", "srcgen.h", "include/src.h")
	g.AddRecursiveCall("app", "src", "all")

	f := ExcludeDependencies(g, nil)
	app, _ := f.Target("app")
	if !reflect.DeepEqual(app.Dependencies, []string{"lib.a", "include/src.h"}) {
		t.Errorf("unexpected deps %v", app.Dependencies)
	}
	if len(f.RecursiveCalls()) != 1 {
		t.Error("recursive calls should be kept")
	}

	f = ExcludeDependencies(g, regexp.MustCompile(`\.h$`))
	app, _ = f.Target("app")
	if !reflect.DeepEqual(app.Dependencies, []string{"src/main.c", "lib.a"}) {
		t.Errorf("unexpected deps %v", app.Dependencies)
	}
}

// Export tests

func sampleGraph() *Graph {
	g := New()
	g.AddTarget("all", "build", "test")
	g.AddTarget("build", "src/main.c")
	g.AddTarget("test", "build")
	g.AddTarget("clean")
	g.AddRecursiveCall("all", "lib", "install")
	g.AddRecursiveCall("test", "", "check")
	g.MarkPhony("all", "test", "clean")
	return g
}

func TestExportDOT(t *testing.T) {
	dot := ExportDOT(sampleGraph(), "path/Makefile")

	for _, want := range []string{
		"digraph MakefileCallGraph {",
		"rankdir=LR;",
		`label="Makefile Call Graph\npath/Makefile";`,
		`"all" [style="rounded,dashed"];`,
		`"clean" [style="rounded,dashed"];`,
		`"all" -> "build";`,
		`"build" -> "src/main.c";`,
		`"all" -> "lib/install" [style=dashed, color=blue, label="make -C"];`,
		`"test" -> "check" [color=green, label="recursive make"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(dot, "}") {
		t.Error("DOT output should end with closing brace")
	}
}

func TestExportDOT_EscapesQuotes(t *testing.T) {
	g := New()
	g.AddTarget(`we"ird`, "ok")
	dot := ExportDOT(g, "Makefile")
	if !strings.Contains(dot, `"we\"ird" -> "ok";`) {
		t.Errorf("expected escaped quote, got\n%s", dot)
	}
}

func TestExportMermaid(t *testing.T) {
	m := ExportMermaid(sampleGraph())

	if !strings.HasPrefix(m, "graph LR") {
		t.Error("expected graph LR header")
	}
	for _, want := range []string{
		`all["all"] --> build["build"]`,
		`build["build"] --> src_main_c["src/main.c"]`,
		`all["all"] -.->|"make -C"| lib_install["lib/install"]`,
		`test["test"] ==>|"recursive"| check["check"]`,
		`clean["clean"]`,
		"class all,test,clean phony",
	} {
		if !strings.Contains(m, want) {
			t.Errorf("Mermaid output missing %q\n%s", want, m)
		}
	}
}

func TestSanitizeMermaidID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"all", "all"},
		{"lib/build", "lib_build"},
		{"main.o", "main_o"},
		{"a/b.c/d", "a_b_c_d"},
	}
	for _, tt := range tests {
		if got := sanitizeMermaidID(tt.in); got != tt.want {
			t.Errorf("sanitizeMermaidID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExportJSON(t *testing.T) {
	g := sampleGraph()
	g.AddTarget("clean", "clean")
	data, err := ExportJSON(Analyze(g))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Targets []struct {
			Name         string   `json:"name"`
			Dependencies []string `json:"dependencies"`
		} `json:"targets"`
		Phony          []string        `json:"phony"`
		RecursiveCalls []RecursiveCall `json:"recursive_calls"`
		Cycles         [][]string      `json:"cycles"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.Targets) != 4 {
		t.Errorf("expected 4 targets, got %d", len(doc.Targets))
	}
	if len(doc.RecursiveCalls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(doc.RecursiveCalls))
	}
	if len(doc.Cycles) != 1 || !reflect.DeepEqual(doc.Cycles[0], []string{"clean", "clean"}) {
		t.Errorf("unexpected cycles %v", doc.Cycles)
	}
}

// Summary tests

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, Analyze(sampleGraph()), SummaryOptions{Makefile: "Makefile"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"MAKEFILE CALL GRAPH ANALYSIS",
		"Makefile: Makefile\n",
		"Total targets: 4\n",
		"Phony targets: 3\n",
		"all [PHONY]: build test\n",
		"build: src/main.c\n",
		"clean [PHONY]: (no dependencies)\n",
		"RECURSIVE MAKE CALLS:",
		"all -> lib/install\n",
		"test -> check\n",
		"✓ No circular dependencies detected",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "(Showing PHONY targets only)") {
		t.Error("phony-only marker should not be shown")
	}
	// listing is sorted by name
	if strings.Index(out, "all [PHONY]") > strings.Index(out, "build:") {
		t.Error("targets should be sorted")
	}
}

func TestWriteSummary_Cycles(t *testing.T) {
	g := New()
	g.AddTarget("a", "b")
	g.AddTarget("b", "a")

	var buf bytes.Buffer
	if err := WriteSummary(&buf, Analyze(g), SummaryOptions{Makefile: "mk", PhonyOnly: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "CIRCULAR DEPENDENCIES DETECTED") {
		t.Error("expected cycle header")
	}
	if !strings.Contains(out, "Cycle 1: a -> b -> a\n") {
		t.Errorf("expected cycle line, got\n%s", out)
	}
	if !strings.Contains(out, "(Showing PHONY targets only)") {
		t.Error("expected phony-only marker")
	}
	if strings.Contains(out, "RECURSIVE MAKE CALLS") {
		t.Error("no recursive call section expected")
	}
}

func TestWriteSection(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSection(&buf, "MERMAID FORMAT", "graph LR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Rule + "\nMERMAID FORMAT\n" + Rule + "\ngraph LR\n\n"
	if buf.String() != want {
		t.Errorf("unexpected section %q", buf.String())
	}
}
