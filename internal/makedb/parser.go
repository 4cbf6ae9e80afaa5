// Package makedb turns make's printed rule database, or raw Makefile text,
// into a depgraph.Graph.
package makedb

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/efebarandurmaz/makegraph/internal/depgraph"
)

// DatabaseMarker starts the file/rule section of `make -p` output.
const DatabaseMarker = "# Files"

var (
	phonyRe = regexp.MustCompile(`\.PHONY:\s*(.+)`)

	// databaseTargetRe matches "target: deps" in a database dump.
	databaseTargetRe = regexp.MustCompile(`^([^#:\s][^:]*?):\s*(.*)$`)

	// makefileTargetRe is the looser pattern used on raw Makefile text.
	makefileTargetRe = regexp.MustCompile(`^([A-Za-z0-9_/.@-]+)\s*:(.*)$`)

	commentRe = regexp.MustCompile(`#.*$`)
)

// dialect captures what differs between a database dump and a raw Makefile.
type dialect struct {
	name     string
	targetRe *regexp.Regexp
	// sectioned inputs only yield targets after DatabaseMarker.
	sectioned bool
	// inlineRecipes splits "target: deps ; recipe" at the semicolon.
	inlineRecipes bool
	// recipeLine returns the recipe text of a line following a target line.
	// skip means the line neither ends the recipe nor belongs to it.
	recipeLine func(line string) (text string, ok, skip bool)
}

var databaseDialect = dialect{
	name:      "database",
	targetRe:  databaseTargetRe,
	sectioned: true,
	recipeLine: func(line string) (string, bool, bool) {
		switch {
		case strings.HasPrefix(line, "#"):
			return strings.TrimSpace(line[1:]), true, false
		case strings.HasPrefix(line, "\t"):
			return strings.TrimSpace(line), true, false
		case strings.TrimSpace(line) == "":
			return "", false, true
		}
		return "", false, false
	},
}

var makefileDialect = dialect{
	name:          "makefile",
	targetRe:      makefileTargetRe,
	inlineRecipes: true,
	recipeLine: func(line string) (string, bool, bool) {
		switch {
		case strings.HasPrefix(line, "\t"):
			return strings.TrimSpace(line), true, false
		case strings.TrimSpace(line) == "", strings.HasPrefix(line, "#"):
			return "", false, true
		}
		return "", false, false
	},
}

// Parser builds graphs from make text. The zero value is ready to use.
type Parser struct {
	Logger *slog.Logger
}

// ParseDatabase parses the output of `make -pn`.
func ParseDatabase(text string) *depgraph.Graph {
	return (&Parser{}).ParseDatabase(text)
}

// ParseMakefile parses raw Makefile text without variable expansion.
func ParseMakefile(text string) *depgraph.Graph {
	return (&Parser{}).ParseMakefile(text)
}

// ParseDatabase parses the output of `make -pn`. Before DatabaseMarker only
// .PHONY declarations are collected.
func (p *Parser) ParseDatabase(text string) *depgraph.Graph {
	return p.parse(splitLines(text), databaseDialect)
}

// ParseMakefile parses raw Makefile text. Backslash continuations are joined
// first; recipe lines are the tab-indented lines after a rule.
func (p *Parser) ParseMakefile(text string) *depgraph.Graph {
	return p.parse(joinContinuations(splitLines(text)), makefileDialect)
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Parser) parse(lines []string, d dialect) *depgraph.Graph {
	g := depgraph.New()
	log := p.logger().With("dialect", d.name)
	inSection := !d.sectioned

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if d.sectioned && strings.HasPrefix(line, DatabaseMarker) {
			inSection = true
			continue
		}
		if !inSection {
			harvestPhony(g, line)
			continue
		}
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		if harvestPhony(g, line) {
			continue
		}

		m := d.targetRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		target := strings.TrimSpace(m[1])
		if reason, rejected := RejectReason(line, target); rejected {
			log.Debug("skipping line", "target", target, "reason", reason)
			continue
		}

		depText := m[2]
		var recipe []string
		if d.inlineRecipes {
			var inline string
			depText, inline = cutInlineRecipe(depText)
			if inline != "" {
				recipe = append(recipe, inline)
			}
		}
		g.AddTarget(target, splitDependencies(depText)...)

		// Recipe text follows the rule line.
		j := i + 1
		for ; j < len(lines); j++ {
			text, ok, skip := d.recipeLine(lines[j])
			if skip {
				continue
			}
			if !ok {
				break
			}
			recipe = append(recipe, text)
		}
		i = j - 1

		if len(recipe) > 0 {
			g.AddRecipe(target, recipe...)
		}
		for _, r := range recipe {
			for _, inv := range FindInvocations(r) {
				c := g.AddRecursiveCall(target, inv.Dir, inv.Target)
				log.Debug("recursive make call", "from", c.From, "to", c.To)
			}
		}
	}
	return g
}

// harvestPhony records .PHONY names and reports whether line was a
// .PHONY declaration.
func harvestPhony(g *depgraph.Graph, line string) bool {
	if !strings.Contains(line, ".PHONY:") && !strings.HasPrefix(line, ".PHONY") {
		return false
	}
	if m := phonyRe.FindStringSubmatch(line); m != nil {
		g.MarkPhony(strings.Fields(stripComment(m[1]))...)
	}
	return true
}

// cutInlineRecipe splits dependency text at the first unescaped ';' that
// precedes any comment. The recipe is returned trimmed.
func cutInlineRecipe(s string) (deps, recipe string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '#':
			return s, ""
		case ';':
			return s[:i], strings.TrimSpace(s[i+1:])
		}
	}
	return s, ""
}

// splitDependencies strips a trailing comment and splits on whitespace.
// A leading ':' from a double-colon rule is dropped. Order-only
// prerequisites are kept as ordinary dependencies; the bare '|' separating
// them is not a name.
func splitDependencies(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ":")
	fields := strings.Fields(stripComment(s))
	out := fields[:0]
	for _, f := range fields {
		if f != "|" {
			out = append(out, f)
		}
	}
	return out
}

func stripComment(s string) string {
	return strings.TrimSpace(commentRe.ReplaceAllString(s, ""))
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// joinContinuations joins lines ending in an unescaped backslash.
func joinContinuations(lines []string) []string {
	var out []string
	var b strings.Builder
	pending := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasSuffix(trimmed, `\`) && !strings.HasSuffix(trimmed, `\\`) {
			if pending {
				b.WriteString(" ")
				b.WriteString(strings.TrimSpace(trimmed[:len(trimmed)-1]))
			} else {
				b.WriteString(trimmed[:len(trimmed)-1])
			}
			pending = true
			continue
		}
		if pending {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(line))
			out = append(out, b.String())
			b.Reset()
			pending = false
			continue
		}
		out = append(out, line)
	}
	if pending {
		out = append(out, b.String())
	}
	return out
}
