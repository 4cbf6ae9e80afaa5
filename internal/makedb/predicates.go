package makedb

import (
	"regexp"
	"strings"
	"unicode"
)

// TargetFilter is a named heuristic that rejects lines which look like
// targets but are not call-graph nodes.
type TargetFilter struct {
	Name   string
	Reject func(line, target string) bool
}

// internalTargets are special targets and file names make reports about itself.
var internalTargets = map[string]bool{
	".DEFAULT":              true,
	".SUFFIXES":             true,
	".INTERMEDIATE":         true,
	".SECONDARY":            true,
	".PRECIOUS":             true,
	".IGNORE":               true,
	".SILENT":               true,
	".EXPORT_ALL_VARIABLES": true,
	".NOTPARALLEL":          true,
	".ONESHELL":             true,
	".POSIX":                true,
	"Makefile":              true,
	"GNUmakefile":           true,
	"makefile":              true,
}

// internalVariables are make's own variables, which can surface as
// "NAME: value" lines in a database dump.
var internalVariables = map[string]bool{
	"MAKEFILES":     true,
	"MAKEFILE_LIST": true,
	"CURDIR":        true,
	"SHELL":         true,
	"MAKE":          true,
	"MAKELEVEL":     true,
	"MAKEFLAGS":     true,
	"MFLAGS":        true,
	"MAKE_VERSION":  true,
	"MAKE_COMMAND":  true,
	".DEFAULT_GOAL": true,
	".VARIABLES":    true,
	".FEATURES":     true,
	"VPATH":         true,
	".INCLUDE_DIRS": true,
	".RECIPEPREFIX": true,
	"MAKECMDGOALS":  true,
}

var targetVariableRe = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_.-]*\s*(?:[:+?!]|::)?=`)

// TargetFilters are applied in order; the first filter that rejects wins.
var TargetFilters = []TargetFilter{
	{Name: "variable-assignment", Reject: isVariableAssignment},
	{Name: "internal-target", Reject: func(_, target string) bool { return internalTargets[target] }},
	{Name: "internal-variable", Reject: func(_, target string) bool { return internalVariables[target] }},
	{Name: "uppercase-name", Reject: func(_, target string) bool { return isUpperName(target) }},
	{Name: "absolute-path", Reject: func(_, target string) bool { return strings.HasPrefix(target, "/") }},
	{Name: "pattern-rule", Reject: func(_, target string) bool { return strings.Contains(target, "%") }},
	{Name: "dot-prefixed", Reject: func(_, target string) bool {
		return strings.HasPrefix(target, ".") && target != ".PHONY"
	}},
	{Name: "target-variable", Reject: isTargetVariable},
}

// RejectReason returns the name of the first filter that rejects the line.
func RejectReason(line, target string) (string, bool) {
	for _, f := range TargetFilters {
		if f.Reject(line, target) {
			return f.Name, true
		}
	}
	return "", false
}

// isVariableAssignment reports "=" before the first ":", or a ":=" / "::="
// operator right after the name.
func isVariableAssignment(line, _ string) bool {
	colon := strings.Index(line, ":")
	eq := strings.Index(line, "=")
	if eq >= 0 && (colon < 0 || eq < colon) {
		return true
	}
	if colon < 0 {
		return false
	}
	rest := line[colon+1:]
	return strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ":=")
}

// isUpperName reports a name with at least one letter, no lower-case letters
// and no whitespace, e.g. BUILD_DIR.
func isUpperName(name string) bool {
	cased := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			return false
		case unicode.IsLower(r):
			return false
		case unicode.IsUpper(r):
			cased = true
		}
	}
	return cased
}

// isTargetVariable reports target-specific assignments such as
// "foo: CFLAGS += -g".
func isTargetVariable(line, _ string) bool {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return false
	}
	return targetVariableRe.MatchString(line[colon+1:])
}
