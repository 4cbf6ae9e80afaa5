package makedb

import (
	"regexp"
	"strings"
)

// Invocation is a $(MAKE) call found in recipe text.
type Invocation struct {
	Dir    string // -C / --directory argument, empty when absent
	Target string
}

var (
	makeRefRe  = regexp.MustCompile(`\$(?:\(MAKE\)|\{MAKE\})`)
	subGoalRe  = regexp.MustCompile(`^[A-Za-z0-9_/][A-Za-z0-9_./-]*$`)
	numericArg = regexp.MustCompile(`^[0-9.]+$`)
	varRefArg  = regexp.MustCompile(`^\$(?:\([^)]*\)|\{[^}]*\})$`)
)

// flagsWithValue lists make options whose value is the next argument.
var flagsWithValue = map[string]bool{
	"-f": true, "--file": true, "--makefile": true,
	"-I": true, "--include-dir": true,
	"-o": true, "--old-file": true, "--assume-old": true,
	"-W": true, "--what-if": true, "--new-file": true, "--assume-new": true,
}

// FindInvocations returns every $(MAKE) / ${MAKE} call on a recipe line that
// names a sub-goal. Calls without a goal are ignored.
func FindInvocations(line string) []Invocation {
	var out []Invocation
	locs := makeRefRe.FindAllStringIndex(line, -1)
	for i, loc := range locs {
		end := len(line)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if inv, ok := parseInvocation(line[loc[1]:end]); ok {
			out = append(out, inv)
		}
	}
	return out
}

// parseInvocation reads the arguments after a $(MAKE) reference up to the
// end of the shell command.
func parseInvocation(args string) (Invocation, bool) {
	if idx := strings.IndexAny(args, ";|&<>`"); idx >= 0 {
		args = args[:idx]
	}
	// A reference glued to other text, e.g. $(MAKE)FLAGS, is not a call.
	if args != "" && !strings.ContainsAny(args[:1], " \t") {
		return Invocation{}, false
	}

	var inv Invocation
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-C" || f == "--directory":
			if i+1 < len(fields) {
				i++
				inv.Dir = fields[i]
			}
		case strings.HasPrefix(f, "--directory="):
			inv.Dir = strings.TrimPrefix(f, "--directory=")
		case strings.HasPrefix(f, "-C") && len(f) > 2 && !strings.HasPrefix(f, "--"):
			inv.Dir = f[2:]
		case flagsWithValue[f]:
			i++
		case f == "-j" || f == "-l":
			if i+1 < len(fields) && (numericArg.MatchString(fields[i+1]) || varRefArg.MatchString(fields[i+1])) {
				i++
			}
		case strings.HasPrefix(f, "-"), strings.Contains(f, "="):
			// other options and command-line variable overrides
		default:
			// closing paren of a surrounding subshell
			if !strings.Contains(f, "(") {
				f = strings.TrimRight(f, ")")
			}
			if !subGoalRe.MatchString(f) {
				return Invocation{}, false
			}
			inv.Target = f
			return inv, true
		}
	}
	return Invocation{}, false
}
