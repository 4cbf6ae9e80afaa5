package makedb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/efebarandurmaz/makegraph/internal/depgraph"
	"github.com/efebarandurmaz/makegraph/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Provider produces the graph of a Makefile.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Load reads the Makefile at path and returns its graph.
	Load(ctx context.Context, path string) (*depgraph.Graph, error)
}

// Mode selects how the Makefile database is obtained.
type Mode string

const (
	ModeAuto Mode = "auto" // make if available, otherwise text
	ModeMake Mode = "make"
	ModeText Mode = "text"
)

const (
	DefaultBinary  = "make"
	DefaultTimeout = 30 * time.Second
)

// Options configures provider selection.
type Options struct {
	Mode           Mode
	Binary         string
	Timeout        time.Duration
	ExtraArgs      []string
	FollowIncludes bool
	Logger         *slog.Logger
}

// NewProvider returns the provider for opts.Mode. In auto mode the make
// provider is used when the binary is on PATH, the text provider otherwise.
func NewProvider(opts Options) (Provider, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	mp := &MakeProvider{
		Binary:    opts.Binary,
		Timeout:   opts.Timeout,
		ExtraArgs: opts.ExtraArgs,
		Logger:    log,
	}
	tp := &TextProvider{FollowIncludes: opts.FollowIncludes, Logger: log}

	switch opts.Mode {
	case ModeMake:
		return mp, nil
	case ModeText:
		return tp, nil
	case ModeAuto, "":
		if _, err := exec.LookPath(mp.binary()); err != nil {
			log.Warn("make not found, falling back to direct Makefile parsing",
				"binary", mp.binary(), "error", err)
			return tp, nil
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unknown mode %q (want auto, make or text)", opts.Mode)
}

// MakeProvider runs `make -pn` and parses the printed database.
type MakeProvider struct {
	Binary    string
	Timeout   time.Duration
	ExtraArgs []string
	Logger    *slog.Logger
}

func (p *MakeProvider) Name() string { return "make" }

func (p *MakeProvider) binary() string {
	if p.Binary == "" {
		return DefaultBinary
	}
	return p.Binary
}

func (p *MakeProvider) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

func (p *MakeProvider) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Load dumps and parses the database of the Makefile at path.
func (p *MakeProvider) Load(ctx context.Context, path string) (*depgraph.Graph, error) {
	out, err := p.Dump(ctx, path)
	if err != nil {
		return nil, err
	}

	_, span := observability.StartStageSpan(ctx, observability.StageParse,
		attribute.Int("makegraph.input_bytes", len(out)))
	defer span.End()

	g := (&Parser{Logger: p.logger()}).ParseDatabase(out)
	s := g.Stats()
	observability.RecordGraphResult(span, s.Targets, s.Dependencies, s.RecursiveCalls, 0)
	return g, nil
}

// Dump runs make in the Makefile's directory and returns its stdout.
func (p *MakeProvider) Dump(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMalformedInput, path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	ctx, span := observability.StartAcquireSpan(ctx, p.Name(), abs)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	args := append([]string{"-pn", "-f", abs}, p.ExtraArgs...)
	cmd := exec.CommandContext(ctx, p.binary(), args...)
	cmd.Dir = filepath.Dir(abs)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	command := p.binary() + " " + strings.Join(args, " ")
	p.logger().Debug("running make", "command", command, "dir", cmd.Dir, "timeout", p.timeout())

	start := time.Now()
	err = cmd.Run()
	if err != nil {
		err = p.classify(ctx, err, command, stdout.String(), stderr.String())
		observability.RecordError(span, err)
		return "", err
	}

	p.logger().Debug("make finished", "bytes", stdout.Len(), "duration", time.Since(start))
	return stdout.String(), nil
}

func (p *MakeProvider) classify(ctx context.Context, err error, command, stdout, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrToolTimeout, p.timeout(), command)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrToolNotFound, p.binary(), err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ToolFailureError{
			Command:  command,
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout,
			Stderr:   stderr,
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("running %s: %w", command, ctxErr)
	}
	return fmt.Errorf("running %s: %w", command, err)
}

// TextProvider parses the Makefile text directly. It sees no variable
// expansion or implicit rules.
type TextProvider struct {
	// FollowIncludes splices literal include/-include/sinclude files in place.
	FollowIncludes bool
	Logger         *slog.Logger
}

func (p *TextProvider) Name() string { return "text" }

func (p *TextProvider) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Load reads and parses the Makefile at path.
func (p *TextProvider) Load(ctx context.Context, path string) (*depgraph.Graph, error) {
	_, span := observability.StartAcquireSpan(ctx, p.Name(), path)
	text, err := p.Read(path)
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = observability.StartStageSpan(ctx, observability.StageParse,
		attribute.Int("makegraph.input_bytes", len(text)))
	defer span.End()

	g := (&Parser{Logger: p.logger()}).ParseMakefile(text)
	s := g.Stats()
	observability.RecordGraphResult(span, s.Targets, s.Dependencies, s.RecursiveCalls, 0)
	return g, nil
}

// Read returns the Makefile text, with includes spliced in when enabled.
func (p *TextProvider) Read(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMalformedInput, path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if !p.FollowIncludes {
		return string(data), nil
	}
	visited := map[string]bool{abs: true}
	return p.expandIncludes(string(data), filepath.Dir(abs), visited), nil
}

// expandIncludes replaces include lines with the included file's text.
// Paths with variable references, missing files and circular includes are
// left out.
func (p *TextProvider) expandIncludes(text, dir string, visited map[string]bool) string {
	var b strings.Builder
	lines := splitLines(text)
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		paths, optional, ok := parseInclude(line)
		if !ok {
			b.WriteString(line)
			b.WriteByte('\n')
			continue
		}
		for _, rel := range paths {
			if strings.Contains(rel, "$") {
				p.logger().Debug("skipping include with variable reference", "path", rel)
				continue
			}
			inc := rel
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(dir, rel)
			}
			if visited[inc] {
				p.logger().Warn("circular include ignored", "path", inc)
				continue
			}
			data, err := os.ReadFile(inc)
			if err != nil {
				if !optional {
					p.logger().Warn("include not readable", "path", inc, "error", err)
				}
				continue
			}
			visited[inc] = true
			b.WriteString(p.expandIncludes(string(data), filepath.Dir(inc), visited))
		}
	}
	return b.String()
}

// parseInclude recognizes "include", "-include" and "sinclude" directives.
func parseInclude(line string) (paths []string, optional, ok bool) {
	fields := strings.Fields(stripComment(line))
	if len(fields) < 2 || strings.HasPrefix(line, "\t") {
		return nil, false, false
	}
	switch fields[0] {
	case "include":
		return fields[1:], false, true
	case "-include", "sinclude":
		return fields[1:], true, true
	}
	return nil, false, false
}
