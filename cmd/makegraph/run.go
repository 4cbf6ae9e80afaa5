package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"

	"go.opentelemetry.io/otel/attribute"

	"github.com/efebarandurmaz/makegraph/internal/config"
	"github.com/efebarandurmaz/makegraph/internal/depgraph"
	"github.com/efebarandurmaz/makegraph/internal/graph"
	"github.com/efebarandurmaz/makegraph/internal/makedb"
	"github.com/efebarandurmaz/makegraph/internal/metrics"
	"github.com/efebarandurmaz/makegraph/internal/observability"
	"github.com/efebarandurmaz/makegraph/internal/watch"
)

// app holds what one or more analysis runs share.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
	provider makedb.Provider
	repo     graph.Repository // nil when storage is disabled
	srcRe    *regexp.Regexp   // nil unless no_src is set
}

func run(ctx context.Context, cfg *config.Config, makefile string, watchMode bool, stdout, stderr io.Writer) error {
	if !validFormat(cfg.Output.Format) {
		return fmt.Errorf("unknown format %q (want one of %v)", cfg.Output.Format, config.Formats)
	}

	log, err := observability.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "makegraph",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a := &app{cfg: cfg, log: log, stdout: stdout, stderr: stderr}

	if cfg.Output.NoSrc {
		a.srcRe, err = regexp.Compile(cfg.Output.SrcPattern)
		if err != nil {
			return fmt.Errorf("invalid src pattern: %w", err)
		}
	}

	a.provider, err = makedb.NewProvider(makedb.Options{
		Mode:           makedb.Mode(cfg.Make.Mode),
		Binary:         cfg.Make.Binary,
		Timeout:        cfg.Make.Timeout,
		ExtraArgs:      cfg.Make.ExtraArgs,
		FollowIncludes: cfg.Make.FollowIncludes,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	log.Debug("provider selected", "provider", a.provider.Name())

	if cfg.Graph.URI != "" {
		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close(context.Background())
		a.repo = repo
	}

	if watchMode {
		return a.watch(ctx, makefile)
	}
	return a.analyze(ctx, makefile)
}

// analyze runs the pipeline once and reports metrics when asked to.
func (a *app) analyze(ctx context.Context, makefile string) error {
	m := metrics.New(makefile)
	m.Provider = a.provider.Name()

	err := a.pipeline(ctx, makefile, m)

	var errs []string
	if err != nil {
		errs = append(errs, err.Error())
	}
	m.Finish(errs)
	a.report(m)
	return err
}

func (a *app) pipeline(ctx context.Context, makefile string, m *metrics.AnalysisMetrics) error {
	var g *depgraph.Graph
	err := m.Time(observability.StageAcquire, func() error {
		var err error
		g, err = a.provider.Load(ctx, makefile)
		return err
	})
	if err != nil {
		return err
	}

	g = a.filter(g)

	var analysis *depgraph.Analysis
	m.Time(observability.StageDetectCycles, func() error {
		_, span := observability.StartStageSpan(ctx, observability.StageDetectCycles)
		defer span.End()
		analysis = depgraph.Analyze(g)
		observability.RecordGraphResult(span, analysis.Stats.Targets, analysis.Stats.Dependencies,
			analysis.Stats.RecursiveCalls, len(analysis.Cycles))
		return nil
	})
	m.CollectGraph(analysis)
	for _, c := range analysis.Cycles {
		a.log.Debug("cycle detected", "cycle", c.String())
	}

	err = m.Time(observability.StageRender, func() error {
		_, span := observability.StartStageSpan(ctx, observability.StageRender,
			attribute.String("makegraph.format", a.cfg.Output.Format))
		defer span.End()
		err := render(a.stdout, analysis, makefile, a.cfg.Output.Format, a.cfg.Output.PhonyOnly)
		observability.RecordError(span, err)
		return err
	})
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if a.repo == nil {
		return nil
	}
	project := a.project(makefile)
	return m.Time(observability.StageStore, func() error {
		ctx, span := observability.StartStageSpan(ctx, observability.StageStore,
			attribute.String("makegraph.project", project))
		defer span.End()
		err := a.repo.StoreGraph(ctx, project, analysis)
		observability.RecordError(span, err)
		if err == nil {
			a.log.Info("graph stored", "project", project, "targets", analysis.Stats.Targets)
		}
		return err
	})
}

// filter applies the phony-only restriction, then the source exclusion.
func (a *app) filter(g *depgraph.Graph) *depgraph.Graph {
	if a.cfg.Output.PhonyOnly {
		g = depgraph.PhonyOnly(g)
	}
	if a.srcRe != nil {
		g = depgraph.ExcludeDependencies(g, a.srcRe)
	}
	return g
}

func (a *app) project(makefile string) string {
	if a.cfg.Graph.Project != "" {
		return a.cfg.Graph.Project
	}
	abs, err := filepath.Abs(makefile)
	if err != nil {
		return filepath.Base(filepath.Dir(makefile))
	}
	return filepath.Base(filepath.Dir(abs))
}

func (a *app) report(m *metrics.AnalysisMetrics) {
	if a.cfg.Output.Stats {
		m.PrintSummary(a.stderr)
	}
	if a.cfg.Output.StatsJSON {
		data, err := m.JSON()
		if err != nil {
			a.log.Warn("encoding metrics failed", "error", err)
			return
		}
		fmt.Fprintf(a.stderr, "%s\n", data)
	}
}

// watch analyses once, then again after every change until interrupted.
// Failed runs are logged and do not stop watching.
func (a *app) watch(ctx context.Context, makefile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New([]string{makefile}, func(ctx context.Context, changed []string) error {
		a.log.Info("makefile changed, re-running analysis", "changed", changed)
		return a.analyze(ctx, makefile)
	}, watch.Options{Logger: a.log})
	if err != nil {
		return err
	}

	if err := a.analyze(ctx, makefile); err != nil {
		a.log.Error("analysis failed", "error", err)
	}
	a.log.Info("watching for changes", "files", w.Files())
	return w.Run(ctx)
}

// render writes the report for format: the summary followed by the
// requested graph sections, or a single JSON document.
func render(w io.Writer, a *depgraph.Analysis, makefile, format string, phonyOnly bool) error {
	if format == "json" {
		data, err := depgraph.ExportJSON(a)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	err := depgraph.WriteSummary(w, a, depgraph.SummaryOptions{Makefile: makefile, PhonyOnly: phonyOnly})
	if err != nil {
		return err
	}
	if format == "dot" || format == "both" {
		if err := depgraph.WriteSection(w, "GRAPHVIZ DOT FORMAT", depgraph.ExportDOT(a.Graph, makefile)); err != nil {
			return err
		}
	}
	if format == "mermaid" || format == "both" {
		if err := depgraph.WriteSection(w, "MERMAID FORMAT", depgraph.ExportMermaid(a.Graph)); err != nil {
			return err
		}
	}
	return nil
}

func validFormat(format string) bool {
	for _, f := range config.Formats {
		if f == format {
			return true
		}
	}
	return false
}
