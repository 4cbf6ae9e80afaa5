package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/makegraph/internal/depgraph"
)

// AnalysisMetrics collects statistics for one analysis run.
type AnalysisMetrics struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"-"`
	DurationMS float64        `json:"duration_ms,omitempty"`
	Makefile   string         `json:"makefile"`
	Provider   string         `json:"provider"` // "make" or "text"
	Graph      GraphMetrics   `json:"graph"`
	Stages     []StageMetrics `json:"stages"`
	Errors     []string       `json:"errors,omitempty"`
}

type GraphMetrics struct {
	Targets             int `json:"targets"`
	Dependencies        int `json:"dependencies"`
	PhonyTargets        int `json:"phony_targets"`
	RecursiveCalls      int `json:"recursive_calls"`
	CrossDirectoryCalls int `json:"cross_directory_calls"`
	DanglingNodes       int `json:"dangling_nodes"`
	Cycles              int `json:"cycles"`
	LongestCycle        int `json:"longest_cycle"`
}

type StageMetrics struct {
	Name       string        `json:"name"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// New starts tracking an analysis run.
func New(makefile string) *AnalysisMetrics {
	return &AnalysisMetrics{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Makefile:  makefile,
	}
}

// CollectGraph computes graph-side metrics from an analysis.
func (m *AnalysisMetrics) CollectGraph(a *depgraph.Analysis) {
	m.Graph = GraphMetrics{
		Targets:        a.Stats.Targets,
		Dependencies:   a.Stats.Dependencies,
		PhonyTargets:   a.Stats.PhonyTargets,
		RecursiveCalls: a.Stats.RecursiveCalls,
		DanglingNodes:  a.Stats.DanglingNodes,
		Cycles:         len(a.Cycles),
	}
	for _, c := range a.Graph.RecursiveCalls() {
		if c.CrossDirectory() {
			m.Graph.CrossDirectoryCalls++
		}
	}
	for _, c := range a.Cycles {
		if c.Len() > m.Graph.LongestCycle {
			m.Graph.LongestCycle = c.Len()
		}
	}
}

// AddStage records a single stage's timing and status.
func (m *AnalysisMetrics) AddStage(name string, d time.Duration, err error) {
	s := StageMetrics{Name: name, Duration: d, DurationMS: milliseconds(d)}
	if err != nil {
		s.Error = err.Error()
	}
	m.Stages = append(m.Stages, s)
}

// Time runs fn and records it as a stage.
func (m *AnalysisMetrics) Time(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.AddStage(name, time.Since(start), err)
	return err
}

// Finish marks the run as complete.
func (m *AnalysisMetrics) Finish(errs []string) {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.DurationMS = milliseconds(m.Duration)
	m.Errors = errs
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// PrintSummary writes a human-readable summary.
func (m *AnalysisMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       MAKEGRAPH ANALYSIS REPORT      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Run:         %-23s║\n", shortID(m.RunID))
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Provider:    %-23s║\n", m.Provider)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ GRAPH (%s)\n", m.Makefile)
	fmt.Fprintf(w, "║   Targets:     %d\n", m.Graph.Targets)
	fmt.Fprintf(w, "║   Deps:        %d\n", m.Graph.Dependencies)
	fmt.Fprintf(w, "║   Phony:       %d\n", m.Graph.PhonyTargets)
	fmt.Fprintf(w, "║   Calls:       %d (%d cross-dir)\n", m.Graph.RecursiveCalls, m.Graph.CrossDirectoryCalls)
	fmt.Fprintf(w, "║   Dangling:    %d\n", m.Graph.DanglingNodes)
	fmt.Fprintf(w, "║   Cycles:      %d\n", m.Graph.Cycles)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ STAGES\n")
	for _, s := range m.Stages {
		status := "OK"
		if s.Error != "" {
			status = "FAILED"
		}
		fmt.Fprintf(w, "║   %-14s %8s  %s\n", s.Name, s.Duration.Round(time.Microsecond), status)
	}
	if len(m.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range m.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the metrics as formatted JSON.
func (m *AnalysisMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
