package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Make.Mode != "auto" {
		t.Errorf("expected mode=auto, got %s", cfg.Make.Mode)
	}
	if cfg.Make.Binary != "make" {
		t.Errorf("expected binary=make, got %s", cfg.Make.Binary)
	}
	if cfg.Make.Timeout != 30*time.Second {
		t.Errorf("expected timeout=30s, got %s", cfg.Make.Timeout)
	}
	if cfg.Output.Format != "both" {
		t.Errorf("expected format=both, got %s", cfg.Output.Format)
	}
	if cfg.Make.FollowIncludes {
		t.Error("expected follow_includes=false by default")
	}
	if cfg.Output.SrcPattern != "^src" {
		t.Errorf("expected src_pattern=^src, got %s", cfg.Output.SrcPattern)
	}
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("default config should have no warnings, got %v", warnings)
	}
}

func TestValidate_Mode(t *testing.T) {
	tests := []struct {
		mode string
		want bool // true = should warn
	}{
		{"auto", false},
		{"make", false},
		{"text", false},
		{"remote", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := Default()
			cfg.Make.Mode = tt.mode
			if got := hasWarning(cfg.Validate(), "make mode"); got != tt.want {
				t.Errorf("mode=%q: hasWarn=%v, want=%v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestValidate_Format(t *testing.T) {
	for _, f := range Formats {
		cfg := Default()
		cfg.Output.Format = f
		if hasWarning(cfg.Validate(), "output format") {
			t.Errorf("format %q should be accepted", f)
		}
	}

	cfg := Default()
	cfg.Output.Format = "svg"
	if !hasWarning(cfg.Validate(), "output format") {
		t.Error("expected warning about unknown format")
	}
}

func TestValidate_Timeout(t *testing.T) {
	cfg := Default()
	cfg.Make.Timeout = 0
	if !hasWarning(cfg.Validate(), "timeout") {
		t.Error("expected warning about non-positive timeout")
	}
}

func TestValidate_SrcPattern(t *testing.T) {
	cfg := Default()
	cfg.Output.SrcPattern = "("
	if hasWarning(cfg.Validate(), "src_pattern") {
		t.Error("pattern should only be checked when no_src is set")
	}
	cfg.Output.NoSrc = true
	if !hasWarning(cfg.Validate(), "src_pattern") {
		t.Error("expected warning about invalid src_pattern")
	}
}

func TestValidate_GraphPassword(t *testing.T) {
	cfg := Default()
	cfg.Graph.URI = "bolt://localhost:7687"
	if !hasWarning(cfg.Validate(), "password") {
		t.Error("expected warning about missing password")
	}
	cfg.Graph.Password = "secret"
	if hasWarning(cfg.Validate(), "password") {
		t.Error("password set, no warning expected")
	}
}

func TestValidate_SampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want bool
	}{
		{"zero", 0, false},
		{"half", 0.5, false},
		{"one", 1.0, false},
		{"negative", -0.1, true},
		{"too_high", 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Tracing.SampleRate = tt.rate
			if got := hasWarning(cfg.Validate(), "sample_rate"); got != tt.want {
				t.Errorf("rate=%.1f: hasWarn=%v, want=%v", tt.rate, got, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "makegraph.yaml")
	content := `make:
  mode: text
  timeout: 5s
  extra_args: ["--no-builtin-rules", "-r"]
output:
  format: mermaid
  phony_only: true
graph:
  uri: bolt://db:7687
  password: pw
  project: demo
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Make.Mode != "text" {
		t.Errorf("expected mode=text, got %s", cfg.Make.Mode)
	}
	if cfg.Make.Timeout != 5*time.Second {
		t.Errorf("expected timeout=5s, got %s", cfg.Make.Timeout)
	}
	if len(cfg.Make.ExtraArgs) != 2 || cfg.Make.ExtraArgs[1] != "-r" {
		t.Errorf("unexpected extra_args %v", cfg.Make.ExtraArgs)
	}
	if cfg.Output.Format != "mermaid" || !cfg.Output.PhonyOnly {
		t.Errorf("unexpected output config %+v", cfg.Output)
	}
	if cfg.Graph.Project != "demo" {
		t.Errorf("expected project=demo, got %s", cfg.Graph.Project)
	}
	// unset keys keep their defaults
	if cfg.Make.Binary != "make" {
		t.Errorf("expected default binary, got %s", cfg.Make.Binary)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml"), nil); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.Format != "both" {
		t.Errorf("expected default format, got %s", cfg.Output.Format)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MAKEGRAPH_OUTPUT_FORMAT", "dot")
	t.Setenv("MAKEGRAPH_MAKE_TIMEOUT", "2m")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.Format != "dot" {
		t.Errorf("expected format=dot, got %s", cfg.Output.Format)
	}
	if cfg.Make.Timeout != 2*time.Minute {
		t.Errorf("expected timeout=2m, got %s", cfg.Make.Timeout)
	}
}

func TestLoad_FlagsOverride(t *testing.T) {
	t.Setenv("MAKEGRAPH_OUTPUT_FORMAT", "dot")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("format", "f", "both", "")
	flags.Bool("phony-only", false, "")
	flags.Duration("timeout", 30*time.Second, "")
	flags.String("unrelated", "", "")
	if err := flags.Parse([]string{"--format", "summary", "--phony-only"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.Format != "summary" {
		t.Errorf("flag should win over env, got format=%s", cfg.Output.Format)
	}
	if !cfg.Output.PhonyOnly {
		t.Error("expected phony_only from flag")
	}
	if cfg.Make.Timeout != 30*time.Second {
		t.Errorf("unchanged flag should keep default timeout, got %s", cfg.Make.Timeout)
	}
}
