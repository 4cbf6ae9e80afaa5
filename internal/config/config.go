package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. MAKEGRAPH_MAKE_TIMEOUT.
const EnvPrefix = "MAKEGRAPH"

// Config holds all application configuration.
type Config struct {
	Make    MakeConfig    `mapstructure:"make"`
	Output  OutputConfig  `mapstructure:"output"`
	Graph   GraphConfig   `mapstructure:"graph"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Log     LogConfig     `mapstructure:"log"`
}

// MakeConfig controls how the rule database is obtained.
type MakeConfig struct {
	Mode           string        `mapstructure:"mode"` // auto, make or text
	Binary         string        `mapstructure:"binary"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ExtraArgs      []string      `mapstructure:"extra_args"`
	FollowIncludes bool          `mapstructure:"follow_includes"`
}

type OutputConfig struct {
	Format     string `mapstructure:"format"`
	PhonyOnly  bool   `mapstructure:"phony_only"`
	NoSrc      bool   `mapstructure:"no_src"`
	SrcPattern string `mapstructure:"src_pattern"`
	Stats      bool   `mapstructure:"stats"`
	StatsJSON  bool   `mapstructure:"stats_json"`
}

// GraphConfig points at an optional Neo4j instance. An empty URI disables storage.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Project  string `mapstructure:"project"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Formats lists the recognised output formats.
var Formats = []string{"dot", "mermaid", "both", "summary", "json"}

var modes = []string{"auto", "make", "text"}

var defaults = map[string]any{
	"make.mode":             "auto",
	"make.binary":           "make",
	"make.timeout":          30 * time.Second,
	"make.extra_args":       []string{},
	"make.follow_includes":  false,
	"output.format":         "both",
	"output.phony_only":     false,
	"output.no_src":         false,
	"output.src_pattern":    "^src",
	"output.stats":          false,
	"output.stats_json":     false,
	"graph.uri":             "",
	"graph.username":        "neo4j",
	"graph.password":        "",
	"graph.database":        "",
	"graph.project":         "",
	"tracing.otlp_endpoint": "",
	"tracing.sample_rate":   1.0,
	"log.level":             "warn",
	"log.format":            "text",
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"mode":            "make.mode",
	"make":            "make.binary",
	"timeout":         "make.timeout",
	"make-arg":        "make.extra_args",
	"follow-includes": "make.follow_includes",
	"format":          "output.format",
	"phony-only":      "output.phony_only",
	"no-src":          "output.no_src",
	"src-pattern":     "output.src_pattern",
	"stats":           "output.stats",
	"stats-json":      "output.stats_json",
	"neo4j-uri":       "graph.uri",
	"neo4j-user":      "graph.username",
	"neo4j-password":  "graph.password",
	"neo4j-database":  "graph.database",
	"project":         "graph.project",
	"otlp-endpoint":   "tracing.otlp_endpoint",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		panic(err) // defaults are static
	}
	return cfg
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if !oneOf(c.Make.Mode, modes) {
		warnings = append(warnings, fmt.Sprintf("make mode '%s' is not one of %s", c.Make.Mode, strings.Join(modes, ", ")))
	}
	if c.Make.Timeout <= 0 {
		warnings = append(warnings, fmt.Sprintf("make timeout %s is not positive", c.Make.Timeout))
	}
	if !oneOf(c.Output.Format, Formats) {
		warnings = append(warnings, fmt.Sprintf("output format '%s' is not one of %s", c.Output.Format, strings.Join(Formats, ", ")))
	}
	if c.Output.NoSrc {
		if _, err := regexp.Compile(c.Output.SrcPattern); err != nil {
			warnings = append(warnings, fmt.Sprintf("src_pattern '%s' does not compile: %v", c.Output.SrcPattern, err))
		}
	}

	// Storage is optional, but a URI without credentials rarely works.
	if c.Graph.URI != "" && c.Graph.Password == "" {
		warnings = append(warnings, fmt.Sprintf("graph uri '%s' is configured but password is empty", c.Graph.URI))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside range [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from defaults, an optional file, the environment
// and, when flags is non-nil, changed command-line flags (highest priority).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		if err := BindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return cfg, nil
}

// BindFlags binds every known flag present in flags to its configuration key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
