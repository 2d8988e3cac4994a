// Package config loads the user's tact.config.yaml into the immutable
// record the rest of the system consumes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cboone/tact/internal/suite"
)

// ExpectConfig holds assertion-polling defaults.
type ExpectConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ProjectConfig selects and configures one named slice of test files.
type ProjectConfig struct {
	Name      string             `yaml:"name"`
	TestMatch string             `yaml:"testMatch"`
	Use       *suite.TestOptions `yaml:"use,omitempty"`
}

// Config is the immutable record produced by loading tact.config.yaml
// (spec.md §6), plus a Workers field supplementing the default
// worker-count rule from §4.D so it is operator-configurable.
type Config struct {
	Timeout       time.Duration   `yaml:"timeout"`
	Expect        ExpectConfig    `yaml:"expect"`
	Retries       int             `yaml:"retries"`
	GlobalTimeout time.Duration   `yaml:"globalTimeout"`
	Workers       int             `yaml:"workers"`
	Projects      []ProjectConfig `yaml:"projects"`
}

// yamlConfig mirrors Config but with millisecond integers for durations,
// matching spec.md §6's `{timeout: ms, ...}` shape on the wire while
// Config itself stays in idiomatic time.Duration form internally.
type yamlConfig struct {
	TimeoutMS int64 `yaml:"timeout"`
	Expect    struct {
		TimeoutMS int64 `yaml:"timeout"`
	} `yaml:"expect"`
	Retries         int             `yaml:"retries"`
	GlobalTimeoutMS int64           `yaml:"globalTimeout"`
	Workers         int             `yaml:"workers"`
	Projects        []ProjectConfig `yaml:"projects"`
}

// Defaults applied when a config file is absent or omits a field.
const (
	DefaultTimeoutMS       = 30_000
	DefaultExpectTimeoutMS = 5_000
	DefaultRetries         = 0
	DefaultGlobalTimeoutMS = 0 // 0 means "no global timeout"
)

// DefaultWorkers implements spec.md §4.D's default formula
// max(floor(cpu_count/2), 1), overridable via Config.Workers.
func DefaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// Load reads path (typically "<cwd>/tact.config.yaml") and returns the
// resolved Config, applying defaults for any field the file omits. A
// missing file is not an error: Load returns all-default Config.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := defaults()
	if y.TimeoutMS > 0 {
		cfg.Timeout = time.Duration(y.TimeoutMS) * time.Millisecond
	}
	if y.Expect.TimeoutMS > 0 {
		cfg.Expect.Timeout = time.Duration(y.Expect.TimeoutMS) * time.Millisecond
	}
	if y.Retries > 0 {
		cfg.Retries = y.Retries
	}
	if y.GlobalTimeoutMS > 0 {
		cfg.GlobalTimeout = time.Duration(y.GlobalTimeoutMS) * time.Millisecond
	}
	if y.Workers > 0 {
		cfg.Workers = y.Workers
	}
	if len(y.Projects) > 0 {
		cfg.Projects = y.Projects
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Timeout: DefaultTimeoutMS * time.Millisecond,
		Expect: ExpectConfig{
			Timeout: DefaultExpectTimeoutMS * time.Millisecond,
		},
		Retries:       DefaultRetries,
		GlobalTimeout: DefaultGlobalTimeoutMS * time.Millisecond,
		Workers:       DefaultWorkers(),
		Projects: []ProjectConfig{
			{Name: "default", TestMatch: "**/*_test.*"},
		},
	}
}

// Validate checks invariants Load cannot enforce per-field (spec.md §7:
// a malformed config is a fatal configuration error).
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	if c.Retries < 0 {
		return fmt.Errorf("config: retries must be >= 0, got %d", c.Retries)
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("config: at least one project is required")
	}
	for _, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("config: project name must not be empty")
		}
		if p.TestMatch == "" {
			return fmt.Errorf("config: project %q: testMatch must not be empty", p.Name)
		}
	}
	return nil
}

// DefaultPath returns the conventional config file location for a
// working directory.
func DefaultPath(cwd string) string {
	return filepath.Join(cwd, "tact.config.yaml")
}
