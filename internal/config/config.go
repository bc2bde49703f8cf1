// Package config loads and validates the optional .shellout YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file looked up by Load.
const FileName = ".shellout"

// Default values for the runner and its surfaces.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultHistory   = 20
	DefaultRateLimit = 10 // requests per second on the HTTP transport
	DefaultBurst     = 20
)

// Pipeline modes.
const (
	Sequential = "sequential"
	Parallel   = "parallel"
)

// Config holds the parsed .shellout configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version   int                 `yaml:"version"`
	LogLevel  string              `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string              `yaml:"log_format"` // text or json
	MaxOutput int                 `yaml:"max_output"` // bytes per stream; 0 = unlimited
	History   int                 `yaml:"history"`    // run records kept in memory
	HTTP      HTTPConfig          `yaml:"http"`
	Commands  map[string]Command  `yaml:"commands"`
	Pipelines map[string]Pipeline `yaml:"pipelines"`
}

// Command is a named process invocation.
type Command struct {
	Executable  string   `yaml:"executable"` // absolute path, file:// URL, path relative to the config root, or a name found on PATH
	Dir         string   `yaml:"dir"`        // relative paths resolve against the config root
	Input       *string  `yaml:"input"`      // written to stdin when set
	Args        []string `yaml:"args"`
	Description string   `yaml:"description"`
}

// Pipeline runs a list of named commands.
type Pipeline struct {
	Steps       []string `yaml:"steps"`
	Mode        string   `yaml:"mode"` // sequential (default) or parallel
	Description string   `yaml:"description"`
}

// HTTPConfig controls the MCP HTTP transport.
type HTTPConfig struct {
	RateLimit float64 `yaml:"rate_limit"` // requests per second; negative disables limiting
	Burst     int     `yaml:"burst"`
}

// Level returns the configured log level or the default.
func (c *Config) Level() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return DefaultLogLevel
}

// Format returns the configured log format or the default.
func (c *Config) Format() string {
	if c.LogFormat != "" {
		return c.LogFormat
	}
	return DefaultLogFormat
}

// MaxOutputBytes returns the per-stream output cap. Zero means unlimited.
func (c *Config) MaxOutputBytes() int {
	if c.MaxOutput > 0 {
		return c.MaxOutput
	}
	return 0
}

// HistorySize returns how many run records are cached in memory.
func (c *Config) HistorySize() int {
	if c.History > 0 {
		return c.History
	}
	return DefaultHistory
}

// RateLimit returns the HTTP request rate and burst. A rate of zero
// means unlimited.
func (c *Config) RateLimit() (float64, int) {
	switch {
	case c.HTTP.RateLimit < 0:
		return 0, 0
	case c.HTTP.RateLimit == 0:
		return DefaultRateLimit, DefaultBurst
	}
	burst := c.HTTP.Burst
	if burst <= 0 {
		burst = int(c.HTTP.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}
	return c.HTTP.RateLimit, burst
}

// ModeOrDefault returns the pipeline mode, falling back to sequential.
func (p Pipeline) ModeOrDefault() string {
	if p.Mode != "" {
		return p.Mode
	}
	return Sequential
}

// CommandNames returns the configured command names in sorted order.
func (c *Config) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PipelineNames returns the configured pipeline names in sorted order.
func (c *Config) PipelineNames() []string {
	names := make([]string, 0, len(c.Pipelines))
	for name := range c.Pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every command has an executable, that pipelines
// only name known commands, and that modes and log settings are known.
func (c *Config) Validate() error {
	switch c.Format() {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q: want text or json", c.LogFormat)
	}
	if c.MaxOutput < 0 {
		return fmt.Errorf("max_output must not be negative")
	}
	for _, name := range c.CommandNames() {
		if c.Commands[name].Executable == "" {
			return fmt.Errorf("command %q: executable is required", name)
		}
	}
	for _, name := range c.PipelineNames() {
		p := c.Pipelines[name]
		if len(p.Steps) == 0 {
			return fmt.Errorf("pipeline %q: no steps", name)
		}
		switch p.ModeOrDefault() {
		case Sequential, Parallel:
		default:
			return fmt.Errorf("pipeline %q: unknown mode %q", name, p.Mode)
		}
		for _, step := range p.Steps {
			if _, ok := c.Commands[step]; !ok {
				return fmt.Errorf("pipeline %q: unknown command %q", name, step)
			}
		}
	}
	return nil
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .shellout; falls back to the start dir
	Path   string // path of the file that was read; empty if none
}

// Load finds the .shellout file by walking upward from dir and parses
// it. If no file exists, a default Config rooted at dir is returned.
// Relative command directories are resolved against the file's directory.
func Load(dir string) (*LoadResult, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	path, err := find(dir)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: dir}, nil
	}
	return LoadFile(path)
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*LoadResult, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}

	root := filepath.Dir(path)
	for name, cmd := range cfg.Commands {
		if cmd.Dir != "" && !filepath.IsAbs(cmd.Dir) {
			cmd.Dir = filepath.Join(root, cmd.Dir)
		}
		if isRelativePath(cmd.Executable) {
			cmd.Executable = filepath.Join(root, cmd.Executable)
		}
		cfg.Commands[name] = cmd
	}
	return &LoadResult{Config: cfg, Root: root, Path: path}, nil
}

// isRelativePath reports whether exe is a relative path rather than an
// absolute path, a file:// URL or a bare name to look up on PATH.
func isRelativePath(exe string) bool {
	if exe == "" || filepath.IsAbs(exe) || strings.HasPrefix(exe, "file:") {
		return false
	}
	return strings.ContainsRune(exe, filepath.Separator) || strings.Contains(exe, "/")
}

// find walks upward from dir looking for a .shellout file.
func find(dir string) (string, error) {
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
