// Package config provides configuration loading and management for pydep.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pydep configuration
type Config struct {
	Project    ProjectConfig    `yaml:"project"`
	SearchPath SearchPathConfig `yaml:"search_path"`
	Database   DatabaseConfig   `yaml:"database"`
	Redo       RedoConfig       `yaml:"redo"`
	Python     PythonConfig     `yaml:"python"`
	Index      IndexConfig      `yaml:"index"`
	Discover   DiscoverConfig   `yaml:"discover"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ProjectConfig locates the project
type ProjectConfig struct {
	// Root is the project root (auto-detected from git if empty)
	Root string `yaml:"root"`
}

// SearchPathConfig configures module resolution
type SearchPathConfig struct {
	// Env is the colon-separated variable read when Dirs is empty
	Env string `yaml:"env"`
	// Dirs overrides the environment when non-empty
	Dirs []string `yaml:"dirs"`
}

// DatabaseConfig configures the module-source database
type DatabaseConfig struct {
	// Path is the badger directory (default: <root>/build/db/py_source)
	Path string `yaml:"path"`
	// InMemory keeps the database in memory, for one-shot runs
	InMemory bool `yaml:"in_memory"`
}

// RedoConfig configures the rebuild primitive
type RedoConfig struct {
	// Command is the rebuild command; targets are appended
	Command string `yaml:"command"`
	// Timeout bounds one rebuild batch (0 = no limit)
	Timeout time.Duration `yaml:"timeout"`
}

// PythonConfig describes the interpreter
type PythonConfig struct {
	// Interpreter runs scripts for "pydep run"
	Interpreter string `yaml:"interpreter"`
	// Builtins are module names compiled into the interpreter
	Builtins []string `yaml:"builtins"`
}

// IndexConfig configures database population
type IndexConfig struct {
	// Patterns are doublestar globs of redo rules producing Python modules
	Patterns []string `yaml:"patterns"`
	// Manifests are YAML files listing module sources
	Manifests []string `yaml:"manifests"`
}

// DiscoverConfig tunes dependency discovery
type DiscoverConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultBuiltins are the modules compiled into a typical CPython 3 build.
var DefaultBuiltins = []string{
	"_abc", "_ast", "_codecs", "_collections", "_functools", "_imp", "_io",
	"_locale", "_operator", "_signal", "_sre", "_stat", "_string", "_symtable",
	"_thread", "_tokenize", "_tracemalloc", "_typing", "_warnings", "_weakref",
	"atexit", "builtins", "errno", "faulthandler", "gc", "itertools", "marshal",
	"posix", "pwd", "sys", "time", "xxsubtype",
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SearchPath: SearchPathConfig{
			Env: "PYTHONPATH",
		},
		Redo: RedoConfig{
			Command: "redo-ifchange",
		},
		Python: PythonConfig{
			Interpreter: "python",
			Builtins:    append([]string(nil), DefaultBuiltins...),
		},
		Index: IndexConfig{
			Patterns: []string{"**/*.py.do"},
		},
		Discover: DiscoverConfig{
			CacheSize: 1024,
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.SearchPath.Env == "" {
		return fmt.Errorf("search_path.env is required")
	}
	if c.Redo.Command == "" {
		return fmt.Errorf("redo.command is required")
	}
	if c.Redo.Timeout < 0 {
		return fmt.Errorf("redo.timeout must not be negative")
	}
	if c.Python.Interpreter == "" {
		return fmt.Errorf("python.interpreter is required")
	}
	if c.Discover.CacheSize <= 0 {
		return fmt.Errorf("discover.cache_size must be positive")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// DatabasePath returns the database directory, defaulting to
// build/db/py_source under the project root.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Project.Root, "build", "db", "py_source")
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Project.Root != "" {
		c.Project.Root = other.Project.Root
	}

	// Search path
	if other.SearchPath.Env != "" {
		c.SearchPath.Env = other.SearchPath.Env
	}
	if len(other.SearchPath.Dirs) > 0 {
		c.SearchPath.Dirs = other.SearchPath.Dirs
	}

	// Database
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.InMemory {
		c.Database.InMemory = true
	}

	// Redo
	if other.Redo.Command != "" {
		c.Redo.Command = other.Redo.Command
	}
	if other.Redo.Timeout != 0 {
		c.Redo.Timeout = other.Redo.Timeout
	}

	// Python
	if other.Python.Interpreter != "" {
		c.Python.Interpreter = other.Python.Interpreter
	}
	if len(other.Python.Builtins) > 0 {
		c.Python.Builtins = other.Python.Builtins
	}

	// Index
	if len(other.Index.Patterns) > 0 {
		c.Index.Patterns = other.Index.Patterns
	}
	if len(other.Index.Manifests) > 0 {
		c.Index.Manifests = other.Index.Manifests
	}

	if other.Discover.CacheSize != 0 {
		c.Discover.CacheSize = other.Discover.CacheSize
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
