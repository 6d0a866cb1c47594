package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SearchPath.Env != "PYTHONPATH" {
		t.Errorf("expected default env PYTHONPATH, got %s", cfg.SearchPath.Env)
	}
	if cfg.Redo.Command != "redo-ifchange" {
		t.Errorf("expected default redo command redo-ifchange, got %s", cfg.Redo.Command)
	}
	if cfg.Python.Interpreter != "python" {
		t.Errorf("expected default interpreter python, got %s", cfg.Python.Interpreter)
	}
	if cfg.Discover.CacheSize != 1024 {
		t.Errorf("expected default cache size 1024, got %d", cfg.Discover.CacheSize)
	}
	if len(cfg.Index.Patterns) != 1 || cfg.Index.Patterns[0] != "**/*.py.do" {
		t.Errorf("expected default index pattern **/*.py.do, got %v", cfg.Index.Patterns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing search path env",
			modify:  func(c *Config) { c.SearchPath.Env = "" },
			wantErr: true,
		},
		{
			name:    "missing redo command",
			modify:  func(c *Config) { c.Redo.Command = "" },
			wantErr: true,
		},
		{
			name:    "negative redo timeout",
			modify:  func(c *Config) { c.Redo.Timeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "missing interpreter",
			modify:  func(c *Config) { c.Python.Interpreter = "" },
			wantErr: true,
		},
		{
			name:    "zero cache size",
			modify:  func(c *Config) { c.Discover.CacheSize = 0 },
			wantErr: true,
		},
		{
			name:    "negative debounce",
			modify:  func(c *Config) { c.Watch.Debounce = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
project:
  root: "/test/project"
search_path:
  env: "MYPATH"
  dirs:
    - /lib/a
    - /lib/b
database:
  path: "/test/db"
redo:
  command: "redo-ifchange -v"
  timeout: 10m
python:
  interpreter: "python3"
index:
  manifests:
    - modules.yaml
watch:
  debounce: 500ms
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Project.Root != "/test/project" {
		t.Errorf("expected root /test/project, got %s", cfg.Project.Root)
	}
	if cfg.SearchPath.Env != "MYPATH" {
		t.Errorf("expected env MYPATH, got %s", cfg.SearchPath.Env)
	}
	if len(cfg.SearchPath.Dirs) != 2 {
		t.Errorf("expected 2 search path dirs, got %d", len(cfg.SearchPath.Dirs))
	}
	if cfg.Redo.Command != "redo-ifchange -v" {
		t.Errorf("expected redo command 'redo-ifchange -v', got %s", cfg.Redo.Command)
	}
	if cfg.Redo.Timeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Redo.Timeout)
	}
	if cfg.Python.Interpreter != "python3" {
		t.Errorf("expected interpreter python3, got %s", cfg.Python.Interpreter)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce 500ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.DatabasePath() != "/test/db" {
		t.Errorf("expected database path /test/db, got %s", cfg.DatabasePath())
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("redo: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Redo: RedoConfig{
			Command: "my-redo",
		},
		Database: DatabaseConfig{
			InMemory: true,
		},
		Project: ProjectConfig{
			Root: "/override/path",
		},
	}

	base.Merge(override)

	if base.Redo.Command != "my-redo" {
		t.Errorf("expected redo command my-redo, got %s", base.Redo.Command)
	}
	// Interpreter should remain from base since override didn't set it
	if base.Python.Interpreter != "python" {
		t.Errorf("expected interpreter to remain default, got %s", base.Python.Interpreter)
	}
	if base.Project.Root != "/override/path" {
		t.Errorf("expected root /override/path, got %s", base.Project.Root)
	}
	if !base.Database.InMemory {
		t.Error("expected in-memory database")
	}

	base.Merge(nil)
}

func TestDatabasePathDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Project.Root = "/proj"
	if got := cfg.DatabasePath(); got != "/proj/build/db/py_source" {
		t.Errorf("DatabasePath() = %s, want /proj/build/db/py_source", got)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Python.Interpreter = "pypy3"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Python.Interpreter != "pypy3" {
		t.Errorf("expected interpreter pypy3, got %s", loaded.Python.Interpreter)
	}
	if loaded.Watch.Debounce != 200*time.Millisecond {
		t.Errorf("expected debounce 200ms, got %v", loaded.Watch.Debounce)
	}
}
