package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Engine.Command != "nvim" {
		t.Errorf("Engine.Command = %q, want 'nvim'", cfg.Engine.Command)
	}

	if cfg.CompositeEscapeTimeout != 200 {
		t.Errorf("CompositeEscapeTimeout = %d, want 200", cfg.CompositeEscapeTimeout)
	}

	if cfg.EscapeWindow() != 200*time.Millisecond {
		t.Errorf("EscapeWindow() = %v, want 200ms", cfg.EscapeWindow())
	}

	if cfg.Keys.CompositeFirst != "" || cfg.Keys.CompositeSecond != "" {
		t.Error("composite escape should be disabled by default")
	}

	if !strings.HasSuffix(cfg.LogFile, "nvbridge.log") {
		t.Errorf("LogFile = %q, want it to end with 'nvbridge.log'", cfg.LogFile)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(Default()) error = %v", err)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir := defaultDataDir()
	if dir != "/custom/config/nvbridge" {
		t.Errorf("with XDG_CONFIG_HOME: got %q, want '/custom/config/nvbridge'", dir)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	dir = defaultDataDir()
	if !strings.HasSuffix(dir, ".config/nvbridge") {
		t.Errorf("without XDG_CONFIG_HOME: got %q, expected to end with '.config/nvbridge'", dir)
	}
}

func TestConfigFile(t *testing.T) {
	cfg := &Config{
		DataDir: "/test/data",
	}

	if got := cfg.ConfigFile(); got != "/test/data/config.yaml" {
		t.Errorf("ConfigFile() = %q, want %q", got, "/test/data/config.yaml")
	}
}

func TestEnsureDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "nvbridge-test", "data")

	cfg := &Config{
		DataDir: dataDir,
	}

	if err := cfg.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir() error: %v", err)
	}

	info, err := os.Stat(dataDir)
	if err != nil {
		t.Fatalf("data dir does not exist: %v", err)
	}
	if !info.IsDir() {
		t.Error("data dir is not a directory")
	}

	// Should be idempotent
	if err := cfg.EnsureDataDir(); err != nil {
		t.Errorf("second EnsureDataDir() error: %v", err)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.input}
		if got := cfg.Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"composite pair", func(c *Config) { c.Keys.CompositeFirst, c.Keys.CompositeSecond = "j", "k" }, false},
		{"composite same key", func(c *Config) { c.Keys.CompositeFirst, c.Keys.CompositeSecond = "j", "j" }, false},
		{"composite half set", func(c *Config) { c.Keys.CompositeFirst = "j" }, true},
		{"negative timeout", func(c *Config) { c.CompositeEscapeTimeout = -1 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad color", func(c *Config) { c.Theme.InsertBg = "mauve" }, true},
		{"escape alias clash", func(c *Config) { c.Keys.Toggle = "escape" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestColor(t *testing.T) {
	if !ValidateColor("Blue") {
		t.Error("ValidateColor(Blue) = false, want true")
	}
	if ValidateColor("mauve") {
		t.Error("ValidateColor(mauve) = true, want false")
	}
	if Color("mauve") != Color("default") {
		t.Error("unknown colors should map to the default color")
	}
}
