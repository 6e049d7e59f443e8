// Package config handles application configuration.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	// DataDir is the directory holding config.yaml and the default log file
	DataDir string `yaml:"-"`

	// Engine describes how to launch Neovim
	Engine Engine `yaml:"engine"`

	// LogFile receives structured logs; the terminal belongs to the UI
	LogFile string `yaml:"log_file"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// CompositeEscapeTimeout is the composite escape window in milliseconds
	CompositeEscapeTimeout int `yaml:"composite_escape_timeout"`

	// Keys contains keybinding configuration
	Keys KeyBindings `yaml:"keys"`

	// Theme contains status line colors
	Theme Theme `yaml:"theme"`
}

// Engine holds the Neovim command line.
type Engine struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// KeyBindings holds all configurable keybindings.
type KeyBindings struct {
	Quit            string `yaml:"quit"`
	Save            string `yaml:"save"`
	Toggle          string `yaml:"toggle"`
	Escape          string `yaml:"escape"`
	CompositeFirst  string `yaml:"composite_first"`
	CompositeSecond string `yaml:"composite_second"`
}

// Theme holds status line colors.
type Theme struct {
	StatusBarBg string `yaml:"statusbar_bg"`
	StatusBarFg string `yaml:"statusbar_fg"`
	InsertBg    string `yaml:"insert_bg"`
}

// Default returns a Config with default values.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		DataDir:                dataDir,
		Engine:                 Engine{Command: "nvim"},
		LogFile:                filepath.Join(dataDir, "nvbridge.log"),
		LogLevel:               "info",
		CompositeEscapeTimeout: 200,
		Keys:                   DefaultKeyBindings(),
		Theme:                  DefaultTheme(),
	}
}

// DefaultKeyBindings returns the default keybindings. Composite escape is
// off until both keys are configured.
func DefaultKeyBindings() KeyBindings {
	return KeyBindings{
		Quit:   "ctrl+q",
		Save:   "ctrl+s",
		Toggle: "ctrl+t",
		Escape: "esc",
	}
}

// DefaultTheme returns the default theme configuration.
func DefaultTheme() Theme {
	return Theme{
		StatusBarBg: "blue",
		StatusBarFg: "white",
		InsertBg:    "green",
	}
}

// Load loads configuration from the default config file, falling back to
// defaults.
func Load() (*Config, error) {
	return LoadFile(Default().ConfigFile())
}

// LoadFile loads configuration from path merged over the defaults. A missing
// file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.WrapPrefix(err, "read config", 0)
	}

	// Parse YAML into a temporary struct to merge with defaults
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, errors.WrapPrefix(err, "parse "+path, 0)
	}

	mergeConfig(cfg, &fileCfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeConfig merges file configuration into the default configuration.
// Only non-zero values from file are applied.
func mergeConfig(dst, src *Config) {
	if src.Engine.Command != "" {
		dst.Engine.Command = src.Engine.Command
	}
	if len(src.Engine.Args) > 0 {
		dst.Engine.Args = src.Engine.Args
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.CompositeEscapeTimeout != 0 {
		dst.CompositeEscapeTimeout = src.CompositeEscapeTimeout
	}

	mergeKeyBindings(&dst.Keys, &src.Keys)

	if src.Theme.StatusBarBg != "" {
		dst.Theme.StatusBarBg = src.Theme.StatusBarBg
	}
	if src.Theme.StatusBarFg != "" {
		dst.Theme.StatusBarFg = src.Theme.StatusBarFg
	}
	if src.Theme.InsertBg != "" {
		dst.Theme.InsertBg = src.Theme.InsertBg
	}
}

// mergeKeyBindings merges keybindings from src into dst.
func mergeKeyBindings(dst, src *KeyBindings) {
	if src.Quit != "" {
		dst.Quit = src.Quit
	}
	if src.Save != "" {
		dst.Save = src.Save
	}
	if src.Toggle != "" {
		dst.Toggle = src.Toggle
	}
	if src.Escape != "" {
		dst.Escape = src.Escape
	}
	if src.CompositeFirst != "" {
		dst.CompositeFirst = src.CompositeFirst
	}
	if src.CompositeSecond != "" {
		dst.CompositeSecond = src.CompositeSecond
	}
}

// EscapeWindow returns CompositeEscapeTimeout as a duration.
func (c *Config) EscapeWindow() time.Duration {
	return time.Duration(c.CompositeEscapeTimeout) * time.Millisecond
}

// Level returns the slog level named by LogLevel, or info when unset.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nvbridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nvbridge"
	}
	return filepath.Join(home, ".config", "nvbridge")
}

// ConfigFile returns the path to the config file.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "config.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
