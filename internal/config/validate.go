package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// Validate checks a merged configuration.
func Validate(cfg *Config) error {
	if err := ValidateKeys(&cfg.Keys); err != nil {
		return err
	}

	if (cfg.Keys.CompositeFirst == "") != (cfg.Keys.CompositeSecond == "") {
		return fmt.Errorf("composite_first and composite_second must be set together")
	}

	if cfg.CompositeEscapeTimeout < 0 {
		return fmt.Errorf("composite_escape_timeout must not be negative: %d", cfg.CompositeEscapeTimeout)
	}

	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
		}
	}

	for name, color := range map[string]string{
		"statusbar_bg": cfg.Theme.StatusBarBg,
		"statusbar_fg": cfg.Theme.StatusBarFg,
		"insert_bg":    cfg.Theme.InsertBg,
	} {
		if color != "" && !ValidateColor(color) {
			return fmt.Errorf("invalid color for %s: %q", name, color)
		}
	}

	return nil
}

// ValidateKeys checks for duplicate keybindings and invalid key strings.
// The composite escape keys may coincide with each other ("jj").
func ValidateKeys(keys *KeyBindings) error {
	// Build a map of key -> action names for duplicate detection
	keyMap := make(map[string][]string)

	v := reflect.ValueOf(keys).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldName := t.Field(i).Name

		if field.Kind() != reflect.String {
			continue
		}

		keyStr := field.String()
		if keyStr == "" {
			continue
		}

		key, err := ParseKey(keyStr)
		if err != nil {
			return fmt.Errorf("invalid key for %s: %w", fieldName, err)
		}

		if fieldName == "CompositeSecond" && keyStr == keys.CompositeFirst {
			continue
		}

		// Normalize so aliases like "esc" and "escape" collide
		normalizedKey := key.String()
		keyMap[normalizedKey] = append(keyMap[normalizedKey], fieldName)
	}

	var duplicates []string
	for key, actions := range keyMap {
		if len(actions) > 1 {
			duplicates = append(duplicates, fmt.Sprintf("key %q is used by: %s", key, strings.Join(actions, ", ")))
		}
	}

	if len(duplicates) > 0 {
		return fmt.Errorf("duplicate keybindings found:\n  %s", strings.Join(duplicates, "\n  "))
	}

	return nil
}

// ValidateColor checks if a color string is valid for gocui.
func ValidateColor(color string) bool {
	_, ok := colorMap[strings.ToLower(color)]
	return ok
}
