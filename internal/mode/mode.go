// Package mode tracks the editing mode reported by the embedded Neovim engine.
package mode

// Mode represents the engine's current editing mode.
type Mode int

const (
	// ModeUnknown is used before the engine has reported anything.
	ModeUnknown Mode = iota
	// ModeNormal is the default mode for navigation and operators.
	ModeNormal
	// ModeInsert inserts typed text into the buffer.
	ModeInsert
	// ModeVisual covers charwise, linewise and blockwise visual mode.
	ModeVisual
	// ModeReplace overwrites existing text.
	ModeReplace
	// ModeCmdline is the ':' / '/' command line.
	ModeCmdline
	// ModeSelect covers the select-mode variants.
	ModeSelect
	// ModeTerminal is a terminal buffer in terminal-job mode.
	ModeTerminal
	// ModePending is a hit-enter or confirm prompt.
	ModePending
)

// String returns the human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeInsert:
		return "INSERT"
	case ModeVisual:
		return "VISUAL"
	case ModeReplace:
		return "REPLACE"
	case ModeCmdline:
		return "CMDLINE"
	case ModeSelect:
		return "SELECT"
	case ModeTerminal:
		return "TERMINAL"
	case ModePending:
		return "PENDING"
	default:
		return "UNKNOWN"
	}
}

// IsInsert returns true if typed text is inserted into the buffer.
func (m Mode) IsInsert() bool {
	return m == ModeInsert
}

// IsNormal returns true if the mode is normal mode.
func (m Mode) IsNormal() bool {
	return m == ModeNormal
}

// IsVisual returns true for any visual mode.
func (m Mode) IsVisual() bool {
	return m == ModeVisual
}

// Parse converts a short mode name as returned by Neovim's mode() into a Mode.
// Only the leading character decides, so "niI" (insert-normal via CTRL-O) is
// normal mode and "ic" / "ix" (completion) are insert mode.
func Parse(s string) Mode {
	if s == "" {
		return ModeUnknown
	}
	switch s[0] {
	case 'n':
		return ModeNormal
	case 'i':
		return ModeInsert
	case 'v', 'V', 0x16:
		return ModeVisual
	case 'R':
		return ModeReplace
	case 'c':
		return ModeCmdline
	case 's', 'S', 0x13:
		return ModeSelect
	case 't':
		return ModeTerminal
	case 'r':
		return ModePending
	default:
		return ModeUnknown
	}
}

// Status is the engine's answer to a mode query.
type Status struct {
	Mode Mode
	// Blocking is true when the engine is waiting for input that completes
	// a pending command (operator-pending, getchar(), a prompt).
	Blocking bool
}
