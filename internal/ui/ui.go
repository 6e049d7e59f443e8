// Package ui renders the status line and text helpers for the host editor.
package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/abdullathedruid/nvbridge/internal/mode"
)

const separator = " │ "

// Status is everything the status line shows.
type Status struct {
	Mode      mode.Mode
	Enabled   bool
	Recording bool
	State     string // router transition state
	Pending   string // keys buffered during a transition
	Composing string
	Document  string
	Line, Col int // zero based
	Version   string
	Message   string
}

// ModeLabel returns the label for the mode segment.
func ModeLabel(s Status) string {
	if !s.Enabled {
		return "OFF"
	}
	label := s.Mode.String()
	if s.Recording {
		label += " REC"
	}
	return label
}

// RenderStatusLine lays out the status line in exactly width cells.
func RenderStatusLine(s Status, width int) string {
	left := []string{" " + ModeLabel(s)}
	if s.Document != "" {
		left = append(left, fmt.Sprintf("%s %d:%d", s.Document, s.Line+1, s.Col+1))
	}
	if s.Message != "" {
		left = append(left, s.Message)
	}

	var right []string
	if s.State != "" && s.State != "idle" {
		right = append(right, s.State)
	}
	if s.Pending != "" {
		right = append(right, "pending:"+visible(s.Pending))
	}
	if s.Composing != "" {
		right = append(right, "compose:"+s.Composing)
	}
	if s.Version != "" {
		right = append(right, s.Version+" ")
	}

	l := strings.Join(left, separator)
	r := strings.Join(right, separator)

	rw := runewidth.StringWidth(r)
	if rw >= width {
		return PadRight(l, width)
	}
	return PadRight(Truncate(l, width-rw-1), width-rw) + r
}

// visible makes control characters in buffered keys readable.
func visible(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			sb.WriteString("⏎")
		case r == '\t':
			sb.WriteString("⇥")
		case r < 0x20:
			sb.WriteString("^")
			sb.WriteRune(r + '@')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// DisplayColumn returns the cell column of rune index col in line.
func DisplayColumn(line string, col int) int {
	runes := []rune(line)
	if col > len(runes) {
		col = len(runes)
	}
	return runewidth.StringWidth(string(runes[:col]))
}

// Truncate shortens a string to fit in the given width.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// PadRight pads a string to the right.
func PadRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return runewidth.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// HelpText returns the one-line key reminder shown at startup.
func HelpText(quit, toggle, escape string) string {
	return fmt.Sprintf("%s:quit  %s:toggle bridge  %s:normal mode", quit, toggle, escape)
}
