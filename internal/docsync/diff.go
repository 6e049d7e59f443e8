package docsync

import (
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// Hunk replaces the zero-based line range [Start, End) of the old text with
// Lines.
type Hunk struct {
	Start int
	End   int
	Lines []string
}

// LineHunks returns the hunks that turn before into after. Hunks are in
// ascending order and refer to line numbers of before, so they must be applied
// last to first.
func LineHunks(before, after string) []Hunk {
	// Line buffers cannot tell "a\nb" from "a\nb\n".
	before, after = terminate(before), terminate(after)
	if before == after {
		return nil
	}

	edits := myers.ComputeEdits(span.URIFromPath("document"), before, after)
	unified := gotextdiff.ToUnified("engine", "host", before, edits)

	hunks := make([]Hunk, 0, len(unified.Hunks))
	for _, h := range unified.Hunks {
		start := h.FromLine - 1
		if start < 0 {
			start = 0
		}
		removed := 0
		lines := []string{}
		for _, l := range h.Lines {
			switch l.Kind {
			case gotextdiff.Delete:
				removed++
			case gotextdiff.Insert:
				lines = append(lines, strings.TrimSuffix(l.Content, "\n"))
			default:
				removed++
				lines = append(lines, strings.TrimSuffix(l.Content, "\n"))
			}
		}
		hunks = append(hunks, Hunk{Start: start, End: start + removed, Lines: lines})
	}
	return hunks
}

func terminate(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// SplitLines splits text the way a line-based buffer stores it: a trailing
// newline does not start an extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines is the inverse of SplitLines for newline-terminated text.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
