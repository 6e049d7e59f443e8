package app

import (
	"context"
	"strings"
	"sync"

	"github.com/go-errors/errors"

	"github.com/abdullathedruid/nvbridge/internal/docsync"
)

// ErrWrongDocument is returned when a line write targets another document.
var ErrWrongDocument = errors.New("buffer holds a different document")

// EditObserver is told about native edits made in the buffer.
type EditObserver interface {
	HostChanged(doc docsync.DocumentID, text string) error
	RecordInsert(text string)
	RecordDelete(n int)
}

// Buffer is the host editor's copy of one document. Native edits go through
// InsertText, DeleteLeft and ReplacePreviousChar; the engine's edits arrive
// through SetLines.
type Buffer struct {
	mu       sync.Mutex
	id       docsync.DocumentID
	lines    []string
	row, col int // col counts runes

	observer EditObserver
	onRedraw func()
}

// NewBuffer creates a buffer holding text with the cursor at the start.
func NewBuffer(id docsync.DocumentID, text string) *Buffer {
	lines := docsync.SplitLines(text)
	if len(lines) == 0 {
		lines = []string{""}
	}
	return &Buffer{id: id, lines: lines}
}

// Observe registers the observer of native edits.
func (b *Buffer) Observe(o EditObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// OnRedraw registers a function called after any change.
func (b *Buffer) OnRedraw(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRedraw = fn
}

// ID returns the document identifier.
func (b *Buffer) ID() docsync.DocumentID {
	return b.id
}

// ActiveDocument returns the buffer's document.
func (b *Buffer) ActiveDocument() (docsync.DocumentID, bool) {
	return b.id, true
}

// Text returns the document content, newline terminated.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return docsync.JoinLines(b.lines)
}

// Snapshot returns a copy of the lines and the cursor.
func (b *Buffer) Snapshot() (lines []string, row, col int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...), b.row, b.col
}

// Cursor returns the zero-based cursor row and rune column.
func (b *Buffer) Cursor() (row, col int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row, b.col
}

// ByteCursor returns the cursor with the column in bytes.
func (b *Buffer) ByteCursor() (row, col int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	runes := []rune(b.lines[b.row])
	return b.row, len(string(runes[:b.col]))
}

// SetByteCursor moves the cursor to a row and byte column, clamped to the
// document.
func (b *Buffer) SetByteCursor(row, col int) {
	b.mu.Lock()
	b.row = clamp(row, 0, len(b.lines)-1)
	line := b.lines[b.row]
	col = clamp(col, 0, len(line))
	b.col = len([]rune(line[:col]))
	redraw := b.onRedraw
	b.mu.Unlock()

	if redraw != nil {
		redraw()
	}
}

// MoveCursor moves the cursor by whole rows and runes, wrapping across line
// ends horizontally.
func (b *Buffer) MoveCursor(dRow, dCol int) {
	b.mu.Lock()
	b.row = clamp(b.row+dRow, 0, len(b.lines)-1)
	n := len([]rune(b.lines[b.row]))
	b.col = min(b.col, n)

	switch {
	case dCol < 0 && b.col == 0 && b.row > 0:
		b.row--
		b.col = len([]rune(b.lines[b.row]))
	case dCol > 0 && b.col == n && b.row < len(b.lines)-1:
		b.row++
		b.col = 0
	default:
		b.col = clamp(b.col+dCol, 0, n)
	}
	redraw := b.onRedraw
	b.mu.Unlock()

	if redraw != nil {
		redraw()
	}
}

// InsertText inserts text at the cursor. Newlines split the line.
func (b *Buffer) InsertText(text string) error {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	b.mu.Lock()
	b.insertLocked(text)
	b.mu.Unlock()

	b.changed(text, 0)
	return nil
}

func (b *Buffer) insertLocked(text string) {
	runes := []rune(b.lines[b.row])
	head, tail := string(runes[:b.col]), string(runes[b.col:])

	parts := strings.Split(text, "\n")
	if len(parts) == 1 {
		b.lines[b.row] = head + text + tail
		b.col += len([]rune(text))
		return
	}

	last := parts[len(parts)-1]
	inserted := make([]string, len(parts))
	inserted[0] = head + parts[0]
	copy(inserted[1:], parts[1:])
	inserted[len(parts)-1] = last + tail

	b.lines = append(b.lines[:b.row], append(inserted, b.lines[b.row+1:]...)...)
	b.row += len(parts) - 1
	b.col = len([]rune(last))
}

// DeleteLeft removes the character before the cursor, joining lines at a
// line start.
func (b *Buffer) DeleteLeft() error {
	b.mu.Lock()
	deleted := b.deleteLeftLocked(1)
	b.mu.Unlock()

	if deleted > 0 {
		b.changed("", deleted)
	}
	return nil
}

func (b *Buffer) deleteLeftLocked(n int) int {
	deleted := 0
	for ; deleted < n; deleted++ {
		if b.col > 0 {
			runes := []rune(b.lines[b.row])
			b.lines[b.row] = string(runes[:b.col-1]) + string(runes[b.col:])
			b.col--
			continue
		}
		if b.row == 0 {
			break
		}
		prev := b.lines[b.row-1]
		b.col = len([]rune(prev))
		b.lines[b.row-1] = prev + b.lines[b.row]
		b.lines = append(b.lines[:b.row], b.lines[b.row+1:]...)
		b.row--
	}
	return deleted
}

// ReplacePreviousChar replaces the n characters before the cursor with text.
func (b *Buffer) ReplacePreviousChar(text string, n int) error {
	b.mu.Lock()
	deleted := b.deleteLeftLocked(max(n, 0))
	if text != "" {
		b.insertLocked(text)
	}
	b.mu.Unlock()

	b.changed(text, deleted)
	return nil
}

// SetLines replaces lines [start, end) with lines. It is how engine edits
// land, so observers are not told.
func (b *Buffer) SetLines(ctx context.Context, doc docsync.DocumentID, start, end int, lines []string) error {
	if doc != b.id {
		return ErrWrongDocument
	}

	b.mu.Lock()
	start = clamp(start, 0, len(b.lines))
	end = clamp(end, start, len(b.lines))

	next := make([]string, 0, len(b.lines)-(end-start)+len(lines))
	next = append(next, b.lines[:start]...)
	next = append(next, lines...)
	next = append(next, b.lines[end:]...)
	if len(next) == 0 {
		next = []string{""}
	}
	b.lines = next

	b.row = clamp(b.row, 0, len(b.lines)-1)
	b.col = min(b.col, len([]rune(b.lines[b.row])))
	redraw := b.onRedraw
	b.mu.Unlock()

	if redraw != nil {
		redraw()
	}
	return nil
}

// changed reports a native edit. It runs without b.mu held.
func (b *Buffer) changed(inserted string, deleted int) {
	b.mu.Lock()
	observer, redraw := b.observer, b.onRedraw
	text := docsync.JoinLines(b.lines)
	b.mu.Unlock()

	if observer != nil {
		if deleted > 0 {
			observer.RecordDelete(deleted)
		}
		if inserted != "" {
			observer.RecordInsert(inserted)
		}
		// Only fails for untracked documents, which have nothing to sync.
		_ = observer.HostChanged(b.id, text)
	}
	if redraw != nil {
		redraw()
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
