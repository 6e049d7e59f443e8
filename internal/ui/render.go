package ui

import (
	"fmt"
	"strings"

	"github.com/jesseduffield/gocui"
)

// EditorStyle selects the editor frame look.
type EditorStyle struct {
	Title    string
	Insert   bool
	Enabled  bool
	InsertFg gocui.Attribute
}

// ConfigureEditorView sets up the editor view with proper styling. The frame
// is heavy and colored while the bridge is enabled.
func ConfigureEditorView(v *gocui.View, style EditorStyle) {
	v.Title = fmt.Sprintf(" %s ", style.Title)
	if style.Enabled {
		v.FrameRunes = []rune{'━', '┃', '┏', '┓', '┗', '┛'}
		if style.Insert {
			v.FrameColor = style.InsertFg
		} else {
			v.FrameColor = gocui.ColorBlue
		}
	} else {
		v.FrameRunes = []rune{'─', '│', '┌', '┐', '└', '┘'}
		v.FrameColor = gocui.ColorDefault
	}
	v.Frame = true
	v.Wrap = false
	v.Editable = true
}

// RenderLines writes the document into v.
func RenderLines(v *gocui.View, lines []string) {
	v.Clear()
	fmt.Fprint(v, strings.Join(lines, "\n"))
}

// ConfigureStatusView sets up the single-line status view.
func ConfigureStatusView(v *gocui.View, bg, fg gocui.Attribute) {
	v.Frame = false
	v.Wrap = false
	v.BgColor = bg
	v.FgColor = fg | gocui.AttrBold
}
