package config

import (
	"strings"

	"github.com/jesseduffield/gocui"
)

var colorMap = map[string]gocui.Attribute{
	"default": gocui.ColorDefault,
	"black":   gocui.ColorBlack,
	"red":     gocui.ColorRed,
	"green":   gocui.ColorGreen,
	"yellow":  gocui.ColorYellow,
	"blue":    gocui.ColorBlue,
	"magenta": gocui.ColorMagenta,
	"cyan":    gocui.ColorCyan,
	"white":   gocui.ColorWhite,
}

// Color returns the gocui attribute for a color name, or ColorDefault.
func Color(name string) gocui.Attribute {
	if c, ok := colorMap[strings.ToLower(name)]; ok {
		return c
	}
	return gocui.ColorDefault
}
