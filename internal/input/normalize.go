package input

import "strings"

var (
	literalReplacer = strings.NewReplacer(
		"<", "<LT>",
		"\r\n", "<CR>",
		"\n", "<CR>",
		"\r", "<CR>",
	)
	markerReplacer = strings.NewReplacer("<", "<LT>")
)

// Normalize converts typed text into Neovim key notation for nvim_input.
// A '<' always becomes "<LT>" so typed text is never read as a key name.
// When literal is set, line breaks become "<CR>"; replayed text keeps them
// as raw characters.
func Normalize(text string, literal bool) string {
	if literal {
		return literalReplacer.Replace(text)
	}
	return markerReplacer.Replace(text)
}
