package input

// Composition accumulates IME composition text. The text is only handed out
// once, when the composition ends, so the engine never sees partial
// candidates. It is not safe for concurrent use; the Router guards it.
type Composition struct {
	active bool
	text   []rune
}

// Start begins a composition.
func (c *Composition) Start() {
	c.active = true
}

// Active returns true between Start and End.
func (c *Composition) Active() bool {
	return c.active
}

// Text returns the accumulated text.
func (c *Composition) Text() string {
	return string(c.text)
}

// Append adds typed text. Ignored outside a composition.
func (c *Composition) Append(text string) {
	if !c.active {
		return
	}
	c.text = append(c.text, []rune(text)...)
}

// Replace drops the last n characters and appends text, the way an IME
// revises its candidate.
func (c *Composition) Replace(text string, n int) {
	if !c.active {
		return
	}
	if n < 0 {
		n = 0
	}
	if n > len(c.text) {
		n = len(c.text)
	}
	c.text = append(c.text[:len(c.text)-n], []rune(text)...)
}

// End finishes the composition and returns the accumulated text. The text is
// cleared whether or not the caller uses it.
func (c *Composition) End() string {
	text := string(c.text)
	c.text = nil
	c.active = false
	return text
}
