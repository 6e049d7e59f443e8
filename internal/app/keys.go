package app

import (
	"context"

	"github.com/jesseduffield/gocui"

	"github.com/abdullathedruid/nvbridge/internal/config"
	"github.com/abdullathedruid/nvbridge/internal/input"
)

type keyEvent struct {
	key gocui.Key
	ch  rune
	mod gocui.Modifier
}

type bindings struct {
	quit            config.Key
	save            config.Key
	toggle          config.Key
	escape          config.Key
	compositeFirst  config.Key
	compositeSecond config.Key
}

func newBindings(k config.KeyBindings) bindings {
	return bindings{
		quit:            config.MustParseKey(k.Quit),
		save:            config.MustParseKey(k.Save),
		toggle:          config.MustParseKey(k.Toggle),
		escape:          config.MustParseKey(k.Escape),
		compositeFirst:  config.MustParseKey(k.CompositeFirst),
		compositeSecond: config.MustParseKey(k.CompositeSecond),
	}
}

// engineKeys maps special keys to Neovim key notation.
var engineKeys = map[gocui.Key]string{
	gocui.KeyBackspace:  "<BS>",
	gocui.KeyBackspace2: "<BS>",
	gocui.KeyDelete:     "<Del>",
	gocui.KeyArrowUp:    "<Up>",
	gocui.KeyArrowDown:  "<Down>",
	gocui.KeyArrowLeft:  "<Left>",
	gocui.KeyArrowRight: "<Right>",
	gocui.KeyHome:       "<Home>",
	gocui.KeyEnd:        "<End>",
	gocui.KeyPgup:       "<PageUp>",
	gocui.KeyPgdn:       "<PageDown>",
}

// edit is the editor view's gocui.EditorFunc. Keys are queued so the router
// sees them in order without blocking the UI loop.
func (a *App) edit(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	select {
	case a.keys <- keyEvent{key: key, ch: ch, mod: mod}:
	case <-a.ctx.Done():
	}
	return true
}

func (a *App) processKeys() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev := <-a.keys:
			if err := a.handleKey(a.ctx, ev); err != nil {
				a.logger.Warn("key failed", "key", ev.key, "ch", ev.ch, "err", err)
				a.setMessage(err.Error())
			}
			a.requestRefresh()
		}
	}
}

// handleKey dispatches one key: bindings first, then text, then keys the
// host can handle natively while it owns the buffer.
func (a *App) handleKey(ctx context.Context, ev keyEvent) error {
	a.mu.RLock()
	b := a.bindings
	a.mu.RUnlock()

	switch {
	case b.quit.Matches(ev.key, ev.ch):
		a.quit()
		return nil
	case b.save.Matches(ev.key, ev.ch):
		if err := a.save(); err != nil {
			return err
		}
		a.setMessage("written " + a.title())
		return nil
	case b.toggle.Matches(ev.key, ev.ch):
		if a.router.Toggle() {
			a.setMessage("bridge on")
		} else {
			a.setMessage("bridge off")
		}
		return nil
	case b.escape.Matches(ev.key, ev.ch):
		return a.router.Escape(ctx, input.DefaultEscapeKey)
	}

	if ev.ch != 0 && a.modes.Enabled() && a.modes.IsInsertMode() {
		switch {
		case b.compositeFirst.Matches(ev.key, ev.ch):
			return a.router.CompositeEscapeFirstKey(ctx, string(ev.ch))
		case b.compositeSecond.Matches(ev.key, ev.ch):
			return a.router.CompositeEscapeSecondKey(ctx, string(ev.ch))
		}
	}

	if ev.ch != 0 {
		return a.router.Type(ctx, string(ev.ch))
	}

	switch ev.key {
	case gocui.KeySpace:
		return a.router.Type(ctx, " ")
	case gocui.KeyEnter:
		return a.router.Type(ctx, "\n")
	case gocui.KeyTab:
		return a.router.Type(ctx, "\t")
	}

	if a.native() {
		return a.nativeKey(ev.key)
	}

	if keys, ok := engineKeys[ev.key]; ok {
		return a.router.SendBlocking(ctx, keys)
	}
	if letter, ok := config.CtrlLetter(ev.key); ok {
		return a.router.SendBlocking(ctx, "<C-"+letter+">")
	}
	return nil
}

// native reports whether the host edits the buffer itself: the bridge is off,
// or typing in insert mode has released interception.
func (a *App) native() bool {
	if !a.modes.Enabled() {
		return true
	}
	return a.modes.IsInsertMode() && !a.router.Intercepting()
}

func (a *App) nativeKey(key gocui.Key) error {
	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		return a.buf.DeleteLeft()
	case gocui.KeyArrowUp:
		a.buf.MoveCursor(-1, 0)
	case gocui.KeyArrowDown:
		a.buf.MoveCursor(1, 0)
	case gocui.KeyArrowLeft:
		a.buf.MoveCursor(0, -1)
	case gocui.KeyArrowRight:
		a.buf.MoveCursor(0, 1)
	}
	return nil
}
