package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/abdullathedruid/nvbridge/internal/docsync"
	"github.com/abdullathedruid/nvbridge/internal/input"
)

type cursorSetter interface {
	SetCursor(ctx context.Context, row, col int) error
}

// documents adds cursor sync to docsync.Manager: after host edits reach the
// engine, the engine cursor is moved to where the host typed.
type documents struct {
	*docsync.Manager
	engine cursorSetter
	buf    *Buffer
	logger *slog.Logger
}

func (d *documents) SyncDocuments(ctx context.Context) error {
	err := d.Manager.SyncDocuments(ctx)

	row, col := d.buf.ByteCursor()
	if cerr := d.engine.SetCursor(ctx, row, col); cerr != nil {
		d.logger.Warn("cursor sync failed", "row", row, "col", col, "err", cerr)
	}
	return err
}

// heldLocks collects document holds taken for keys sent to the engine.
type heldLocks struct {
	mu       sync.Mutex
	releases []func()
}

func (h *heldLocks) add(release func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases = append(h.releases, release)
}

func (h *heldLocks) take() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	releases := h.releases
	h.releases = nil
	return releases
}

func releaseAll(releases []func()) {
	for _, release := range releases {
		release()
	}
}

// lockingEngine holds the document lock from the moment keys are sent until
// the refresh that applies the engine's answer to the host has finished. An
// insert mode entered because of those keys waits for that refresh.
type lockingEngine struct {
	input.Engine
	docs    *docsync.Manager
	doc     docsync.DocumentID
	held    *heldLocks
	refresh func()
}

func (e *lockingEngine) Input(ctx context.Context, keys string) error {
	release := e.docs.Hold(e.doc)
	if err := e.Engine.Input(ctx, keys); err != nil {
		release()
		return err
	}
	e.held.add(release)
	e.refresh()
	return nil
}
