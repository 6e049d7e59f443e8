package docsync

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-errors/errors"
)

// ErrUnknownDocument is returned for documents that were never tracked.
var ErrUnknownDocument = errors.New("unknown document")

// LineWriter replaces a range of lines in one side's copy of a document.
type LineWriter interface {
	SetLines(ctx context.Context, doc DocumentID, start, end int, lines []string) error
}

// DotRepeater makes the engine's last insert the text inserted natively during
// the last insert session, so "." in the engine repeats it.
type DotRepeater interface {
	SetDotRepeat(ctx context.Context, text string) error
}

type document struct {
	engineText string
	hostText   string
	dirty      bool
}

// Manager tracks host and engine copies of each document and moves changes
// between them.
type Manager struct {
	locks  *Locks
	engine LineWriter
	host   LineWriter
	dot    DotRepeater
	logger *slog.Logger

	mu       sync.Mutex
	docs     map[DocumentID]*document
	inserted []rune
}

// NewManager creates a manager. engine receives host edits, host receives
// engine edits.
func NewManager(engine, host LineWriter, dot DotRepeater, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		locks:  NewLocks(),
		engine: engine,
		host:   host,
		dot:    dot,
		logger: logger.With("component", "docsync"),
		docs:   make(map[DocumentID]*document),
	}
}

// Track registers a document whose engine copy currently equals text.
func (m *Manager) Track(doc DocumentID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc] = &document{engineText: text, hostText: text}
}

// HostChanged records the host's current text for doc.
func (m *Manager) HostChanged(doc DocumentID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[doc]
	if !ok {
		return ErrUnknownDocument
	}
	d.hostText = text
	d.dirty = d.hostText != d.engineText
	return nil
}

// Dirty reports whether doc has host edits the engine has not seen.
func (m *Manager) Dirty(doc DocumentID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[doc]
	return ok && d.dirty
}

// EngineText returns the engine copy as last synchronized.
func (m *Manager) EngineText(doc DocumentID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[doc]
	if !ok {
		return "", false
	}
	return d.engineText, true
}

// ResetInsert discards the recorded insert text. Call it when a new insert
// session starts.
func (m *Manager) ResetInsert() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = m.inserted[:0]
}

// RecordInsert appends natively inserted text to the dot-repeat record.
func (m *Manager) RecordInsert(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, []rune(text)...)
}

// RecordDelete removes the last n recorded characters.
func (m *Manager) RecordDelete(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.inserted) {
		n = len(m.inserted)
	}
	m.inserted = m.inserted[:len(m.inserted)-n]
}

// HasPendingLock reports whether a synchronization of doc is in flight.
func (m *Manager) HasPendingLock(doc DocumentID) bool {
	return m.locks.Has(doc)
}

// PendingLock returns a channel closed when the in-flight synchronization of
// doc completes, successful or not.
func (m *Manager) PendingLock(doc DocumentID) <-chan struct{} {
	return m.locks.Wait(doc)
}

// Hold marks doc as having engine-side changes in flight until release runs.
// PendingLock waiters wake on the last release.
func (m *Manager) Hold(doc DocumentID) (release func()) {
	return m.locks.Acquire(doc)
}

// SyncDocuments pushes every dirty document's host text to the engine. All
// documents are attempted; the first error is returned.
func (m *Manager) SyncDocuments(ctx context.Context) error {
	m.mu.Lock()
	pending := make(map[DocumentID]document)
	for id, d := range m.docs {
		if d.dirty {
			pending[id] = *d
		}
	}
	m.mu.Unlock()

	ids := make([]DocumentID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var firstErr error
	for _, id := range ids {
		snapshot := pending[id]
		if err := m.push(ctx, id, snapshot.engineText, snapshot.hostText); err != nil {
			m.logger.Warn("sync to engine failed", "doc", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) push(ctx context.Context, doc DocumentID, engineText, hostText string) error {
	release := m.locks.Acquire(doc)
	defer release()

	if err := applyHunks(ctx, m.engine, doc, LineHunks(engineText, hostText)); err != nil {
		return errors.WrapPrefix(err, "push "+string(doc), 0)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[doc]; ok {
		d.engineText = hostText
		d.dirty = d.hostText != d.engineText
	}
	m.logger.Debug("synced to engine", "doc", doc)
	return nil
}

// SyncDotRepeat hands the recorded insert text to the engine and clears it.
func (m *Manager) SyncDotRepeat(ctx context.Context) error {
	m.mu.Lock()
	text := string(m.inserted)
	m.inserted = m.inserted[:0]
	m.mu.Unlock()

	if text == "" || m.dot == nil {
		return nil
	}
	if err := m.dot.SetDotRepeat(ctx, text); err != nil {
		return errors.WrapPrefix(err, "dot repeat", 0)
	}
	return nil
}

// ApplyEngineText brings the host copy of doc in line with the engine text.
// The document lock is held for the duration, so input arriving meanwhile can
// wait on PendingLock. Host edits not yet pushed win: the call is skipped.
func (m *Manager) ApplyEngineText(ctx context.Context, doc DocumentID, text string) error {
	release := m.locks.Acquire(doc)
	defer release()

	m.mu.Lock()
	d, ok := m.docs[doc]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownDocument
	}
	if d.dirty {
		m.mu.Unlock()
		m.logger.Debug("host has unsynced edits, skipping engine text", "doc", doc)
		return nil
	}
	before := d.hostText
	m.mu.Unlock()

	if err := applyHunks(ctx, m.host, doc, LineHunks(before, text)); err != nil {
		return errors.WrapPrefix(err, "apply "+string(doc), 0)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[doc]; ok {
		d.hostText = text
		d.engineText = text
		d.dirty = false
	}
	return nil
}

func applyHunks(ctx context.Context, w LineWriter, doc DocumentID, hunks []Hunk) error {
	for i := len(hunks) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := hunks[i]
		if err := w.SetLines(ctx, doc, h.Start, h.End, h.Lines); err != nil {
			return err
		}
	}
	return nil
}
