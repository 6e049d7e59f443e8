// Package input routes host keystrokes to the embedded Neovim engine or to
// native host insertion, depending on the engine's mode and on in-flight
// document synchronization.
package input

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-errors/errors"

	"github.com/abdullathedruid/nvbridge/internal/docsync"
	"github.com/abdullathedruid/nvbridge/internal/mode"
)

const (
	// DefaultEscapeKey is sent by Escape when no key is given.
	DefaultEscapeKey = "<Esc>"
	// DefaultEscapeWindow is the composite escape window.
	DefaultEscapeWindow = 200 * time.Millisecond
)

// ErrClosed is returned by operations on a closed Router.
var ErrClosed = errors.New("router closed")

// Engine is the part of the Neovim client the router needs.
type Engine interface {
	Input(ctx context.Context, keys string) error
	Mode(ctx context.Context) (mode.Status, error)
}

// Documents is the document-change manager. PendingLock channels must close
// even when the synchronization fails.
type Documents interface {
	HasPendingLock(doc docsync.DocumentID) bool
	PendingLock(doc docsync.DocumentID) <-chan struct{}
	SyncDocuments(ctx context.Context) error
	SyncDotRepeat(ctx context.Context) error
}

// Host is the host editor's native editing surface. The router may call it
// while holding its own lock, so implementations must not call back into the
// router.
type Host interface {
	ActiveDocument() (docsync.DocumentID, bool)
	InsertText(text string) error
	ReplacePreviousChar(text string, n int) error
	DeleteLeft() error
}

// State is the router's transition state.
type State int

const (
	// StateIdle means no transition is in progress.
	StateIdle State = iota
	// StateEnteringInsert waits for the document lock before native insertion.
	StateEnteringInsert
	// StateExitingInsert buffers keys until the engine confirms leaving insert.
	StateExitingInsert
	// StateComposing is reported while IME composition is active.
	StateComposing
)

func (s State) String() string {
	switch s {
	case StateEnteringInsert:
		return "entering-insert"
	case StateExitingInsert:
		return "exiting-insert"
	case StateComposing:
		return "composing"
	default:
		return "idle"
	}
}

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Modes     *mode.Manager
	Engine    Engine
	Documents Documents
	Host      Host
	Logger    *slog.Logger

	// EscapeWindow defaults to DefaultEscapeWindow.
	EscapeWindow time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Router decides for every keystroke whether it goes to the engine, waits in
// a pending buffer, or is inserted natively by the host.
type Router struct {
	modes  *mode.Manager
	engine Engine
	docs   Documents
	host   Host
	logger *slog.Logger
	now    func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	intercepting bool
	// transition is StateIdle, StateEnteringInsert or StateExitingInsert.
	transition        State
	enterSeq          uint64
	pendingAfterEnter string
	pendingAfterExit  string
	escapeArmedAt     time.Time
	escapeWindow      time.Duration
	composition       Composition
}

// NewRouter creates a router with interception installed and subscribes it to
// mode changes.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	window := cfg.EscapeWindow
	if window <= 0 {
		window = DefaultEscapeWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		modes:        cfg.Modes,
		engine:       cfg.Engine,
		docs:         cfg.Documents,
		host:         cfg.Host,
		logger:       logger.With("component", "router"),
		now:          now,
		ctx:          ctx,
		cancel:       cancel,
		intercepting: true,
		escapeWindow: window,
	}
	r.unsubscribe = cfg.Modes.OnChange(r.onModeChange)
	return r
}

// Close releases interception, discards buffered keys and stops waiting on
// document locks.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.intercepting = false
	r.transition = StateIdle
	r.pendingAfterEnter = ""
	r.pendingAfterExit = ""
	r.composition.End()
	r.mu.Unlock()

	r.unsubscribe()
	r.cancel()
	r.wg.Wait()
}

// State returns the current transition state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transition != StateIdle {
		return r.transition
	}
	if r.composition.Active() {
		return StateComposing
	}
	return StateIdle
}

// Pending returns the keys buffered during insert entry and exit.
func (r *Router) Pending() (afterEnter, afterExit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingAfterEnter, r.pendingAfterExit
}

// ComposingText returns the IME text accumulated so far.
func (r *Router) ComposingText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.composition.Text()
}

// Intercepting reports whether typed text is currently routed.
func (r *Router) Intercepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intercepting
}

// SetEscapeWindow changes the composite escape window. Non-positive values
// restore the default.
func (r *Router) SetEscapeWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultEscapeWindow
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escapeWindow = d
}

// InstallInterception routes typed text through the router. Idempotent.
func (r *Router) InstallInterception() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installLocked()
}

func (r *Router) installLocked() {
	if !r.intercepting && !r.closed {
		r.logger.Debug("enabling type interception")
		r.intercepting = true
	}
}

// UninstallInterception hands typed text to the host. Idempotent.
func (r *Router) UninstallInterception() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uninstallLocked()
}

func (r *Router) uninstallLocked() {
	if r.intercepting {
		r.logger.Debug("disabling type interception")
		r.intercepting = false
	}
}

// Toggle flips the global enable flag and returns the new value.
func (r *Router) Toggle() bool {
	enabled := r.modes.Toggle()
	r.logger.Info("toggled", "enabled", enabled)
	return enabled
}

// Type handles one chunk of typed text.
func (r *Router) Type(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if !r.modes.Enabled() || !r.intercepting {
		r.mu.Unlock()
		return r.host.InsertText(text)
	}

	switch {
	case r.transition == StateEnteringInsert:
		r.pendingAfterEnter += text
		r.mu.Unlock()
		return nil
	case r.transition == StateExitingInsert:
		r.pendingAfterExit += text
		r.mu.Unlock()
		return nil
	case r.composition.Active():
		r.composition.Append(text)
		r.mu.Unlock()
		return nil
	}

	recording := r.modes.IsRecordingInInsertMode()
	if !r.modes.IsInsertMode() || recording {
		defer r.mu.Unlock()
		return r.forwardLocked(ctx, Normalize(text, !recording))
	}
	r.mu.Unlock()

	if r.engineBlocking(ctx) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.forwardLocked(ctx, Normalize(text, true))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A transition that started during the mode query keeps interception.
	if r.transition == StateIdle && r.modes.IsInsertMode() {
		r.uninstallLocked()
	}
	return r.host.InsertText(text)
}

// Send forwards an explicit command key. In insert mode the engine is first
// brought up to date with the host's documents and dot-repeat text. Keys
// buffered by an unfinished insert entry go out ahead of key and keys typed
// after an escape go out behind it, so the engine sees them in typing order.
// That holds outside insert mode too: buffered keys are never dropped.
func (r *Router) Send(ctx context.Context, key string) error {
	if r.isClosed() {
		return ErrClosed
	}
	r.logger.Debug("send", "key", key)

	if r.modes.IsInsertMode() && !r.engineBlocking(ctx) {
		r.logger.Debug("syncing buffers with engine", "key", key)
		if err := r.docs.SyncDocuments(ctx); err != nil {
			r.logger.Warn("document sync failed", "error", err)
		}
		if err := r.docs.SyncDotRepeat(ctx); err != nil {
			r.logger.Warn("dot-repeat sync failed", "error", err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		burst := r.takeEnteredLocked() + key + Normalize(r.pendingAfterExit, true)
		r.pendingAfterExit = ""
		r.logger.Debug("pending keys sent with key", "key", key, "burst", burst)
		return r.forwardLocked(ctx, burst)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	lead := r.takeEnteredLocked()
	if r.transition == StateExitingInsert {
		r.transition = StateIdle
	}
	keys := Normalize(r.pendingAfterExit, true)
	r.pendingAfterExit = ""
	return r.forwardLocked(ctx, lead+key+keys)
}

// takeEnteredLocked ends an unfinished insert entry and returns the keys it
// buffered in key notation. The pending lock wait becomes stale.
func (r *Router) takeEnteredLocked() string {
	if r.transition != StateEnteringInsert {
		return ""
	}
	keys := Normalize(r.pendingAfterEnter, true)
	r.pendingAfterEnter = ""
	r.transition = StateIdle
	r.enterSeq++
	return keys
}

// SendBlocking reinstalls interception before sending, so input typed while
// the engine handles key can reach it.
func (r *Router) SendBlocking(ctx context.Context, key string) error {
	r.InstallInterception()
	return r.Send(ctx, key)
}

// Escape leaves insert mode. Keys typed until the engine confirms the mode
// change are buffered and sent right behind the escape key. No-op while the
// bridge is disabled.
func (r *Router) Escape(ctx context.Context, key string) error {
	if !r.modes.Enabled() {
		return nil
	}
	if key == "" {
		key = DefaultEscapeKey
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	// Typed in insert mode before the escape, so they precede it.
	lead := r.takeEnteredLocked()
	r.transition = StateExitingInsert
	r.mu.Unlock()

	return r.SendBlocking(ctx, lead+key)
}

// CompositeEscapeFirstKey handles the first key of a two-key escape. It also
// completes the sequence when pressed twice within the window.
func (r *Router) CompositeEscapeFirstKey(ctx context.Context, key string) error {
	return r.compositeEscape(ctx, key, true)
}

// CompositeEscapeSecondKey completes a two-key escape armed by the first key.
func (r *Router) CompositeEscapeSecondKey(ctx context.Context, key string) error {
	return r.compositeEscape(ctx, key, false)
}

func (r *Router) compositeEscape(ctx context.Context, key string, arm bool) error {
	now := r.now()

	r.mu.Lock()
	elapsed := now.Sub(r.escapeArmedAt)
	matched := !r.escapeArmedAt.IsZero() && elapsed >= 0 && elapsed <= r.escapeWindow
	if matched {
		r.escapeArmedAt = time.Time{}
	} else if arm {
		r.escapeArmedAt = now
	}
	r.mu.Unlock()

	if !matched {
		return r.Type(ctx, key)
	}
	if err := r.host.DeleteLeft(); err != nil {
		r.logger.Warn("delete left failed", "error", err)
	}
	return r.Escape(ctx, "")
}

// ReplacePreviousChar revises the composing text. While interception is off
// the host handles it natively.
func (r *Router) ReplacePreviousChar(text string, replaceCharCnt int) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if !r.modes.Enabled() || !r.intercepting {
		r.mu.Unlock()
		return r.host.ReplacePreviousChar(text, replaceCharCnt)
	}
	defer r.mu.Unlock()
	r.composition.Replace(text, replaceCharCnt)
	return nil
}

// CompositionStart begins IME composition.
func (r *Router) CompositionStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composition.Start()
}

// CompositionEnd finishes IME composition. Outside insert mode the composed
// text is sent to the engine as one burst; in insert mode the host already
// inserted it.
func (r *Router) CompositionEnd(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.composition.End()
	if text == "" || r.closed || !r.modes.Enabled() || r.modes.IsInsertMode() {
		return nil
	}
	return r.forwardLocked(ctx, Normalize(text, !r.modes.IsRecordingInInsertMode()))
}

func (r *Router) onModeChange(from, to mode.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if to.IsInsert() {
		if !r.intercepting || r.modes.IsRecordingInInsertMode() {
			return
		}
		r.pendingAfterEnter = ""
		doc, ok := r.host.ActiveDocument()
		if ok && r.docs.HasPendingLock(doc) {
			r.logger.Debug("waiting for document sync before releasing interception", "doc", doc)
			r.transition = StateEnteringInsert
			r.enterSeq++
			r.wg.Add(1)
			go r.awaitEnter(r.enterSeq, r.docs.PendingLock(doc))
			return
		}
		r.uninstallLocked()
		return
	}

	// Keys still buffered by either transition were typed before this mode
	// change landed; replay them so none are lost.
	leftover := r.pendingAfterEnter + r.pendingAfterExit
	r.pendingAfterEnter = ""
	r.pendingAfterExit = ""
	r.transition = StateIdle
	r.enterSeq++
	r.installLocked()
	if leftover != "" {
		r.forwardLocked(r.ctx, Normalize(leftover, true))
	}
}

// awaitEnter finishes an insert-mode entry once the document lock resolves.
func (r *Router) awaitEnter(seq uint64, lock <-chan struct{}) {
	defer r.wg.Done()

	select {
	case <-lock:
	case <-r.ctx.Done():
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.enterSeq != seq || r.transition != StateEnteringInsert {
		return
	}
	r.transition = StateIdle

	keys := r.pendingAfterEnter
	r.pendingAfterEnter = ""

	if !r.modes.IsInsertMode() {
		r.forwardLocked(r.ctx, Normalize(keys, true))
		return
	}
	r.uninstallLocked()
	if keys == "" {
		return
	}
	if err := r.host.InsertText(keys); err != nil {
		r.logger.Warn("replaying keys typed during insert entry failed", "error", err)
	}
}

// forwardLocked sends keys to the engine. Callers hold r.mu, which keeps
// bursts from interleaving. On failure the exit transition is cleared so the
// router cannot stay stuck buffering.
func (r *Router) forwardLocked(ctx context.Context, keys string) error {
	if keys == "" {
		return nil
	}
	if err := r.engine.Input(ctx, keys); err != nil {
		r.logger.Error("engine input failed", "keys", keys, "error", err)
		if r.transition == StateExitingInsert {
			r.transition = StateIdle
			r.pendingAfterExit = ""
		}
		return errors.WrapPrefix(err, "engine input", 0)
	}
	return nil
}

func (r *Router) engineBlocking(ctx context.Context) bool {
	status, err := r.engine.Mode(ctx)
	if err != nil {
		r.logger.Warn("engine mode query failed", "error", err)
		return false
	}
	return status.Blocking
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
