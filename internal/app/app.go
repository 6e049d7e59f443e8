// Package app wires the Neovim engine, the input router and a gocui host
// editor into one application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"

	"github.com/abdullathedruid/nvbridge/internal/config"
	"github.com/abdullathedruid/nvbridge/internal/docsync"
	"github.com/abdullathedruid/nvbridge/internal/engine"
	"github.com/abdullathedruid/nvbridge/internal/input"
	"github.com/abdullathedruid/nvbridge/internal/mode"
	"github.com/abdullathedruid/nvbridge/internal/ui"
	"github.com/abdullathedruid/nvbridge/internal/version"
)

const (
	editorView = "editor"
	statusView = "status"

	scratchDocument docsync.DocumentID = "[scratch]"
)

// Engine is the embedded editor as the app uses it.
type Engine interface {
	input.Engine
	Attach(ctx context.Context, doc docsync.DocumentID, text string) error
	SetLines(ctx context.Context, doc docsync.DocumentID, start, end int, lines []string) error
	Text(ctx context.Context, doc docsync.DocumentID) (string, error)
	Cursor(ctx context.Context) (row, col int, err error)
	SetCursor(ctx context.Context, row, col int) error
	SetDotRepeat(ctx context.Context, text string) error
	Close() error
}

// Options configures New.
type Options struct {
	Config *config.Config

	// ConfigPath is watched for changes; empty disables reloading
	ConfigPath string

	// File is the document to edit; empty opens a scratch buffer
	File string

	Logger *slog.Logger

	// Level, when set, follows log_level across reloads
	Level *slog.LevelVar
}

// App is the host editor.
type App struct {
	gui    *gocui.Gui
	logger *slog.Logger
	level  *slog.LevelVar
	file   string

	modes   *mode.Manager
	engine  Engine
	docs    *docsync.Manager
	router  *input.Router
	buf     *Buffer
	watcher *config.Watcher

	ctx       context.Context
	cancel    context.CancelFunc
	keys      chan keyEvent
	refreshCh chan struct{}
	held      heldLocks
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu       sync.RWMutex
	cfg      *config.Config
	bindings bindings
	message  string
}

func newApp(ctx context.Context, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	a := &App{
		logger:    logger.With("component", "app"),
		level:     opts.Level,
		file:      opts.File,
		modes:     mode.NewManager(),
		keys:      make(chan keyEvent, 256),
		refreshCh: make(chan struct{}, 1),
		cfg:       cfg,
		bindings:  newBindings(cfg.Keys),
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	return a
}

// New starts Neovim, loads opts.File and creates the GUI.
func New(ctx context.Context, opts Options) (*App, error) {
	a := newApp(ctx, opts)

	eng, err := engine.Start(a.ctx, engine.Options{
		Command:  a.cfg.Engine.Command,
		Args:     a.cfg.Engine.Args,
		Modes:    a.modes,
		Logger:   opts.Logger,
		OnChange: a.requestRefresh,
	})
	if err != nil {
		a.cancel()
		return nil, err
	}

	if err := a.assemble(eng, opts.Logger); err != nil {
		eng.Close()
		a.cancel()
		return nil, err
	}

	if opts.ConfigPath != "" {
		w, err := config.NewWatcher(opts.ConfigPath, a.applyConfig, opts.Logger)
		if err != nil {
			a.logger.Warn("config reload disabled", "err", err)
		} else {
			a.watcher = w
		}
	}

	g, err := gocui.NewGui(gocui.NewGuiOpts{
		OutputMode: gocui.OutputTrue,
	})
	if err != nil {
		a.Close()
		return nil, errors.WrapPrefix(err, "initializing GUI", 0)
	}
	a.gui = g

	return a, nil
}

// assemble loads the document into both editors and builds the router.
func (a *App) assemble(eng Engine, logger *slog.Logger) error {
	text, doc, err := readDocument(a.file)
	if err != nil {
		return err
	}

	a.engine = eng
	a.buf = NewBuffer(doc, text)
	a.docs = docsync.NewManager(eng, a.buf, eng, logger)

	text = a.buf.Text()
	if err := eng.Attach(a.ctx, doc, text); err != nil {
		return errors.WrapPrefix(err, "attach "+string(doc), 0)
	}
	a.docs.Track(doc, text)
	a.buf.Observe(a.docs)
	a.buf.OnRedraw(a.redraw)

	a.router = input.NewRouter(input.RouterConfig{
		Modes:        a.modes,
		Engine:       &lockingEngine{Engine: eng, docs: a.docs, doc: doc, held: &a.held, refresh: a.requestRefresh},
		Documents:    &documents{Manager: a.docs, engine: eng, buf: a.buf, logger: a.logger},
		Host:         a.buf,
		Logger:       logger,
		EscapeWindow: a.cfg.EscapeWindow(),
	})

	a.modes.OnChange(func(from, to mode.Mode) {
		if to.IsInsert() {
			a.docs.ResetInsert()
		}
		a.requestRefresh()
		a.redraw()
	})

	a.wg.Add(2)
	go a.processKeys()
	go a.processRefresh()
	return nil
}

func readDocument(path string) (string, docsync.DocumentID, error) {
	if path == "" {
		return "", scratchDocument, nil
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", "", errors.WrapPrefix(err, "read "+path, 0)
	}
	return string(data), docsync.DocumentID(path), nil
}

// Run starts the main event loop.
func (a *App) Run() error {
	defer a.Close()

	a.gui.SetManagerFunc(a.layout)

	if err := a.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, func(g *gocui.Gui, v *gocui.View) error {
		return gocui.ErrQuit
	}); err != nil {
		return errors.WrapPrefix(err, "setting up keybindings", 0)
	}

	// Handle SIGINT/SIGTERM for clean exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.quit()
		case <-a.ctx.Done():
		}
	}()

	a.setMessage(ui.HelpText(a.cfg.Keys.Quit, a.cfg.Keys.Toggle, a.cfg.Keys.Escape))

	if err := a.gui.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return errors.WrapPrefix(err, "main loop", 0)
	}

	return nil
}

// Close releases everything New created. Safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.router != nil {
			a.router.Close()
		}
		a.wg.Wait()
		releaseAll(a.held.take())
		if a.engine != nil {
			if err := a.engine.Close(); err != nil {
				a.logger.Debug("engine close", "err", err)
			}
		}
		if a.gui != nil {
			a.gui.Close()
		}
	})
}

func (a *App) quit() {
	if a.gui == nil {
		return
	}
	a.gui.Update(func(g *gocui.Gui) error {
		return gocui.ErrQuit
	})
}

func (a *App) redraw() {
	if a.gui == nil {
		return
	}
	a.gui.Update(func(g *gocui.Gui) error { return nil })
}

// layout is the gocui manager function that arranges views.
func (a *App) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	v, err := g.SetView(editorView, 0, 0, maxX-1, maxY-2, 0)
	if err != nil && !errors.Is(err, gocui.ErrUnknownView) {
		return err
	}

	a.mu.RLock()
	theme := a.cfg.Theme
	a.mu.RUnlock()

	ui.ConfigureEditorView(v, ui.EditorStyle{
		Title:    a.title(),
		Insert:   a.modes.IsInsertMode(),
		Enabled:  a.modes.Enabled(),
		InsertFg: config.Color(theme.InsertBg),
	})
	v.Editor = gocui.EditorFunc(a.edit)

	lines, row, col := a.buf.Snapshot()
	ui.RenderLines(v, lines)

	_, height := v.Size()
	oy := 0
	if height > 0 && row >= height {
		oy = row - height + 1
	}
	v.SetOrigin(0, oy)
	v.SetCursor(ui.DisplayColumn(lines[row], col), row-oy)

	if _, err := g.SetCurrentView(editorView); err != nil {
		return err
	}
	g.Cursor = true

	sv, err := g.SetView(statusView, -1, maxY-2, maxX, maxY, 0)
	if err != nil && !errors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	ui.ConfigureStatusView(sv, config.Color(theme.StatusBarBg), config.Color(theme.StatusBarFg))
	sv.Clear()
	fmt.Fprint(sv, ui.RenderStatusLine(a.status(), maxX))

	return nil
}

func (a *App) title() string {
	if a.file == "" {
		return string(scratchDocument)
	}
	return filepath.Base(a.file)
}

func (a *App) status() ui.Status {
	row, col := a.buf.Cursor()
	enter, exit := a.router.Pending()

	a.mu.RLock()
	message := a.message
	a.mu.RUnlock()

	return ui.Status{
		Mode:      a.modes.Current(),
		Enabled:   a.modes.Enabled(),
		Recording: a.modes.Recording(),
		State:     a.router.State().String(),
		Pending:   enter + exit,
		Composing: a.router.ComposingText(),
		Document:  a.title(),
		Line:      row,
		Col:       col,
		Version:   version.Short(),
		Message:   message,
	}
}

func (a *App) setMessage(msg string) {
	a.mu.Lock()
	a.message = msg
	a.mu.Unlock()
	a.redraw()
}

// applyConfig swaps in a reloaded configuration. The engine command only
// applies on the next start.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.bindings = newBindings(cfg.Keys)
	a.mu.Unlock()

	a.router.SetEscapeWindow(cfg.EscapeWindow())
	if a.level != nil {
		a.level.Set(cfg.Level())
	}
	a.logger.Info("config applied", "escape_window", cfg.EscapeWindow())
	a.setMessage("config reloaded")
}

func (a *App) requestRefresh() {
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
}

func (a *App) processRefresh() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.refreshCh:
			a.refresh(a.ctx)
		}
	}
}

// refresh pulls the engine's text and cursor into the host buffer. Document
// holds taken for keys sent before it started are released once it is done.
func (a *App) refresh(ctx context.Context) {
	defer releaseAll(a.held.take())
	doc := a.buf.ID()

	text, err := a.engine.Text(ctx, doc)
	if err != nil {
		a.logger.Debug("engine text unavailable", "err", err)
		return
	}
	if err := a.docs.ApplyEngineText(ctx, doc, text); err != nil {
		a.logger.Warn("apply engine text failed", "err", err)
		return
	}

	if a.hostOwnsCursor() {
		return
	}
	row, col, err := a.engine.Cursor(ctx)
	if err != nil {
		a.logger.Debug("engine cursor unavailable", "err", err)
		return
	}
	a.buf.SetByteCursor(row, col)
}

// hostOwnsCursor reports whether the host cursor is ahead of the engine's:
// native typing is in progress or the bridge is off.
func (a *App) hostOwnsCursor() bool {
	if !a.modes.Enabled() || a.docs.Dirty(a.buf.ID()) {
		return true
	}
	return a.modes.IsInsertMode() && !a.router.Intercepting()
}

// save writes the buffer to its file.
func (a *App) save() error {
	if a.file == "" {
		return errors.New("scratch buffer has no file")
	}
	if err := os.WriteFile(a.file, []byte(a.buf.Text()), 0644); err != nil {
		return errors.WrapPrefix(err, "write "+a.file, 0)
	}
	a.logger.Info("saved", "file", a.file)
	return nil
}
