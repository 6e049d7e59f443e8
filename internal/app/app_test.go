package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jesseduffield/gocui"

	"github.com/abdullathedruid/nvbridge/internal/config"
	"github.com/abdullathedruid/nvbridge/internal/docsync"
	"github.com/abdullathedruid/nvbridge/internal/mode"
)

// fakeEngine keeps one document in memory and records what it is sent.
type fakeEngine struct {
	modes *mode.Manager

	mu       sync.Mutex
	lines    map[docsync.DocumentID][]string
	inputs   []string
	dot      []string
	row, col int

	// onInput runs under mu for every Input, standing in for Neovim's
	// reaction to the keys.
	onInput func(e *fakeEngine, keys string)
	// gate, when set, holds Text until it is closed.
	gate chan struct{}
}

func newFakeEngine(modes *mode.Manager) *fakeEngine {
	return &fakeEngine{modes: modes, lines: make(map[docsync.DocumentID][]string)}
}

func (e *fakeEngine) Input(ctx context.Context, keys string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, keys)
	if e.onInput != nil {
		e.onInput(e, keys)
	}
	return nil
}

func (e *fakeEngine) Mode(ctx context.Context) (mode.Status, error) {
	return mode.Status{Mode: e.modes.Current()}, nil
}

func (e *fakeEngine) Attach(ctx context.Context, doc docsync.DocumentID, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines[doc] = docsync.SplitLines(text)
	return nil
}

func (e *fakeEngine) SetLines(ctx context.Context, doc docsync.DocumentID, start, end int, lines []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.lines[doc]
	next := append(append(append([]string{}, cur[:start]...), lines...), cur[end:]...)
	e.lines[doc] = next
	return nil
}

func (e *fakeEngine) Text(ctx context.Context, doc docsync.DocumentID) (string, error) {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return docsync.JoinLines(e.lines[doc]), nil
}

func (e *fakeEngine) Cursor(ctx context.Context) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.row, e.col, nil
}

func (e *fakeEngine) SetCursor(ctx context.Context, row, col int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.row, e.col = row, col
	return nil
}

func (e *fakeEngine) SetDotRepeat(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dot = append(e.dot, text)
	return nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) setText(doc docsync.DocumentID, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines[doc] = docsync.SplitLines(text)
}

func (e *fakeEngine) snapshot() (inputs, dot []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...), append([]string(nil), e.dot...)
}

func newTestApp(t *testing.T, text string, cfg *config.Config) (*App, *fakeEngine, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}

	a := newApp(context.Background(), Options{Config: cfg, File: path})
	a.modes.Set(mode.ModeNormal)

	eng := newFakeEngine(a.modes)
	if err := a.assemble(eng, nil); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	t.Cleanup(a.Close)
	return a, eng, path
}

func char(r rune) keyEvent         { return keyEvent{ch: r} }
func special(k gocui.Key) keyEvent { return keyEvent{key: k} }

func press(t *testing.T, a *App, events ...keyEvent) {
	t.Helper()
	for _, ev := range events {
		if err := a.handleKey(context.Background(), ev); err != nil {
			t.Fatalf("handleKey(%+v): %v", ev, err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApp_NormalModeKeysGoToEngine(t *testing.T) {
	a, eng, _ := newTestApp(t, "hello\n", nil)

	press(t, a, char('d'), char('w'), special(gocui.KeyEnter), special(gocui.KeyBackspace2), special(gocui.KeyCtrlR))

	inputs, _ := eng.snapshot()
	want := []string{"d", "w", "<CR>", "<BS>", "<C-r>"}
	if !equal(inputs, want) {
		t.Errorf("inputs = %q, want %q", inputs, want)
	}
	if got := a.buf.Text(); got != "hello\n" {
		t.Errorf("host text = %q, want unchanged", got)
	}
}

func TestApp_NativeInsertThenEscapeSyncs(t *testing.T) {
	a, eng, path := newTestApp(t, "hello\n", nil)
	doc := docsync.DocumentID(path)

	a.modes.Set(mode.ModeInsert)
	press(t, a, char('!'), char('?'), special(gocui.KeyBackspace2))

	if got := a.buf.Text(); got != "!hello\n" {
		t.Fatalf("host text = %q, want %q", got, "!hello\n")
	}
	if inputs, _ := eng.snapshot(); len(inputs) != 0 {
		t.Fatalf("native typing reached the engine: %q", inputs)
	}

	press(t, a, special(gocui.KeyEsc))

	if got, _ := eng.Text(context.Background(), doc); got != "!hello\n" {
		t.Errorf("engine text = %q, want %q", got, "!hello\n")
	}
	inputs, dot := eng.snapshot()
	if !equal(inputs, []string{"<Esc>"}) {
		t.Errorf("inputs = %q, want [<Esc>]", inputs)
	}
	if !equal(dot, []string{"!"}) {
		t.Errorf("dot repeat = %q, want [!]", dot)
	}
	if row, col, _ := eng.Cursor(context.Background()); row != 0 || col != 1 {
		t.Errorf("engine cursor = %d,%d, want 0,1", row, col)
	}
	if a.docs.Dirty(doc) {
		t.Error("document should be clean after escape")
	}
}

func TestApp_ToggleMakesEverythingNative(t *testing.T) {
	a, eng, _ := newTestApp(t, "hello\n", nil)

	press(t, a, special(gocui.KeyCtrlT))
	if a.modes.Enabled() {
		t.Fatal("bridge should be disabled after toggle")
	}
	if !strings.Contains(a.status().Message, "off") {
		t.Errorf("status message = %q, want it to mention off", a.status().Message)
	}

	press(t, a, char('z'), special(gocui.KeyArrowRight), special(gocui.KeyEsc), char('y'))
	if got := a.buf.Text(); got != "zhyello\n" {
		t.Errorf("host text = %q, want %q", got, "zhyello\n")
	}
	if inputs, _ := eng.snapshot(); len(inputs) != 0 {
		t.Errorf("inputs = %q, want none while disabled", inputs)
	}

	press(t, a, special(gocui.KeyCtrlT))
	if !a.modes.Enabled() {
		t.Error("second toggle should re-enable the bridge")
	}
}

func TestApp_OpenLineThenTypeWaitsForEngineText(t *testing.T) {
	a, eng, path := newTestApp(t, "hello\n", nil)
	doc := docsync.DocumentID(path)

	gate := make(chan struct{})
	eng.mu.Lock()
	eng.gate = gate
	eng.onInput = func(e *fakeEngine, keys string) {
		if keys == "o" {
			e.lines[doc] = append(e.lines[doc], "")
			e.row, e.col = 1, 0
		}
	}
	eng.mu.Unlock()

	press(t, a, char('o'))
	if !a.docs.HasPendingLock(doc) {
		t.Fatal("document should stay locked until the engine text is applied")
	}

	// Neovim reports insert mode before the host has seen the new line.
	a.modes.Set(mode.ModeInsert)
	press(t, a, char('x'))

	if got := a.buf.Text(); got != "hello\n" {
		t.Errorf("host text = %q, want unchanged until the engine text arrives", got)
	}
	if enter, _ := a.router.Pending(); enter != "x" {
		t.Errorf("pending after enter = %q, want %q", enter, "x")
	}

	close(gate)
	waitFor(t, func() bool { return a.buf.Text() == "hello\nx\n" })

	if row, col := a.buf.Cursor(); row != 1 || col != 1 {
		t.Errorf("host cursor = %d,%d, want 1,1", row, col)
	}
	if inputs, _ := eng.snapshot(); !equal(inputs, []string{"o"}) {
		t.Errorf("inputs = %q, want [o]", inputs)
	}
	waitFor(t, func() bool { return !a.docs.HasPendingLock(doc) })
}

func TestApp_RefreshAppliesEngineText(t *testing.T) {
	a, eng, path := newTestApp(t, "hello\n", nil)
	doc := docsync.DocumentID(path)

	eng.setText(doc, "hello\nworld\n")
	eng.SetCursor(context.Background(), 1, 3)
	a.refresh(context.Background())

	if got := a.buf.Text(); got != "hello\nworld\n" {
		t.Errorf("host text = %q, want engine text", got)
	}
	if row, col := a.buf.Cursor(); row != 1 || col != 3 {
		t.Errorf("host cursor = %d,%d, want 1,3", row, col)
	}
}

func TestApp_RefreshKeepsUnsyncedHostEdits(t *testing.T) {
	a, eng, path := newTestApp(t, "hello\n", nil)
	doc := docsync.DocumentID(path)

	a.modes.Set(mode.ModeInsert)
	press(t, a, char('x'))

	eng.setText(doc, "other\n")
	a.refresh(context.Background())

	if got := a.buf.Text(); got != "xhello\n" {
		t.Errorf("host text = %q, want native edit kept", got)
	}
	if row, col := a.buf.Cursor(); row != 0 || col != 1 {
		t.Errorf("host cursor = %d,%d, want 0,1", row, col)
	}
}

func TestApp_CompositeEscape(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.CompositeFirst = "j"
	cfg.Keys.CompositeSecond = "k"
	a, eng, _ := newTestApp(t, "hello\n", cfg)

	a.modes.Set(mode.ModeInsert)
	press(t, a, char('j'), char('k'))

	if got := a.buf.Text(); got != "hello\n" {
		t.Errorf("host text = %q, want the first key removed", got)
	}
	inputs, dot := eng.snapshot()
	if !equal(inputs, []string{"<Esc>"}) {
		t.Errorf("inputs = %q, want [<Esc>]", inputs)
	}
	if len(dot) != 0 {
		t.Errorf("dot repeat = %q, want nothing", dot)
	}
}

func TestApp_CompositeKeysTypeInNormalMode(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.CompositeFirst = "j"
	cfg.Keys.CompositeSecond = "k"
	a, eng, _ := newTestApp(t, "hello\n", cfg)

	press(t, a, char('j'), char('k'))

	inputs, _ := eng.snapshot()
	if !equal(inputs, []string{"j", "k"}) {
		t.Errorf("inputs = %q, want [j k]", inputs)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	a, eng, _ := newTestApp(t, "hello\n", nil)

	cfg := config.Default()
	cfg.Keys.Escape = "ctrl+e"
	cfg.CompositeEscapeTimeout = 500
	a.applyConfig(cfg)

	press(t, a, special(gocui.KeyEsc), special(gocui.KeyCtrlE))

	inputs, _ := eng.snapshot()
	if !equal(inputs, []string{"<Esc>"}) {
		t.Errorf("inputs = %q, want [<Esc>] from the rebound key", inputs)
	}
	if a.status().Message != "config reloaded" {
		t.Errorf("status message = %q, want %q", a.status().Message, "config reloaded")
	}
}

func TestApp_Save(t *testing.T) {
	a, _, path := newTestApp(t, "hello\n", nil)

	a.modes.Set(mode.ModeInsert)
	press(t, a, char('#'), special(gocui.KeyCtrlS))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "#hello\n" {
		t.Errorf("saved %q, want %q", data, "#hello\n")
	}
}

func TestApp_Status(t *testing.T) {
	a, _, _ := newTestApp(t, "hello\n", nil)

	s := a.status()
	if s.Mode != mode.ModeNormal || !s.Enabled {
		t.Errorf("status = %+v, want enabled normal mode", s)
	}
	if s.Document != "main.go" {
		t.Errorf("status document = %q, want main.go", s.Document)
	}
	if s.State != "idle" {
		t.Errorf("status state = %q, want idle", s.State)
	}
}

func TestApp_CloseStopsWorkers(t *testing.T) {
	a, _, _ := newTestApp(t, "hello\n", nil)

	done := make(chan struct{})
	go func() {
		a.Close()
		a.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
