// Package engine runs an embedded Neovim process and exposes the calls the
// bridge needs: keyboard input, mode queries, buffer lines and mode-change
// notifications.
package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/go-errors/errors"
	"github.com/neovim/go-client/nvim"

	"github.com/abdullathedruid/nvbridge/internal/docsync"
	"github.com/abdullathedruid/nvbridge/internal/mode"
)

const (
	modeEvent      = "nvbridge_mode"
	recordingEvent = "nvbridge_recording"
	changedEvent   = "nvbridge_changed"
)

var (
	// ErrNotStarted is returned when the Neovim process is not running.
	ErrNotStarted = errors.New("engine not started")
	// ErrUnknownDocument is returned for documents never attached.
	ErrUnknownDocument = errors.New("document not attached to engine")
)

// setupCommands make Neovim report mode and macro recording changes.
var setupCommands = []string{
	"augroup nvbridge",
	"autocmd!",
	"autocmd ModeChanged * call rpcnotify(0, '" + modeEvent + "', mode())",
	"autocmd RecordingEnter * call rpcnotify(0, '" + recordingEvent + "', v:true)",
	"autocmd RecordingLeave * call rpcnotify(0, '" + recordingEvent + "', v:false)",
	"autocmd TextChanged,TextChangedI,CursorMoved,CursorMovedI * call rpcnotify(0, '" + changedEvent + "')",
	"augroup END",
}

// dotRepeatLua replays an insert of its argument in a throwaway buffer, so the
// redo buffer and the "." register hold it while the document is untouched.
// Autocommands are suppressed to keep the replay's mode changes from reaching
// the host.
const dotRepeatLua = `
local text = ...
local eventignore = vim.o.eventignore
vim.o.eventignore = 'all'
local scratch = vim.api.nvim_create_buf(false, true)
local ok, err = pcall(vim.api.nvim_buf_call, scratch, function()
  vim.cmd.normal({ args = { 'i' .. text:gsub('\n', '\r') }, bang = true })
end)
vim.api.nvim_buf_delete(scratch, { force = true })
vim.o.eventignore = eventignore
if not ok then error(err) end
`

// Options configures Start.
type Options struct {
	Command string
	Args    []string
	Modes   *mode.Manager
	Logger  *slog.Logger

	// OnChange is called after Neovim reports a text or cursor change.
	OnChange func()
}

type eventKind int

const (
	eventMode eventKind = iota
	eventRecording
	eventChanged
)

type event struct {
	kind      eventKind
	mode      string
	recording bool
}

// Client is a connection to an embedded Neovim process.
type Client struct {
	nv       *nvim.Nvim
	execLua  func(code string, result any, args ...any) error
	modes    *mode.Manager
	logger   *slog.Logger
	onChange func()

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.RWMutex
	buffers map[docsync.DocumentID]nvim.Buffer
}

func newClient(modes *mode.Manager, onChange func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{
		modes:    modes,
		onChange: onChange,
		logger:   logger.With("component", "engine"),
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		buffers:  make(map[docsync.DocumentID]nvim.Buffer),
	}
	c.wg.Add(1)
	go c.dispatch()
	return c
}

// Start launches Neovim with --embed and wires its notifications into
// opts.Modes.
func Start(ctx context.Context, opts Options) (*Client, error) {
	command := opts.Command
	if command == "" {
		command = "nvim"
	}
	args := append([]string{"--embed"}, opts.Args...)

	c := newClient(opts.Modes, opts.OnChange, opts.Logger)

	nv, err := nvim.NewChildProcess(
		nvim.ChildProcessCommand(command),
		nvim.ChildProcessArgs(args...),
		nvim.ChildProcessContext(ctx),
		nvim.ChildProcessLogf(func(format string, a ...interface{}) {
			c.logger.Debug("rpc", "msg", format, "args", a)
		}),
	)
	if err != nil {
		c.Close()
		return nil, errors.WrapPrefix(err, "start "+command, 0)
	}
	c.nv = nv
	c.execLua = nv.ExecLua

	if err := c.setup(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.logger.Info("engine started", "command", command)
	return c, nil
}

func (c *Client) setup(ctx context.Context) error {
	if err := c.nv.RegisterHandler(modeEvent, func(name string) {
		c.enqueue(event{kind: eventMode, mode: name})
	}); err != nil {
		return errors.WrapPrefix(err, "register "+modeEvent, 0)
	}
	if err := c.nv.RegisterHandler(recordingEvent, func(recording bool) {
		c.enqueue(event{kind: eventRecording, recording: recording})
	}); err != nil {
		return errors.WrapPrefix(err, "register "+recordingEvent, 0)
	}
	if err := c.nv.RegisterHandler(changedEvent, func() {
		c.enqueue(event{kind: eventChanged})
	}); err != nil {
		return errors.WrapPrefix(err, "register "+changedEvent, 0)
	}

	for _, ev := range []string{modeEvent, recordingEvent, changedEvent} {
		if err := c.nv.Subscribe(ev); err != nil {
			return errors.WrapPrefix(err, "subscribe "+ev, 0)
		}
	}
	for _, cmd := range setupCommands {
		if err := c.nv.Command(cmd); err != nil {
			return errors.WrapPrefix(err, "setup", 0)
		}
	}

	status, err := c.Mode(ctx)
	if err != nil {
		return err
	}
	c.modes.Set(status.Mode)
	return nil
}

// enqueue hands a notification to the dispatch goroutine so mode callbacks
// never run on the RPC reader.
func (c *Client) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			switch ev.kind {
			case eventMode:
				c.logger.Debug("mode changed", "mode", ev.mode)
				c.modes.Set(mode.Parse(ev.mode))
			case eventRecording:
				c.modes.SetRecording(ev.recording)
			case eventChanged:
				if c.onChange != nil {
					c.onChange()
				}
			}
		}
	}
}

// Input sends keys in Neovim key notation.
func (c *Client) Input(ctx context.Context, keys string) error {
	if c.nv == nil {
		return ErrNotStarted
	}
	_, err := call(ctx, func() (int, error) {
		return c.nv.Input(keys)
	})
	return err
}

// Mode queries the current mode and whether Neovim is blocked waiting for
// input.
func (c *Client) Mode(ctx context.Context) (mode.Status, error) {
	if c.nv == nil {
		return mode.Status{}, ErrNotStarted
	}
	m, err := call(ctx, c.nv.Mode)
	if err != nil {
		return mode.Status{}, err
	}
	return mode.Status{Mode: mode.Parse(m.Mode), Blocking: m.Blocking}, nil
}

// Attach creates a scratch buffer for doc holding text and makes it current.
func (c *Client) Attach(ctx context.Context, doc docsync.DocumentID, text string) error {
	if c.nv == nil {
		return ErrNotStarted
	}
	buf, err := call(ctx, func() (nvim.Buffer, error) {
		return c.nv.CreateBuffer(true, true)
	})
	if err != nil {
		return errors.WrapPrefix(err, "create buffer", 0)
	}

	c.mu.Lock()
	c.buffers[doc] = buf
	c.mu.Unlock()

	if err := c.setLines(ctx, buf, 0, -1, docsync.SplitLines(text)); err != nil {
		return err
	}
	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, c.nv.SetCurrentBuffer(buf)
	})
	return err
}

func (c *Client) buffer(doc docsync.DocumentID) (nvim.Buffer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf, ok := c.buffers[doc]
	if !ok {
		return 0, ErrUnknownDocument
	}
	return buf, nil
}

// SetLines replaces lines [start, end) of doc's buffer.
func (c *Client) SetLines(ctx context.Context, doc docsync.DocumentID, start, end int, lines []string) error {
	buf, err := c.buffer(doc)
	if err != nil {
		return err
	}
	return c.setLines(ctx, buf, start, end, lines)
}

func (c *Client) setLines(ctx context.Context, buf nvim.Buffer, start, end int, lines []string) error {
	replacement := make([][]byte, len(lines))
	for i, l := range lines {
		replacement[i] = []byte(l)
	}
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.nv.SetBufferLines(buf, start, end, true, replacement)
	})
	return err
}

// Text returns doc's buffer content, newline terminated.
func (c *Client) Text(ctx context.Context, doc docsync.DocumentID) (string, error) {
	buf, err := c.buffer(doc)
	if err != nil {
		return "", err
	}
	raw, err := call(ctx, func() ([][]byte, error) {
		return c.nv.BufferLines(buf, 0, -1, true)
	})
	if err != nil {
		return "", err
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return docsync.JoinLines(lines), nil
}

// Cursor returns the current window's cursor as a zero-based row and byte
// column.
func (c *Client) Cursor(ctx context.Context) (row, col int, err error) {
	if c.nv == nil {
		return 0, 0, ErrNotStarted
	}
	pos, err := call(ctx, func() ([2]int, error) {
		return c.nv.WindowCursor(0)
	})
	if err != nil {
		return 0, 0, err
	}
	return pos[0] - 1, pos[1], nil
}

// SetCursor moves the current window's cursor to a zero-based row and byte
// column.
func (c *Client) SetCursor(ctx context.Context, row, col int) error {
	if c.nv == nil {
		return ErrNotStarted
	}
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.nv.SetWindowCursor(0, [2]int{row + 1, col})
	})
	return err
}

// SetDotRepeat replays text as an insert inside Neovim so that "." and the
// "." register repeat what the host typed natively.
func (c *Client) SetDotRepeat(ctx context.Context, text string) error {
	if c.execLua == nil {
		return ErrNotStarted
	}
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.execLua(dotRepeatLua, nil, text)
	})
	if err != nil {
		return errors.WrapPrefix(err, "replay insert", 0)
	}
	return nil
}

// Close stops notification dispatch and terminates Neovim.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.wg.Wait()
		if c.nv != nil {
			err = c.nv.Close()
		}
	})
	return err
}

// call runs fn and returns early if ctx is cancelled first. go-client calls
// take no context.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
