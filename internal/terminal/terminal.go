// Package terminal drives a real PTY-backed shell process and maintains a
// VT100-ish screen model against its output, exposing the polling
// assertion surface (toHaveValue, toMatchSnapshot) that worker-side test
// code runs against.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cboone/tact/internal/ptyio"
	"github.com/cboone/tact/internal/snapstore"
	"github.com/cboone/tact/internal/suite"
)

// Terminal owns one PTY-backed shell process and the screen model built
// from its output.
type Terminal struct {
	pty *ptyio.PTY

	mu sync.Mutex
	vt *vt

	readErr error
	done    chan struct{}

	defaultTimeout time.Duration
	store          *snapstore.Store
	testID         string
	updateSnapshot bool
	snapSeq        int
	snapshots      []suite.SnapshotStatus
}

// Options configures a Spawn call beyond the PTY's own shell/size/env.
type Options struct {
	DefaultTimeout time.Duration // default expect timeout (Config.Expect.Timeout)
	Store          *snapstore.Store
	TestID         string
	UpdateSnapshot bool
}

// Spawn starts shellPath as a child process attached to a new PTY of the
// given size, and begins streaming its output into the screen model.
func Spawn(shellPath string, args []string, rows, cols int, env []string, dir string, opts Options) (*Terminal, error) {
	p, err := ptyio.Spawn(shellPath, args, ptyio.Size{Rows: rows, Columns: cols}, env, dir)
	if err != nil {
		return nil, fmt.Errorf("terminal: spawn: %w", err)
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &Terminal{
		pty:            p,
		vt:             newVT(rows, cols),
		done:           make(chan struct{}),
		defaultTimeout: timeout,
		store:          opts.Store,
		testID:         opts.TestID,
		updateSnapshot: opts.UpdateSnapshot,
	}
	go t.pump()
	return t, nil
}

// pump copies PTY output into the VT state machine until the master fd
// closes (the child exited) or an unexpected read error occurs.
func (t *Terminal) pump() {
	defer close(t.done)
	r := bufio.NewReaderSize(t.pty.Master, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.mu.Lock()
			t.vt.Write(buf[:n])
			t.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				t.mu.Lock()
				t.readErr = err
				t.mu.Unlock()
			}
			return
		}
	}
}

// Write sends bytes to the shell's stdin, as if typed at the keyboard.
func (t *Terminal) Write(p []byte) error {
	_, err := t.pty.Master.Write(p)
	if err != nil {
		return fmt.Errorf("terminal: write: %w", err)
	}
	return nil
}

// WriteString is a convenience wrapper around Write.
func (t *Terminal) WriteString(s string) error {
	return t.Write([]byte(s))
}

// Resize changes the PTY's window size and the screen model's dimensions.
func (t *Terminal) Resize(rows, cols int) error {
	if err := t.pty.Resize(ptyio.Size{Rows: rows, Columns: cols}); err != nil {
		return fmt.Errorf("terminal: resize: %w", err)
	}
	t.mu.Lock()
	t.vt.resize(rows, cols)
	t.mu.Unlock()
	return nil
}

// GetViewableBuffer returns the rows currently visible on screen.
func (t *Terminal) GetViewableBuffer() *Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vt.viewable()
}

// GetBuffer returns scrollback plus the visible screen, oldest first.
func (t *Terminal) GetBuffer() *Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vt.full()
}

// Cursor returns the current cursor position (0-indexed).
func (t *Terminal) Cursor() (row, col int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vt.cursor()
}

// Wait blocks until the child process exits and returns its exit code.
func (t *Terminal) Wait() (int, error) {
	code, err := t.pty.Wait()
	<-t.done
	return code, err
}

// Kill terminates the child process and its PTY immediately.
func (t *Terminal) Kill() error {
	return t.pty.Kill()
}
