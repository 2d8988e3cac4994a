// Package worker supervises a fixed-size pool of re-exec'd worker
// processes and speaks the wireproto RPC to each (spec.md §4.D).
package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/cboone/tact/internal/wireproto"
)

// WorkerSubcommand is the hidden CLI subcommand (spec.md §4.D: "each
// worker is this same binary re-executed") that cmd/tact registers to
// enter RunLoop.
const WorkerSubcommand = "worker"

// process is one live re-exec'd worker. id is a random identifier
// (independent of os pid, which gets reused) for correlating crash
// diagnostics across respawns of the same pool slot.
type process struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	w      *wireproto.Writer
	r      *wireproto.Reader
}

// Pool is a fixed-size pool of worker processes, re-exec'ing binaryPath
// with WorkerSubcommand. A worker's stdin and stdout are pipes that carry
// the wireproto frames; its stderr is copied to the main process's stderr
// and also into a buffer for crash diagnostics.
type Pool struct {
	binaryPath string
	size       int

	mu   sync.Mutex
	free chan *process
}

// New starts size worker processes. size must be >= 1.
func New(ctx context.Context, binaryPath string, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("worker: pool size must be >= 1, got %d", size)
	}
	p := &Pool{binaryPath: binaryPath, size: size, free: make(chan *process, size)}
	for i := 0; i < size; i++ {
		proc, err := p.spawn()
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("worker: new: %w", err)
		}
		p.free <- proc
	}
	return p, nil
}

func (p *Pool) spawn() (*process, error) {
	cmd := exec.Command(p.binaryPath, WorkerSubcommand)
	cmd.Stdout = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderrBuf)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	return &process{
		id:     uuid.New().String(),
		cmd:    cmd,
		stdin:  stdin,
		stderr: &stderrBuf,
		w:      wireproto.NewWriter(stdin),
		r:      wireproto.NewReader(stdout),
	}, nil
}

// kill force-terminates proc's process group.
func (proc *process) kill() {
	if proc.cmd.Process != nil {
		_ = syscall.Kill(-proc.cmd.Process.Pid, syscall.SIGKILL)
		_ = proc.cmd.Wait()
	}
}

// Dispatch sends req to a free worker and streams its response events to
// onEvent until a terminal event arrives, ctx is done, or the worker
// crashes. A killed/crashed worker is never returned to the pool; a
// fresh replacement is spawned so the pool stays at its configured size
// (spec.md §4.D: "The pool must recover from worker crash ... premature
// stream close").
func (p *Pool) Dispatch(ctx context.Context, req wireproto.Request, onEvent func(wireproto.Event)) error {
	var proc *process
	select {
	case proc = <-p.free:
	case <-ctx.Done():
		return ctx.Err()
	}

	ok := p.run(ctx, proc, req, onEvent)

	if ok {
		p.free <- proc
		return nil
	}

	proc.kill()
	replacement, err := p.spawn()
	if err != nil {
		// Leave the pool one short rather than block forever; subsequent
		// Dispatch calls degrade to serializing on the remaining capacity.
		return fmt.Errorf("worker: dispatch: respawn failed: %w", err)
	}
	p.free <- replacement
	return nil
}

// run drives one request/response exchange on proc, returning true iff a
// terminal event was received before ctx was done -- false means the
// worker must be killed and replaced.
func (p *Pool) run(ctx context.Context, proc *process, req wireproto.Request, onEvent func(wireproto.Event)) bool {
	if err := proc.w.WriteFrame(req); err != nil {
		onEvent(wireproto.Event{Kind: wireproto.EventError, Message: fmt.Sprintf("worker: write request: %v", err)})
		return false
	}

	type result struct {
		ev  wireproto.Event
		err error
	}
	events := make(chan result, 1)

	for {
		go func() {
			var ev wireproto.Event
			err := proc.r.ReadFrame(&ev)
			events <- result{ev: ev, err: err}
		}()

		select {
		case <-ctx.Done():
			onEvent(wireproto.Event{Kind: wireproto.EventError, Message: fmt.Sprintf("worker %s: per-call timeout exceeded", proc.id)})
			return false
		case res := <-events:
			if res.err != nil {
				excerpt := lastLines(proc.stderr.String(), 20)
				onEvent(wireproto.Event{Kind: wireproto.EventError, Message: fmt.Sprintf("worker %s: crashed or closed stream: %v\n%s", proc.id, res.err, excerpt)})
				return false
			}
			onEvent(res.ev)
			if res.ev.IsTerminal() {
				return true
			}
		}
	}
}

func lastLines(s string, n int) string {
	lines := splitLines(s)
	if len(lines) <= n {
		return s
	}
	return joinLines(lines[len(lines)-n:])
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// Shutdown force-kills every worker in the pool, draining free so no
// further Dispatch succeeds.
func (p *Pool) Shutdown() {
	close(p.free)
	for proc := range p.free {
		proc.kill()
	}
}

// Size returns the pool's configured size.
func (p *Pool) Size() int { return p.size }
