// Package runtime implements the worker-side test runtime (spec.md
// §4.E): importing a test file's plugin at most once per worker process,
// looking up a test by id, spawning its PTY, running its body, and
// streaming structured events back to the pool.
package runtime

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cboone/tact/internal/declare"
	"github.com/cboone/tact/internal/shell"
	"github.com/cboone/tact/internal/snapstore"
	"github.com/cboone/tact/internal/suite"
	"github.com/cboone/tact/internal/terminal"
	"github.com/cboone/tact/internal/wireproto"
)

// Runtime holds the per-worker state that must survive across multiple
// runTest calls within the same process: the import cache. Nothing else
// is shared between attempts (spec.md §4.E "Isolation").
type Runtime struct {
	mu    sync.Mutex
	cache map[string]*declare.FileRegistry
}

// New creates an empty worker runtime.
func New() *Runtime {
	return &Runtime{cache: make(map[string]*declare.FileRegistry)}
}

// Import loads sourcePath's plugin at most once, reconstructing just
// enough suite-tree shape (a Project wrapping the File) to rederive the
// same test ids the orchestrator computed when it first loaded the file.
// Re-imports return the cached registry (spec.md §4.E point 1: "Re-imports
// are not supported -- tests are addressed by pre-registered id").
func (rt *Runtime) Import(projectTitle, fileTitle, sourcePath string) (*declare.FileRegistry, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if reg, ok := rt.cache[sourcePath]; ok {
		return reg, nil
	}

	root := suite.NewRoot()
	proj, err := root.AddChild(projectTitle, suite.Project)
	if err != nil {
		return nil, fmt.Errorf("runtime: import: %w", err)
	}
	_, reg, err := declare.LoadFile(proj, fileTitle, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("runtime: import: %w", err)
	}
	rt.cache[sourcePath] = reg
	return reg, nil
}

// EmitFunc streams one response event. Implementations must not block
// indefinitely; the caller is expected to write it to the wire.
type EmitFunc func(wireproto.Event)

// RunAttempt executes one attempt of req end to end, emitting started,
// zero or more snapshot, and exactly one terminal (error or done) event
// through emit, in that order (spec.md §4.D/§4.E, §5 ordering
// guarantees). If the attempt fails before its PTY is running (import,
// test lookup, shell resolution or spawn), only the error event is
// emitted. It never returns an error itself -- all failure modes are
// reported as an EventError.
func RunAttempt(ctx context.Context, rt *Runtime, req wireproto.Request, emit EmitFunc) {
	reg, err := rt.Import(req.SuiteSummary.ProjectTitle, req.SuiteSummary.FileTitle, req.SourcePath)
	if err != nil {
		emit(wireproto.Event{Kind: wireproto.EventError, Message: err.Error()})
		return
	}

	fn, ok := reg.Lookup(req.TestID)
	if !ok {
		emit(wireproto.Event{Kind: wireproto.EventError, Message: fmt.Sprintf("runtime: no test registered for id %q", req.TestID)})
		return
	}

	opts := req.SuiteSummary.EffectiveOptions
	rows := suite.DefaultRows
	if opts.Rows != nil {
		rows = *opts.Rows
	}
	cols := suite.DefaultColumns
	if opts.Columns != nil {
		cols = *opts.Columns
	}
	sh := shell.Bash
	if opts.Shell != nil {
		sh = shell.Shell(*opts.Shell)
	}
	cwd := ""
	if opts.Cwd != nil {
		cwd = *opts.Cwd
	}

	path, args, err := sh.Executable(req.ZDOTDIR)
	if err != nil {
		emit(wireproto.Event{Kind: wireproto.EventError, Message: err.Error()})
		return
	}
	env := append(os.Environ(), sh.Env(req.ZDOTDIR)...)
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	start := time.Now()

	term, err := terminal.Spawn(path, args, rows, cols, env, cwd, terminal.Options{
		DefaultTimeout: time.Duration(req.TimeoutMS) * time.Millisecond,
		Store:          snapstore.ForSourceFile(req.SourcePath),
		TestID:         req.TestID,
		UpdateSnapshot: req.UpdateSnapshot,
	})
	if err != nil {
		emit(wireproto.Event{Kind: wireproto.EventError, Message: err.Error(), DurationMS: time.Since(start).Milliseconds()})
		return
	}
	defer term.Kill()

	emit(wireproto.Event{Kind: wireproto.EventStarted, T0: start.UnixMilli()})

	runCtx := ctx
	var cancel context.CancelFunc
	if req.TimeoutMS > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	testErr := runTestBody(runCtx, fn, term)

	for _, snap := range term.Snapshots() {
		emit(wireproto.Event{Kind: wireproto.EventSnapshot, Status: &snap})
	}

	duration := time.Since(start).Milliseconds()
	if testErr != nil {
		emit(wireproto.Event{Kind: wireproto.EventError, Message: testErr.Error(), DurationMS: duration})
		return
	}
	emit(wireproto.Event{Kind: wireproto.EventDone, DurationMS: duration})
}

// runTestBody invokes fn, converting a timeout or panic into a regular
// error so the caller has one uniform failure path (spec.md §4.E point
// 5: "stringified stack (fall back to message)").
func runTestBody(ctx context.Context, fn declare.TestFunc, term *terminal.Terminal) (err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("runtime: test body panicked: %v", r)
			}
		}()
		done <- fn(ctx, &declare.TestContext{Terminal: term})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("runtime: test timed out: %w", ctx.Err())
	}
}
