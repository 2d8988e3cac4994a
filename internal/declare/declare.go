// Package declare implements the test-declaration API that a transformed
// test file's Register function calls into while it is being loaded.
//
// Per the design note on ambient mutable suite state, the "currently
// active suite" is not a package global: it lives on the Declarator
// value itself, whose lifetime is scoped to one file-load call. A
// transformed test file is a Go plugin exporting:
//
//	func Register(d *declare.Declarator)
package declare

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cboone/tact/internal/suite"
	"github.com/cboone/tact/internal/terminal"
)

// TestContext is the argument passed to a TestFunc.
type TestContext struct {
	Terminal *terminal.Terminal
}

// Match polls the viewable buffer against an arbitrary terminal.Matcher,
// sitting alongside ToHaveValue as the general-purpose assertion a test
// body reaches for when a single substring/regexp isn't expressive
// enough -- e.g. terminal.All(terminal.Text("done"), terminal.Not(terminal.Text("error"))).
func (tc *TestContext) Match(ctx context.Context, m terminal.Matcher, timeout time.Duration) error {
	return tc.Terminal.Match(ctx, m, timeout, false)
}

// TestFunc is a test body. It receives a context for cancellation
// (honored by the runtime's per-call timeout) and a TestContext exposing
// the Terminal.
type TestFunc func(ctx context.Context, tc *TestContext) error

// HookFunc is a before-each/before-all hook body.
type HookFunc func(ctx context.Context) error

// state tracks whether the Declarator is currently inside a hook body,
// where test.use-equivalent calls (Use) are disallowed per spec.md §4.B.
type state int

const (
	stateDeclaring state = iota
	stateInHook
)

// Declarator is the explicit, non-global loader context threaded through
// one file's Register call (and recursively through Describe callbacks).
type Declarator struct {
	suite      *suite.Suite // the currently ambient suite
	reg        *FileRegistry
	state      state
	beforeEach []HookFunc
	beforeAll  []HookFunc
}

// FileRegistry maps a test id to its callable body, accumulated across
// one Register invocation (including nested Describe callbacks).
type FileRegistry struct {
	funcs map[string]TestFunc
}

// NewFileRegistry creates an empty registry.
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{funcs: make(map[string]TestFunc)}
}

func (r *FileRegistry) put(id string, fn TestFunc) {
	r.funcs[id] = fn
}

// Lookup returns the TestFunc registered for id, if any.
func (r *FileRegistry) Lookup(id string) (TestFunc, bool) {
	fn, ok := r.funcs[id]
	return fn, ok
}

// NewForFile creates the root Declarator for a freshly created file
// Suite, backed by a fresh FileRegistry.
func NewForFile(fileSuite *suite.Suite) (*Declarator, *FileRegistry) {
	reg := NewFileRegistry()
	return &Declarator{suite: fileSuite, reg: reg}, reg
}

// ErrUseInsideHook is returned by Use when called during a hook body.
var ErrUseInsideHook = fmt.Errorf("declare: test.use called from inside a before-each/before-all hook")

// location captures the call site of the exported Test/Skip/Fail method
// that ultimately invoked it. Falls back to {0,0} if unavailable, per
// spec.md §4.B/§9.
func (d *Declarator) location() suite.Location {
	_, _, line, ok := runtime.Caller(3)
	if !ok {
		return suite.Location{}
	}
	// Column capture is platform-dependent and unavailable via
	// runtime.Caller; spec.md tolerates {0,0} fallbacks and tests are
	// documented not to rely on exact coordinates beyond presence in the
	// title path (which only encodes the row, doubled).
	return suite.Location{Row: line, Column: 0}
}

func (d *Declarator) addTest(title string, fn TestFunc, annotations ...suite.Annotation) *suite.TestCase {
	ann := make(map[suite.Annotation]bool, len(annotations))
	for _, a := range annotations {
		ann[a] = true
	}
	tc := &suite.TestCase{
		Title:       title,
		Location:    d.location(),
		Annotations: ann,
		Suite:       d.suite,
	}
	tc.ID = suite.DeriveID(d.suite, title)
	d.suite.Tests = append(d.suite.Tests, tc)
	d.reg.put(tc.ID, fn)
	return tc
}

// Test declares a plain test.
func (d *Declarator) Test(title string, fn TestFunc) *suite.TestCase {
	return d.addTest(title, fn)
}

// Skip declares a test annotated skip: it remains in the selection set
// but is emitted as skipped without dispatch (spec.md §4.C).
func (d *Declarator) Skip(title string, fn TestFunc) *suite.TestCase {
	return d.addTest(title, fn, suite.Skip)
}

// Fail declares a test annotated fail: success flips to unexpected,
// failure flips to expected (spec.md §4.C's status mapping table).
func (d *Declarator) Fail(title string, fn TestFunc) *suite.TestCase {
	return d.addTest(title, fn, suite.Fail)
}

// Only declares a test annotated only. If any selected test carries
// only, only only-annotated tests are dispatched (spec.md §4.C/§8).
func (d *Declarator) Only(title string, fn TestFunc) *suite.TestCase {
	return d.addTest(title, fn, suite.Only)
}

// Describe creates a child describe suite, makes it ambient for the
// duration of cb, then restores the previous ambient suite -- mirroring
// spec.md §4.B exactly, but via an explicit child Declarator instead of
// a saved/restored global.
func (d *Declarator) Describe(title string, cb func(*Declarator)) error {
	child, err := d.suite.AddChild(title, suite.Describe)
	if err != nil {
		return err
	}
	childDeclarator := &Declarator{suite: child, reg: d.reg, beforeEach: append([]HookFunc{}, d.beforeEach...), beforeAll: append([]HookFunc{}, d.beforeAll...)}
	cb(childDeclarator)
	return nil
}

// Use merges options into the ambient suite's options. Returns
// ErrUseInsideHook if called from within a hook body.
func (d *Declarator) Use(opts suite.TestOptions) error {
	if d.state == stateInHook {
		return ErrUseInsideHook
	}
	d.suite.Options = suite.Merge(d.suite.Options, opts)
	return nil
}

// BeforeEach records a before-each hook on this Declarator (supplemented
// feature; does not affect suite-tree shape -- see SPEC_FULL.md §9).
// Describe copies the hooks recorded so far into each child Declarator;
// hooks recorded after a Describe call are not seen by that child.
// RunBeforeEach executes them. The worker runtime does not call
// RunBeforeEach, so hooks are not run before dispatched tests.
func (d *Declarator) BeforeEach(fn HookFunc) {
	d.beforeEach = append(d.beforeEach, fn)
}

// BeforeAll records a before-all hook on this Declarator, inherited by
// child Declarators the same way as BeforeEach. RunBeforeAll executes
// them; the worker runtime does not call RunBeforeAll.
func (d *Declarator) BeforeAll(fn HookFunc) {
	d.beforeAll = append(d.beforeAll, fn)
}

// Hooks returns the accumulated before-each/before-all hooks visible at
// this Declarator's scope, innermost-last.
func (d *Declarator) Hooks() (beforeEach, beforeAll []HookFunc) {
	return d.beforeEach, d.beforeAll
}

// runHooks executes hooks with state set to stateInHook so that nested
// Use calls are rejected, then restores state.
func (d *Declarator) runHooks(ctx context.Context, hooks []HookFunc) error {
	d.state = stateInHook
	defer func() { d.state = stateDeclaring }()
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunBeforeEach runs this Declarator's accumulated before-each hooks.
func (d *Declarator) RunBeforeEach(ctx context.Context) error {
	return d.runHooks(ctx, d.beforeEach)
}

// RunBeforeAll runs this Declarator's accumulated before-all hooks.
func (d *Declarator) RunBeforeAll(ctx context.Context) error {
	return d.runHooks(ctx, d.beforeAll)
}
