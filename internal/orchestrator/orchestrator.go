// Package orchestrator walks a built suite tree, selects the tests to
// run, dispatches each to the worker pool with retries, and folds
// results back into the suite tree for the reporter (spec.md §4.C).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cboone/tact/internal/config"
	"github.com/cboone/tact/internal/shell"
	"github.com/cboone/tact/internal/suite"
	"github.com/cboone/tact/internal/wireproto"
)

// Dispatcher is the worker pool's consumed shape. *worker.Pool satisfies
// this; tests substitute a fake to avoid spawning real processes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req wireproto.Request, onEvent func(wireproto.Event)) error
}

// CacheDir is where the out-of-scope transform step writes compiled test
// plugins and where shell pre-run preparation (e.g. zsh's isolated
// dotfiles) scratches its files (spec.md §6).
const CacheDir = ".tact/cache"

// Reporter is the consumed interface spec.md §6 names without
// specifying: start/endTest/end.
type Reporter interface {
	Start(totalTests int, shells []shell.Shell)
	EndTest(tc *suite.TestCase, result suite.TestResult)
	End(root *suite.Suite) int
}

// ExecutionOptions is the per-run input the CLI assembles.
type ExecutionOptions struct {
	UpdateSnapshot bool
	TestFilter     []string
}

// Orchestrator coordinates one run of a loaded suite tree.
type Orchestrator struct {
	cfg      config.Config
	reporter Reporter
	pool     Dispatcher
	log      *slog.Logger
}

// New creates an Orchestrator. log may be nil, in which case a discard
// logger is used.
func New(cfg config.Config, reporter Reporter, pool Dispatcher, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Orchestrator{cfg: cfg, reporter: reporter, pool: pool, log: log}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// ErrConfiguration marks a fatal, non-retryable configuration error
// (spec.md §7): exit code 1 is reserved for these.
var ErrConfiguration = fmt.Errorf("orchestrator: configuration error")

// ErrGlobalTimeout marks the process-wide deadline firing.
var ErrGlobalTimeout = fmt.Errorf("orchestrator: global timeout exceeded")

// Run selects, schedules and dispatches every test in root, returning
// the process exit code (the reporter's End count of failed tests;
// flaky and skipped tests are not counted) or a fatal error for
// configuration/global-timeout failures.
func (o *Orchestrator) Run(ctx context.Context, root *suite.Suite, opts ExecutionOptions) (int, error) {
	selected, err := o.selectTests(root, opts)
	if err != nil {
		return 1, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	shells := distinctShells(selected)
	zdotdirs, err := o.prepareShells(shells)
	if err != nil {
		return 1, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	o.reporter.Start(len(selected), shells)

	runCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.GlobalTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.GlobalTimeout)
		defer cancel()
	}

	sem := semaphore.NewWeighted(int64(o.cfg.Workers))
	var wg sync.WaitGroup
	for _, tc := range selected {
		tc := tc
		if tc.HasAnnotation(suite.Skip) {
			o.recordSkip(tc)
			continue
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			break // context done: global timeout or caller cancellation
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			o.runWithRetries(runCtx, tc, opts, zdotdirs)
		}()
	}
	wg.Wait()

	if runCtx.Err() != nil && o.cfg.GlobalTimeout > 0 {
		return 1, fmt.Errorf("%w after %s", ErrGlobalTimeout, o.cfg.GlobalTimeout)
	}

	return o.reporter.End(root), nil
}

// selectTests implements spec.md §4.C's selection pipeline.
func (o *Orchestrator) selectTests(root *suite.Suite, opts ExecutionOptions) ([]*suite.TestCase, error) {
	tests := root.AllTests()

	if hasAnyOnly(tests) {
		tests = filterTests(tests, func(tc *suite.TestCase) bool { return tc.HasAnnotation(suite.Only) })
	}

	if len(opts.TestFilter) > 0 {
		patterns := make([]*regexp.Regexp, len(opts.TestFilter))
		for i, pat := range opts.TestFilter {
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, fmt.Errorf("invalid test filter %q: %w", pat, err)
			}
			patterns[i] = re
		}
		tests = filterTests(tests, func(tc *suite.TestCase) bool {
			path := sourcePath(tc)
			for _, re := range patterns {
				if re.MatchString(path) {
					return true
				}
			}
			return false
		})
	}

	return tests, nil
}

func hasAnyOnly(tests []*suite.TestCase) bool {
	for _, tc := range tests {
		if tc.HasAnnotation(suite.Only) {
			return true
		}
	}
	return false
}

func filterTests(tests []*suite.TestCase, keep func(*suite.TestCase) bool) []*suite.TestCase {
	out := make([]*suite.TestCase, 0, len(tests))
	for _, tc := range tests {
		if keep(tc) {
			out = append(out, tc)
		}
	}
	return out
}

// sourcePath walks up to the nearest File ancestor and returns its
// resolved source path.
func sourcePath(tc *suite.TestCase) string {
	for s := tc.Suite; s != nil; s = s.Parent {
		if s.Type == suite.File {
			return s.Source
		}
	}
	return ""
}

// distinctShells returns the set of shells selected tests will spawn,
// for the pre-run hook (spec.md §4.C).
func distinctShells(tests []*suite.TestCase) []shell.Shell {
	seen := make(map[shell.Shell]bool)
	var out []shell.Shell
	for _, tc := range tests {
		opts := tc.Suite.EffectiveOptions()
		sh := shell.Bash
		if opts.Shell != nil {
			sh = shell.Shell(*opts.Shell)
		}
		if !seen[sh] {
			seen[sh] = true
			out = append(out, sh)
		}
	}
	return out
}

// prepareShells runs shell.Prepare once per distinct shell and returns
// the resulting ZDOTDIR (non-empty only for zsh), keyed by shell, so
// dispatchOne can thread it into the wire Request for the worker to
// actually export -- spec.md §6's isolated dotfile setup is worthless if
// it's computed and written but never passed to the spawned shell.
func (o *Orchestrator) prepareShells(shells []shell.Shell) (map[shell.Shell]string, error) {
	zdotdirs := make(map[shell.Shell]string, len(shells))
	for _, sh := range shells {
		zdotdir, err := shell.Prepare(sh, CacheDir)
		if err != nil {
			return nil, err
		}
		zdotdirs[sh] = zdotdir
	}
	return zdotdirs, nil
}

func (o *Orchestrator) recordSkip(tc *suite.TestCase) {
	result := suite.TestResult{Status: suite.StatusSkipped}
	tc.Results = append(tc.Results, result)
	o.reporter.EndTest(tc, result)
}

// runWithRetries runs up to max(0, retries)+1 attempts, stopping as soon
// as an attempt resolves to expected or skipped (spec.md §4.C).
func (o *Orchestrator) runWithRetries(ctx context.Context, tc *suite.TestCase, opts ExecutionOptions, zdotdirs map[shell.Shell]string) {
	effOpts := tc.Suite.EffectiveOptions()
	retries := o.cfg.Retries
	if effOpts.RetryOverride != nil {
		retries = *effOpts.RetryOverride
	}
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		result, ok := o.dispatchOne(ctx, tc, opts, effOpts, zdotdirs)
		if !ok {
			// ctx (the global-timeout context) was canceled mid-dispatch:
			// the worker was killed for a reason that has nothing to do
			// with this test, so nothing is recorded for it (spec.md §5/§8).
			return
		}
		tc.Results = append(tc.Results, result)
		o.reporter.EndTest(tc, result)
		if result.Status == suite.StatusExpected || result.Status == suite.StatusSkipped {
			return
		}
	}
}

// dispatchOne sends one attempt to the pool and maps the resulting
// events to a TestResult via spec.md §4.C's status mapping table. The
// second return value is false when ctx itself (the global-timeout
// context, not dispatchOne's own per-test deadline) ended the dispatch;
// callers must discard the attempt rather than record a result for it
// (spec.md §5: "a killed worker's partial events are discarded").
func (o *Orchestrator) dispatchOne(ctx context.Context, tc *suite.TestCase, opts ExecutionOptions, effOpts suite.TestOptions, zdotdirs map[shell.Shell]string) (suite.TestResult, bool) {
	timeout := o.cfg.Expect.Timeout
	if timeout <= 0 {
		timeout = o.cfg.Timeout
	}
	dispatchCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		dispatchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sh := shell.Bash
	if effOpts.Shell != nil {
		sh = shell.Shell(*effOpts.Shell)
	}

	req := wireproto.Request{
		TestID: tc.ID,
		SuiteSummary: wireproto.SuiteSummary{
			ProjectTitle:     projectTitle(tc),
			FileTitle:        fileTitle(tc),
			FileRow:          fileRow(tc),
			EffectiveOptions: effOpts,
		},
		SourcePath:     sourcePath(tc),
		TimeoutMS:      timeout.Milliseconds(),
		UpdateSnapshot: opts.UpdateSnapshot,
		ZDOTDIR:        zdotdirs[sh],
	}

	var (
		start     time.Time
		gotStart  bool
		snapshots []suite.SnapshotStatus
		failMsg   string
		failed    bool
		duration  time.Duration
	)

	err := o.pool.Dispatch(dispatchCtx, req, func(ev wireproto.Event) {
		switch ev.Kind {
		case wireproto.EventStarted:
			start = time.UnixMilli(ev.T0)
			gotStart = true
		case wireproto.EventSnapshot:
			if ev.Status != nil {
				snapshots = append(snapshots, *ev.Status)
			}
		case wireproto.EventError:
			failed = true
			failMsg = ev.Message
			duration = time.Duration(ev.DurationMS) * time.Millisecond
		case wireproto.EventDone:
			duration = time.Duration(ev.DurationMS) * time.Millisecond
		}
	})

	if ctx.Err() != nil {
		// The global timeout (or caller cancellation), not this dispatch's
		// own deadline, ended the run: discard rather than misreport this
		// as the test's own outcome.
		return suite.TestResult{}, false
	}

	timedOut := dispatchCtx.Err() != nil
	if err != nil && !failed {
		failed = true
		failMsg = err.Error()
	}
	if gotStart && duration == 0 {
		duration = time.Since(start)
	}

	status := mapOutcome(tc.HasAnnotation(suite.Fail), failed, timedOut)

	result := suite.TestResult{
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Snapshots:  snapshots,
	}
	if failed {
		result.Error = failMsg
	}
	return result, true
}

// mapOutcome implements spec.md §4.C's status mapping table.
func mapOutcome(failAnnotated, workerFailed, timedOut bool) suite.Status {
	if timedOut {
		return suite.StatusUnexpected
	}
	switch {
	case !workerFailed && !failAnnotated:
		return suite.StatusExpected
	case !workerFailed && failAnnotated:
		return suite.StatusUnexpected
	case workerFailed && !failAnnotated:
		return suite.StatusUnexpected
	default: // workerFailed && failAnnotated
		return suite.StatusExpected
	}
}

func projectTitle(tc *suite.TestCase) string {
	for s := tc.Suite; s != nil; s = s.Parent {
		if s.Type == suite.Project {
			return s.Title
		}
	}
	return ""
}

func fileTitle(tc *suite.TestCase) string {
	for s := tc.Suite; s != nil; s = s.Parent {
		if s.Type == suite.File {
			return s.Title
		}
	}
	return ""
}

func fileRow(tc *suite.TestCase) int {
	for s := tc.Suite; s != nil; s = s.Parent {
		if s.Type == suite.File {
			return s.FileRow
		}
	}
	return 0
}

// AbsoluteCacheDir resolves CacheDir against a working directory. The
// orchestrator itself passes the relative CacheDir to shell.Prepare.
func AbsoluteCacheDir(cwd string) string {
	return filepath.Join(cwd, CacheDir)
}
