package terminal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cboone/tact/internal/snapstore"
	"github.com/cboone/tact/internal/suite"
)

// defaultPollInterval is the fixed sample rate for toHaveValue polling
// (spec.md §4.F: "repeatedly (every 50 ms)").
const defaultPollInterval = 50 * time.Millisecond

// ValueOptions configures ToHaveValue/NotToHaveValue.
type ValueOptions struct {
	Timeout time.Duration
	Full    bool // default false: poll the viewable buffer, not scrollback++screen
}

// poll is the assertion engine's single primitive (spec.md §9 Design
// Note / §8 invariant 5): sample predicate every interval until it
// equals expectTruthy or the deadline passes. Returns true iff the
// predicate was observed to equal expectTruthy at some sample strictly
// before the deadline elapsed; it never reports success after a
// deadline-timed failure.
func poll(ctx context.Context, predicate func() bool, interval, timeout time.Duration, expectTruthy bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if predicate() == expectTruthy {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

func (t *Terminal) bufferFor(full bool) *Buffer {
	if full {
		return t.GetBuffer()
	}
	return t.GetViewableBuffer()
}

// ToHaveValue polls the selected buffer until it contains (string
// expected) or matches (*regexp.Regexp expected), per spec.md §4.F.
// Returns an error describing a timeout if the deadline passes first.
func (t *Terminal) ToHaveValue(ctx context.Context, expected any, opts ValueOptions) error {
	return t.pollValue(ctx, expected, opts, true)
}

// NotToHaveValue is ToHaveValue's inversion: it succeeds as soon as the
// buffer stops matching, satisfying the inversion-duality property
// (spec.md §8 invariant 6) since both share the same predicate and
// differ only in expectTruthy.
func (t *Terminal) NotToHaveValue(ctx context.Context, expected any, opts ValueOptions) error {
	return t.pollValue(ctx, expected, opts, false)
}

func (t *Terminal) pollValue(ctx context.Context, expected any, opts ValueOptions, expectTruthy bool) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}

	var re *regexp.Regexp
	var literal string
	var desc string
	switch e := expected.(type) {
	case *regexp.Regexp:
		re = e
		desc = fmt.Sprintf("match regexp %q", e.String())
	case string:
		literal = e
		desc = fmt.Sprintf("contain %q", e)
	default:
		return fmt.Errorf("terminal: toHaveValue: expected must be a string or *regexp.Regexp, got %T", expected)
	}

	predicate := func() bool {
		s := t.bufferFor(opts.Full).String()
		if re != nil {
			return re.MatchString(s)
		}
		return strings.Contains(s, literal)
	}

	if poll(ctx, predicate, defaultPollInterval, timeout, expectTruthy) {
		return nil
	}
	if expectTruthy {
		return fmt.Errorf("terminal: toHaveValue: timed out after %s waiting for buffer to %s", timeout, desc)
	}
	return fmt.Errorf("terminal: not.toHaveValue: timed out after %s waiting for buffer to stop %sing", timeout, strings.TrimSuffix(desc, "g"))
}

// Match polls the viewable buffer against an arbitrary Matcher, honoring
// the same poll/timeout contract as ToHaveValue. Supplements the spec's
// two named matchers with the combinator vocabulary in match.go.
func (t *Terminal) Match(ctx context.Context, m Matcher, timeout time.Duration, full bool) error {
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	var lastDesc string
	predicate := func() bool {
		ok, desc := m(t.bufferFor(full))
		lastDesc = desc
		return ok
	}
	if poll(ctx, predicate, defaultPollInterval, timeout, true) {
		return nil
	}
	return fmt.Errorf("terminal: match: timed out after %s waiting for %s", timeout, lastDesc)
}

// ToMatchSnapshot captures the full buffer, normalizes it, and compares
// it to the stored snapshot for this test's next sequence number,
// writing/updating it when updateSnapshot is set or none exists
// (spec.md §4.F). The resulting SnapshotStatus is both returned and
// appended to the Terminal's accumulated list for the worker to report.
func (t *Terminal) ToMatchSnapshot() (suite.SnapshotStatus, error) {
	if t.store == nil {
		return suite.SnapshotStatus{}, fmt.Errorf("terminal: toMatchSnapshot: no snapshot store configured")
	}

	t.mu.Lock()
	seq := t.snapSeq
	t.snapSeq++
	t.mu.Unlock()

	name := fmt.Sprintf("snapshot %d", seq)
	content := snapstore.Normalize(t.GetBuffer().String())

	existing, ok, err := t.store.Load(t.testID, seq)
	if err != nil {
		return suite.SnapshotStatus{}, fmt.Errorf("terminal: toMatchSnapshot: %w", err)
	}

	var status suite.SnapshotStatus
	switch {
	case !ok:
		if err := t.store.Save(t.testID, seq, content); err != nil {
			return suite.SnapshotStatus{}, fmt.Errorf("terminal: toMatchSnapshot: %w", err)
		}
		status = suite.SnapshotStatus{Name: name, Outcome: suite.SnapshotWritten}
	case t.updateSnapshot:
		if err := t.store.Save(t.testID, seq, content); err != nil {
			return suite.SnapshotStatus{}, fmt.Errorf("terminal: toMatchSnapshot: %w", err)
		}
		status = suite.SnapshotStatus{Name: name, Outcome: suite.SnapshotUpdated}
	case existing == content:
		status = suite.SnapshotStatus{Name: name, Outcome: suite.SnapshotMatched}
	default:
		status = suite.SnapshotStatus{Name: name, Outcome: suite.SnapshotMismatched}
	}

	t.mu.Lock()
	t.snapshots = append(t.snapshots, status)
	t.mu.Unlock()

	if status.Outcome == suite.SnapshotMismatched {
		return status, fmt.Errorf("terminal: toMatchSnapshot: mismatch for %s", name)
	}
	return status, nil
}

// Snapshots returns every SnapshotStatus produced by ToMatchSnapshot
// calls on this Terminal so far.
func (t *Terminal) Snapshots() []suite.SnapshotStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]suite.SnapshotStatus, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}
