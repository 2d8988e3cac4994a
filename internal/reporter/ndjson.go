package reporter

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/cboone/tact/internal/shell"
	"github.com/cboone/tact/internal/suite"
)

// ndjsonEvent is one line of machine-readable output, mirroring the
// Action-discriminated event shape of `go test -json` (grounded on
// testjson.TestEvent) rather than reusing wireproto's worker-internal
// frame kinds.
type ndjsonEvent struct {
	Action     string                 `json:"action"`
	Test       string                 `json:"test,omitempty"`
	Status     suite.Status           `json:"status,omitempty"`
	DurationMS int64                  `json:"durationMs,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Snapshots  []suite.SnapshotStatus `json:"snapshots,omitempty"`
	Total      int                    `json:"total,omitempty"`
	Shells     []shell.Shell          `json:"shells,omitempty"`
	Passed     int                    `json:"passed,omitempty"`
	Failed     int                    `json:"failed,omitempty"`
	Flaky      int                    `json:"flaky,omitempty"`
	Skipped    int                    `json:"skipped,omitempty"`
}

// NDJSON is a Reporter that writes one JSON object per line, for
// consumption by CI log aggregators and other tooling.
type NDJSON struct {
	out io.Writer
	mu  sync.Mutex
}

// NewNDJSON creates an NDJSON reporter writing to out.
func NewNDJSON(out io.Writer) *NDJSON {
	return &NDJSON{out: out}
}

func (n *NDJSON) Start(totalTests int, shells []shell.Shell) {
	n.write(ndjsonEvent{Action: "start", Total: totalTests, Shells: shells})
}

func (n *NDJSON) EndTest(tc *suite.TestCase, result suite.TestResult) {
	n.write(ndjsonEvent{
		Action:     "test",
		Test:       testPath(tc),
		Status:     result.Status,
		DurationMS: result.DurationMS,
		Error:      result.Error,
		Snapshots:  result.Snapshots,
	})
}

func (n *NDJSON) End(root *suite.Suite) int {
	passed, failed, flaky, skipped, _ := summarize(root)
	n.write(ndjsonEvent{
		Action:  "summary",
		Passed:  passed,
		Failed:  failed,
		Flaky:   flaky,
		Skipped: skipped,
	})
	return failed
}

func (n *NDJSON) write(ev ndjsonEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = n.out.Write(b)
}
