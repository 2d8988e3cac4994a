package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cboone/tact/internal/shell"
	"github.com/cboone/tact/internal/suite"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	flakyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// Console is an interactive, colorized Reporter: a running tally as
// tests finish, then a summary with per-failure diagnostic boxes.
type Console struct {
	out io.Writer

	mu       sync.Mutex
	total    int
	finished int
	start    time.Time
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Start(totalTests int, shells []shell.Shell) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = totalTests
	c.start = time.Now()

	names := make([]string, len(shells))
	for i, sh := range shells {
		names[i] = string(sh)
	}
	fmt.Fprintln(c.out, headerStyle.Render(fmt.Sprintf("Running %d test(s)", totalTests)))
	if len(names) > 0 {
		fmt.Fprintln(c.out, dimStyle.Render("shells: "+strings.Join(names, ", ")))
	}
}

// EndTest prints one attempt's result as it completes. Only the final
// attempt's outcome (the TestCase's own Outcome fold) matters for the
// summary, but every attempt is echoed so retries are visible live.
func (c *Console) EndTest(tc *suite.TestCase, result suite.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished++

	icon, style := iconFor(result.Status)
	line := fmt.Sprintf("%s %s", style.Render(icon), testPath(tc))
	if result.DurationMS > 0 {
		line += dimStyle.Render(fmt.Sprintf(" (%dms)", result.DurationMS))
	}
	fmt.Fprintln(c.out, line)
}

func iconFor(status suite.Status) (string, lipgloss.Style) {
	switch status {
	case suite.StatusExpected:
		return "✓", passStyle
	case suite.StatusUnexpected:
		return "✗", failStyle
	case suite.StatusSkipped:
		return "-", skipStyle
	default:
		return "?", dimStyle
	}
}

// End prints the final summary and per-failure diagnostic boxes, and
// returns the process exit code: the count of tests whose outcome is
// neither expected, flaky nor skipped.
func (c *Console) End(root *suite.Suite) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	passed, failed, flaky, skipped, failures := summarize(root)
	elapsed := time.Since(c.start)

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, headerStyle.Render("Summary"))
	fmt.Fprintf(c.out, "%s  %s  %s  %s  %s\n",
		passStyle.Render(fmt.Sprintf("%d passed", passed)),
		failStyle.Render(fmt.Sprintf("%d failed", failed)),
		flakyStyle.Render(fmt.Sprintf("%d flaky", flaky)),
		skipStyle.Render(fmt.Sprintf("%d skipped", skipped)),
		dimStyle.Render(elapsed.Round(time.Millisecond).String()),
	)

	for _, tc := range failures {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, failStyle.Render("FAIL ")+testPath(tc))
		if len(tc.Results) > 0 {
			last := tc.Results[len(tc.Results)-1]
			if last.Error != "" {
				fmt.Fprintln(c.out, formatDiagnosticBox(last.Error))
			}
		}
	}

	return failed
}

// formatDiagnosticBox renders a box-bordered diagnostic message, the
// same box-drawing shape crawler.go's formatScreenBox uses for failed
// captures, generalized to any error text.
func formatDiagnosticBox(message string) string {
	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}
	if width == 0 {
		width = 1
	}

	var b strings.Builder
	border := strings.Repeat("─", width+2)
	fmt.Fprintf(&b, "  ┌%s┐\n", border)
	for _, l := range lines {
		fmt.Fprintf(&b, "  │ %s%s │\n", l, strings.Repeat(" ", width-len(l)))
	}
	fmt.Fprintf(&b, "  └%s┘", border)
	return b.String()
}

// testPath renders a test's full describe/test title path for display.
func testPath(tc *suite.TestCase) string {
	var segs []string
	for s := tc.Suite; s != nil && s.Type != suite.Root; s = s.Parent {
		if s.Title != "" {
			segs = append(segs, s.Title)
		}
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	segs = append(segs, tc.Title)
	return strings.Join(segs, " > ")
}
