package terminal

import "strings"

// cell is one terminal grid position. Style attributes are not tracked;
// spec.md §3 only requires assertion semantics over plain text.
type cell struct {
	r rune
}

// grid is a fixed-size rows x columns array of cells.
type grid struct {
	rows, cols int
	cells      [][]cell
}

func newGrid(rows, cols int) *grid {
	g := &grid{rows: rows, cols: cols}
	g.cells = make([][]cell, rows)
	for i := range g.cells {
		g.cells[i] = newBlankRow(cols)
	}
	return g
}

func newBlankRow(cols int) []cell {
	row := make([]cell, cols)
	for i := range row {
		row[i].r = ' '
	}
	return row
}

// lineString renders one grid row as a plain string, cells joined with no
// separator, trailing spaces preserved (spec.md §4.F).
func (g *grid) lineString(row int) string {
	var b strings.Builder
	for _, c := range g.cells[row] {
		if c.r == 0 {
			b.WriteRune(' ')
		} else {
			b.WriteRune(c.r)
		}
	}
	return b.String()
}

// Buffer is a point-in-time capture of screen and/or scrollback content,
// returned by Terminal.GetViewableBuffer / Terminal.GetBuffer.
type Buffer struct {
	lines                []string
	cursorRow, cursorCol int
}

// Lines returns the buffer's rows, row-major, oldest/topmost first.
func (b *Buffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// String renders the full buffer as a single string: cells within a row
// joined with no separator, rows joined with no separator, per the
// toHaveValue/toMatchSnapshot rendering rule in spec.md §4.F.
func (b *Buffer) String() string {
	return strings.Join(b.lines, "")
}

// Contains reports whether the rendered buffer contains substr.
func (b *Buffer) Contains(substr string) bool {
	return strings.Contains(b.String(), substr)
}

// Cursor returns the cursor position (0-indexed) at the moment the
// buffer was captured.
func (b *Buffer) Cursor() (row, col int) {
	return b.cursorRow, b.cursorCol
}
