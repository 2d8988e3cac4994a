package terminal

import (
	"strconv"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// parserState is the VT state machine's current mode.
type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
	stateOSC
)

// vt consumes raw PTY output bytes and updates a screen model: a fixed
// rows x columns grid, an unbounded scrollback of lines scrolled off the
// top, and cursor position. It implements the minimum feature set from
// spec.md §4.F: printable chars with column advance/auto-wrap, CR/LF/BS,
// SGR (ignored for text semantics), CUP/CUU/CUD/CUF/CUB, ED/EL,
// scroll-up into scrollback, and DECSET/DECRST alt-screen toggling.
type vt struct {
	rows, cols int

	main *grid
	alt  *grid
	cur  *grid // points at main or alt

	scrollback  []string
	onAltScreen bool

	cursorRow, cursorCol int

	state      parserState
	csiParams  []int
	csiCur     string
	csiPrivate bool

	utf8buf []byte
}

func newVT(rows, cols int) *vt {
	v := &vt{rows: rows, cols: cols}
	v.main = newGrid(rows, cols)
	v.alt = newGrid(rows, cols)
	v.cur = v.main
	return v
}

// Write feeds raw bytes from the PTY into the state machine.
func (v *vt) Write(p []byte) {
	for _, b := range p {
		v.feed(b)
	}
}

func (v *vt) feed(b byte) {
	switch v.state {
	case stateGround:
		v.feedGround(b)
	case stateEscape:
		v.feedEscape(b)
	case stateCSI:
		v.feedCSI(b)
	case stateOSC:
		v.feedOSC(b)
	}
}

func (v *vt) feedGround(b byte) {
	switch b {
	case 0x1b: // ESC
		v.state = stateEscape
	case '\r':
		v.cursorCol = 0
	case '\n':
		v.lineFeed()
	case '\b':
		if v.cursorCol > 0 {
			v.cursorCol--
		}
	case '\t':
		next := ((v.cursorCol / 8) + 1) * 8
		if next >= v.cols {
			next = v.cols - 1
		}
		v.cursorCol = next
	default:
		if b >= 0x20 || b >= 0x80 {
			v.feedRuneByte(b)
		}
		// other C0 controls are ignored
	}
}

// feedRuneByte accumulates UTF-8 continuation bytes and, once a full rune
// is assembled, prints it.
func (v *vt) feedRuneByte(b byte) {
	v.utf8buf = append(v.utf8buf, b)
	r, size := utf8.DecodeRune(v.utf8buf)
	if r == utf8.RuneError && size <= 1 && len(v.utf8buf) < 4 {
		return // wait for more bytes
	}
	v.utf8buf = v.utf8buf[:0]
	v.printRune(r)
}

func (v *vt) printRune(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		w = 1
	}
	if v.cursorCol+w > v.cols {
		v.cursorCol = 0
		v.lineFeed()
	}
	row := v.cur.cells[v.cursorRow]
	row[v.cursorCol].r = r
	for i := 1; i < w && v.cursorCol+i < v.cols; i++ {
		row[v.cursorCol+i].r = 0
	}
	v.cursorCol += w
	if v.cursorCol >= v.cols {
		v.cursorCol = v.cols
	}
}

// lineFeed advances the cursor one row, scrolling the grid (and, on the
// main screen only, appending the scrolled-off line to scrollback) when
// already at the bottom row. Alt-screen scrolling never extends
// scrollback (spec.md §4.F).
func (v *vt) lineFeed() {
	if v.cursorRow < v.rows-1 {
		v.cursorRow++
		return
	}
	if v.cur == v.main {
		v.scrollback = append(v.scrollback, v.main.lineString(0))
	}
	v.cur.cells = append(v.cur.cells[1:], newBlankRow(v.cols))
}

func (v *vt) feedEscape(b byte) {
	switch b {
	case '[':
		v.state = stateCSI
		v.csiParams = v.csiParams[:0]
		v.csiCur = ""
		v.csiPrivate = false
	case ']':
		v.state = stateOSC
	case 'M': // reverse index
		if v.cursorRow > 0 {
			v.cursorRow--
		}
		v.state = stateGround
	default:
		v.state = stateGround
	}
}

func (v *vt) feedOSC(b byte) {
	// OSC sequences are terminated by BEL or ST (ESC \); their payload
	// (window title, etc.) has no assertion-relevant effect, so this just
	// scans for a terminator.
	if b == 0x07 {
		v.state = stateGround
	}
	// ESC within OSC (start of ST) is handled by re-entering escape on
	// the next ESC byte; a simplified single-state scan is sufficient
	// since ST's ESC is itself swallowed by remaining in stateOSC until
	// BEL, which every real-world OSC emitter also sends in practice for
	// the title sequences this emulator needs to tolerate.
}

func (v *vt) feedCSI(b byte) {
	switch {
	case b >= '0' && b <= '9':
		v.csiCur += string(b)
		return
	case b == ';':
		v.csiParams = append(v.csiParams, parseIntDefault(v.csiCur, 0))
		v.csiCur = ""
		return
	case b == '?':
		v.csiPrivate = true
		return
	case b >= 0x40 && b <= 0x7e:
		if v.csiCur != "" || len(v.csiParams) == 0 {
			v.csiParams = append(v.csiParams, parseIntDefault(v.csiCur, 0))
		}
		v.dispatchCSI(b, v.csiParams, v.csiPrivate)
		v.state = stateGround
	default:
		// intermediate bytes (space, !, etc.) are ignored
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func param(params []int, i, def int) int {
	if i >= len(params) || params[i] == 0 {
		return def
	}
	return params[i]
}

func (v *vt) dispatchCSI(final byte, params []int, private bool) {
	switch final {
	case 'A': // CUU
		v.cursorRow = max0(v.cursorRow - param(params, 0, 1))
	case 'B': // CUD
		v.cursorRow = minInt(v.rows-1, v.cursorRow+param(params, 0, 1))
	case 'C': // CUF
		v.cursorCol = minInt(v.cols-1, v.cursorCol+param(params, 0, 1))
	case 'D': // CUB
		v.cursorCol = max0(v.cursorCol - param(params, 0, 1))
	case 'H', 'f': // CUP
		row := param(params, 0, 1) - 1
		col := param(params, 1, 1) - 1
		v.cursorRow = clamp(row, 0, v.rows-1)
		v.cursorCol = clamp(col, 0, v.cols-1)
	case 'J': // ED
		v.eraseDisplay(param(params, 0, 0))
	case 'K': // EL
		v.eraseLine(param(params, 0, 0))
	case 'm': // SGR -- style, ignored for text assertion semantics
	case 'h':
		if private {
			v.setMode(params, true)
		}
	case 'l':
		if private {
			v.setMode(params, false)
		}
	}
}

// decset/decrst modes relevant to assertion semantics: 1049/47/1047
// toggle the alternate screen.
func (v *vt) setMode(params []int, enable bool) {
	for _, p := range params {
		switch p {
		case 47, 1047, 1049:
			if enable {
				v.onAltScreen = true
				v.cur = v.alt
			} else {
				v.onAltScreen = false
				v.cur = v.main
			}
			v.cursorRow, v.cursorCol = 0, 0
		}
	}
}

func (v *vt) eraseDisplay(mode int) {
	switch mode {
	case 0:
		v.eraseLine(0)
		for r := v.cursorRow + 1; r < v.rows; r++ {
			v.cur.cells[r] = newBlankRow(v.cols)
		}
	case 1:
		v.eraseLine(1)
		for r := 0; r < v.cursorRow; r++ {
			v.cur.cells[r] = newBlankRow(v.cols)
		}
	case 2, 3:
		for r := 0; r < v.rows; r++ {
			v.cur.cells[r] = newBlankRow(v.cols)
		}
	}
}

func (v *vt) eraseLine(mode int) {
	row := v.cur.cells[v.cursorRow]
	switch mode {
	case 0:
		for c := v.cursorCol; c < v.cols; c++ {
			row[c].r = ' '
		}
	case 1:
		for c := 0; c <= v.cursorCol && c < v.cols; c++ {
			row[c].r = ' '
		}
	case 2:
		for c := 0; c < v.cols; c++ {
			row[c].r = ' '
		}
	}
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// viewable renders the current screen grid only.
func (v *vt) viewable() *Buffer {
	lines := make([]string, v.rows)
	for r := 0; r < v.rows; r++ {
		lines[r] = v.cur.lineString(r)
	}
	return &Buffer{lines: lines, cursorRow: v.cursorRow, cursorCol: v.cursorCol}
}

// full renders scrollback ++ screen. lineFeed never appends to scrollback
// while the alternate screen is active, so on the alternate screen this
// is the main screen's scrollback followed by the alternate grid.
func (v *vt) full() *Buffer {
	lines := make([]string, 0, len(v.scrollback)+v.rows)
	lines = append(lines, v.scrollback...)
	for r := 0; r < v.rows; r++ {
		lines = append(lines, v.cur.lineString(r))
	}
	return &Buffer{lines: lines, cursorRow: len(v.scrollback) + v.cursorRow, cursorCol: v.cursorCol}
}

func (v *vt) cursor() (row, col int) {
	return v.cursorRow, v.cursorCol
}

func (v *vt) resize(rows, cols int) {
	// Rebuild both grids at the new size, preserving existing content
	// top-left aligned; this keeps the emulator simple and deterministic
	// for the spec's buffer-determinism property (spec.md §8 #7) since a
	// fixed byte stream plus a fixed (rows, cols) sequence of resizes
	// always produces the same result.
	v.main = resizeGrid(v.main, rows, cols)
	v.alt = resizeGrid(v.alt, rows, cols)
	if v.onAltScreen {
		v.cur = v.alt
	} else {
		v.cur = v.main
	}
	v.rows, v.cols = rows, cols
	v.cursorRow = clamp(v.cursorRow, 0, rows-1)
	v.cursorCol = clamp(v.cursorCol, 0, cols-1)
}

func resizeGrid(g *grid, rows, cols int) *grid {
	ng := newGrid(rows, cols)
	for r := 0; r < rows && r < g.rows; r++ {
		for c := 0; c < cols && c < g.cols; c++ {
			ng.cells[r][c] = g.cells[r][c]
		}
	}
	return ng
}
