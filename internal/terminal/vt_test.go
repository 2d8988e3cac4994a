package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintableAdvancesAndWraps(t *testing.T) {
	v := newVT(3, 5)
	v.Write([]byte("hello world"))
	buf := v.viewable()
	lines := buf.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, " worl", lines[1])
	assert.Equal(t, "d    ", lines[2])
}

func TestCarriageReturnAndLineFeed(t *testing.T) {
	v := newVT(2, 10)
	v.Write([]byte("abc\r\ndef"))
	lines := v.viewable().Lines()
	assert.Equal(t, "abc       ", lines[0])
	assert.Equal(t, "def       ", lines[1])
}

func TestBackspaceMovesCursorLeft(t *testing.T) {
	v := newVT(1, 10)
	v.Write([]byte("ab\bc"))
	row, col := v.cursor()
	assert.Equal(t, 0, row)
	assert.Equal(t, 2, col)
	assert.Equal(t, "ac        ", v.viewable().Lines()[0])
}

func TestScrollEntersScrollback(t *testing.T) {
	v := newVT(2, 5)
	v.Write([]byte("aaaaa\nbbbbb\nccccc"))
	full := v.full()
	lines := full.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "aaaaa", lines[0])
	assert.Equal(t, "bbbbb", lines[1])
	assert.Equal(t, "ccccc", lines[2])
}

func TestCursorPositioning(t *testing.T) {
	v := newVT(5, 10)
	v.Write([]byte("\x1b[3;4Hx"))
	row, col := v.cursor()
	assert.Equal(t, 2, row)
	assert.Equal(t, 4, col)
	assert.Equal(t, 'x', v.cur.cells[2][3].r)
}

func TestCursorMovementSequences(t *testing.T) {
	v := newVT(5, 10)
	v.Write([]byte("\x1b[2;2H"))
	v.Write([]byte("\x1b[2B"))
	v.Write([]byte("\x1b[3C"))
	row, col := v.cursor()
	assert.Equal(t, 3, row)
	assert.Equal(t, 4, col)
}

func TestEraseLineWholeLine(t *testing.T) {
	v := newVT(1, 5)
	v.Write([]byte("hello\r\x1b[2K"))
	assert.Equal(t, "     ", v.viewable().Lines()[0])
}

func TestEraseDisplayFromCursor(t *testing.T) {
	v := newVT(3, 4)
	v.Write([]byte("aaaa\r\nbbbb\r\ncccc"))
	v.Write([]byte("\x1b[2;1H\x1b[0J"))
	lines := v.viewable().Lines()
	assert.Equal(t, "aaaa", lines[0])
	assert.Equal(t, "    ", lines[1])
	assert.Equal(t, "    ", lines[2])
}

func TestAltScreenDoesNotExtendScrollback(t *testing.T) {
	v := newVT(2, 5)
	v.Write([]byte("one\r\ntwo\r\nthree"))
	require.NotEmpty(t, v.scrollback)
	before := len(v.scrollback)

	v.Write([]byte("\x1b[?1049h"))
	v.Write([]byte("alt1\r\nalt2\r\nalt3"))
	assert.Equal(t, before, len(v.scrollback), "alt screen scrolling must not extend scrollback")

	v.Write([]byte("\x1b[?1049l"))
	assert.False(t, v.onAltScreen)
}

func TestSGRIsIgnoredForText(t *testing.T) {
	v := newVT(1, 10)
	v.Write([]byte("\x1b[1;31mred\x1b[0m"))
	assert.Equal(t, "red       ", v.viewable().Lines()[0])
}

func TestResizePreservesTopLeftContent(t *testing.T) {
	v := newVT(2, 5)
	v.Write([]byte("hi"))
	v.resize(3, 8)
	lines := v.viewable().Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "hi      ", lines[0])
}

func TestWideRuneAdvancesTwoColumns(t *testing.T) {
	v := newVT(1, 10)
	v.Write([]byte("永a"))
	_, col := v.cursor()
	assert.Equal(t, 3, col)
}
