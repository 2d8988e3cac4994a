package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bufferOf(lines ...string) *Buffer {
	return &Buffer{lines: lines}
}

func TestTextAndRegexpMatchers(t *testing.T) {
	b := bufferOf("hello world", "second line")

	ok, _ := Text("world")(b)
	assert.True(t, ok)

	ok, _ = Text("missing")(b)
	assert.False(t, ok)

	ok, _ = Regexp(`^hello`)(b)
	assert.True(t, ok)
}

func TestLineAndLineContains(t *testing.T) {
	b := bufferOf("exact   ", "contains-substring")

	ok, _ := Line(0, "exact")(b)
	assert.True(t, ok, "Line trims trailing spaces before comparing")

	ok, _ = LineContains(1, "substring")(b)
	assert.True(t, ok)

	ok, _ = Line(5, "out of range")(b)
	assert.False(t, ok)
}

func TestAnyLineContains(t *testing.T) {
	b := bufferOf("first line", "second line", "target here")

	ok, _ := AnyLineContains("target")(b)
	assert.True(t, ok)

	ok, _ = AnyLineContains("missing")(b)
	assert.False(t, ok)
}

func TestNotInvertsResult(t *testing.T) {
	b := bufferOf("present")
	ok, _ := Not(Text("present"))(b)
	assert.False(t, ok)
	ok, _ = Not(Text("absent"))(b)
	assert.True(t, ok)
}

func TestAllRequiresEveryMatcher(t *testing.T) {
	b := bufferOf("foo bar baz")
	ok, _ := All(Text("foo"), Text("bar"))(b)
	assert.True(t, ok)
	ok, _ = All(Text("foo"), Text("missing"))(b)
	assert.False(t, ok)
}

func TestAnyRequiresOneMatcher(t *testing.T) {
	b := bufferOf("foo bar")
	ok, _ := Any(Text("nope"), Text("bar"))(b)
	assert.True(t, ok)
	ok, _ = Any(Text("nope"), Text("absent"))(b)
	assert.False(t, ok)
}

func TestEmptyMatcher(t *testing.T) {
	ok, _ := Empty()(bufferOf("   ", ""))
	assert.True(t, ok)
	ok, _ = Empty()(bufferOf("x"))
	assert.False(t, ok)
}

func TestCursorMatcher(t *testing.T) {
	b := &Buffer{lines: []string{"x"}, cursorRow: 2, cursorCol: 5}
	ok, _ := Cursor(2, 5)(b)
	assert.True(t, ok)
	ok, _ = Cursor(0, 0)(b)
	assert.False(t, ok)
}
