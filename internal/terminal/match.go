// Matcher combinators backing Terminal.Match (poll.go), the
// general-purpose sibling of the spec's two named assertions
// (ToHaveValue/ToMatchSnapshot). A declare.TestContext exposes these
// through its own Match method so test bodies never need to reach into
// the Terminal field directly to combine conditions.
package terminal

import (
	"fmt"
	"regexp"
	"strings"
)

// A Matcher reports whether a Buffer satisfies a condition. The string
// return is a human-readable description used in poll timeout errors.
type Matcher func(b *Buffer) (ok bool, description string)

// Text matches if the buffer contains the given substring anywhere.
func Text(s string) Matcher {
	return func(b *Buffer) (bool, string) {
		return b.Contains(s), fmt.Sprintf("buffer to contain %q", s)
	}
}

// Regexp matches if the buffer's rendered text matches the regular
// expression. The pattern is compiled once; an invalid pattern panics.
func Regexp(pattern string) Matcher {
	re := regexp.MustCompile(pattern)
	return func(b *Buffer) (bool, string) {
		return re.MatchString(b.String()), fmt.Sprintf("buffer to match regexp %q", pattern)
	}
}

// Line matches if the given row (0-indexed) equals s after trimming
// trailing spaces.
func Line(n int, s string) Matcher {
	return func(b *Buffer) (bool, string) {
		desc := fmt.Sprintf("line %d to equal %q", n, s)
		lines := b.Lines()
		if n < 0 || n >= len(lines) {
			return false, desc
		}
		return strings.TrimRight(lines[n], " ") == s, desc
	}
}

// LineContains matches if the given row (0-indexed) contains substr.
func LineContains(n int, substr string) Matcher {
	return func(b *Buffer) (bool, string) {
		desc := fmt.Sprintf("line %d to contain %q", n, substr)
		lines := b.Lines()
		if n < 0 || n >= len(lines) {
			return false, desc
		}
		return strings.Contains(lines[n], substr), desc
	}
}

// AnyLineContains matches if at least one row contains substr, useful
// when the row a prompt/status line lands on shifts between runs (wrapped
// output, variable-height banners) and pinning an exact row index would
// make the assertion brittle.
func AnyLineContains(substr string) Matcher {
	return func(b *Buffer) (bool, string) {
		desc := fmt.Sprintf("some line to contain %q", substr)
		for _, line := range b.Lines() {
			if strings.Contains(line, substr) {
				return true, desc
			}
		}
		return false, desc
	}
}

// Not inverts a matcher.
func Not(m Matcher) Matcher {
	return func(b *Buffer) (bool, string) {
		ok, desc := m(b)
		return !ok, "NOT(" + desc + ")"
	}
}

// All matches when every provided matcher matches.
func All(matchers ...Matcher) Matcher {
	return func(b *Buffer) (bool, string) {
		descs := make([]string, 0, len(matchers))
		for _, m := range matchers {
			ok, desc := m(b)
			descs = append(descs, desc)
			if !ok {
				return false, "all of: " + strings.Join(descs, ", ")
			}
		}
		return true, "all of: " + strings.Join(descs, ", ")
	}
}

// Any matches when at least one provided matcher matches.
func Any(matchers ...Matcher) Matcher {
	return func(b *Buffer) (bool, string) {
		descs := make([]string, 0, len(matchers))
		for _, m := range matchers {
			ok, desc := m(b)
			descs = append(descs, desc)
			if ok {
				return true, "any of: " + strings.Join(descs, ", ")
			}
		}
		return false, "any of: " + strings.Join(descs, ", ")
	}
}

// Empty matches when the buffer has no visible content.
func Empty() Matcher {
	return func(b *Buffer) (bool, string) {
		return strings.TrimSpace(b.String()) == "", "buffer to be empty"
	}
}

// Cursor matches if the buffer's cursor is at the given 0-indexed
// (row, col). Supplements the spec's toHaveValue/toMatchSnapshot pair
// with a matcher Matcher-compatible callers can combine via All/Any/Not.
func Cursor(row, col int) Matcher {
	return func(b *Buffer) (bool, string) {
		r, c := b.Cursor()
		desc := fmt.Sprintf("cursor at row=%d, col=%d", row, col)
		if r == row && c == col {
			return true, desc
		}
		return false, desc + fmt.Sprintf(" (actual: row=%d, col=%d)", r, c)
	}
}
