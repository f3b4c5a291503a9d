package text

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// All offsets exchanged between packages are codepoint (rune) indices. The
// helpers below are the only place where they are mapped to byte offsets for
// slicing Go strings.

// RuneLen returns the number of codepoints in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// RuneIndex returns the codepoint index of the first occurrence of substr in
// s, or -1 if substr is not present.
func RuneIndex(s, substr string) int {
	i := strings.Index(s, substr)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:i])
}

// RuneToByte converts a codepoint offset into a byte offset of s. Offsets
// past the end clamp to len(s); negative offsets clamp to 0.
func RuneToByte(s string, offset int) int {
	if offset <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == offset {
			return i
		}
		n++
	}
	return len(s)
}

// ByteToRune converts a byte offset of s into a codepoint offset. A byte
// offset inside a multi-byte sequence maps to the codepoint that contains it.
func ByteToRune(s string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(s) {
		offset = len(s)
	}
	n := utf8.RuneCountInString(s[:offset])
	if offset < len(s) && !utf8.RuneStart(s[offset]) {
		n--
	}
	return n
}

// OffsetToPoint converts a codepoint offset into a (line, column) pair, both
// 0-indexed, with the column counted in codepoints.
func OffsetToPoint(s string, offset int) (line, col int) {
	i := 0
	for _, r := range s {
		if i == offset {
			break
		}
		if r == '\n' {
			line++
			col = 0
		} else {
			col++
		}
		i++
	}
	return line, col
}

// DisplayColumn returns the on-screen column (0-indexed) of a codepoint
// offset, counting wide characters as two cells the way terminals and
// editors render them.
func DisplayColumn(s string, offset int) int {
	b := RuneToByte(s, offset)
	lineStart := strings.LastIndexByte(s[:b], '\n') + 1
	return runewidth.StringWidth(s[lineStart:b])
}
