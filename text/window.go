package text

import (
	"errors"
	"fmt"
	"strings"

	"anycoder/types"
)

var (
	// ErrSentinelNotInWindow means the window built around the cursor does
	// not contain the cursor marker. The window always includes the cursor
	// line, so this indicates the cursor offset does not point at a marker.
	ErrSentinelNotInWindow = errors.New("cursor marker not found in context window")

	// ErrCursorOutOfRange is returned for cursor offsets outside the buffer.
	ErrCursorOutOfRange = errors.New("cursor offset out of range")
)

// BuildContext returns a window of 2*radius+1 lines around the line holding
// the cursor offset (fewer when the buffer is shorter). Near either end of
// the buffer the missing lines are taken from the other side. The cursor
// marker inside the window is replaced with CursorToken, and BaseOffset maps
// the window back to the buffer: buffer[BaseOffset+i] == window[i].
func BuildContext(buf string, cursor, radius int) (types.ContextWindow, error) {
	if cursor < 0 || cursor > RuneLen(buf) {
		return types.ContextWindow{}, fmt.Errorf("%w: %d", ErrCursorOutOfRange, cursor)
	}
	if radius < 0 {
		radius = 0
	}

	lines := strings.Split(buf, "\n")
	cursorLine, _ := OffsetToPoint(buf, cursor)
	startLine, endLine := windowBounds(cursorLine, len(lines)-1, radius)

	window := strings.Join(lines[startLine:endLine+1], "\n")

	// Codepoint offset of the first window line inside the buffer
	windowStart := 0
	for _, line := range lines[:startLine] {
		windowStart += RuneLen(line) + 1
	}

	rel := cursor - windowStart
	if !strings.HasPrefix(window[RuneToByte(window, rel):], CursorMarker) {
		// The cursor does not sit on a marker; fall back to the first one
		// in the window.
		rel = RuneIndex(window, CursorMarker)
		if rel < 0 {
			return types.ContextWindow{}, ErrSentinelNotInWindow
		}
	}

	at := RuneToByte(window, rel)
	return types.ContextWindow{
		Text:       window[:at] + CursorToken + window[at+len(CursorMarker):],
		BaseOffset: cursor - rel,
	}, nil
}

// windowBounds returns the inclusive line range for a window of the given
// radius around cursorLine, with maxRow the last line index.
func windowBounds(cursorLine, maxRow, radius int) (start, end int) {
	// no window is wider than the buffer; keeps radius-sized sums in range
	radius = min(radius, maxRow+1)

	before, after := radius, radius
	if cursorLine < radius {
		after += radius - cursorLine
	} else if maxRow-cursorLine < radius {
		before += radius - (maxRow - cursorLine)
	}

	start = cursorLine - before
	if start < 0 {
		start = 0
	}
	end = maxRow
	if maxRow-cursorLine > after {
		end = cursorLine + after
	}
	return start, end
}
