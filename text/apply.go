package text

import (
	"fmt"
	"slices"
	"strings"

	"anycoder/types"
)

// BoundsError reports an edit whose range does not fit the buffer it is
// applied to.
type BoundsError struct {
	Edit   types.TextEdit
	Length int // codepoint length of the buffer at the time of the check
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("edit out of bounds: [%d, %d) with %q on buffer of length %d",
		e.Edit.Start, e.Edit.End, e.Edit.Text, e.Length)
}

// ApplyTextEdits removes every cursor marker from buf and then applies edits,
// which must not overlap. Edits are applied from the highest start offset
// down, so applying one never moves the range of another. If any edit is out
// of range the whole application fails and no result is returned.
func ApplyTextEdits(buf string, edits []types.TextEdit) (string, error) {
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b types.TextEdit) int {
		return b.Start - a.Start
	})

	result := []rune(strings.ReplaceAll(buf, CursorMarker, ""))

	for _, edit := range sorted {
		if edit.Start < 0 || edit.Start > edit.End || edit.End > len(result) {
			return "", &BoundsError{Edit: edit, Length: len(result)}
		}
		result = slices.Replace(result, edit.Start, edit.End, []rune(edit.Text)...)
	}

	return string(result), nil
}
