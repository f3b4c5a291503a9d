package text

import (
	"unicode/utf8"

	"anycoder/types"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// newDiffer returns a diffmatchpatch instance configured for minimal
// character alignments. A zero timeout disables the half-match speedup,
// which can return a non-minimal diff.
func newDiffer() *diffmatchpatch.DiffMatchPatch {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return dmp
}

// ComputeTextEdits returns the edits that turn old into new, in ascending
// order, with offsets counted in codepoints of old.
//
// A deletion directly following an edit with no replacement text extends
// that edit. An insertion at the end of the previous edit is appended to its
// text, so delete+insert becomes one replacement.
func ComputeTextEdits(old, new string) []types.TextEdit {
	if old == new {
		return nil
	}

	diffs := newDiffer().DiffMain(old, new, false)

	var edits []types.TextEdit
	oldPos := 0

	for _, diff := range diffs {
		n := utf8.RuneCountInString(diff.Text)

		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			oldPos += n

		case diffmatchpatch.DiffDelete:
			start, end := oldPos, oldPos+n
			if last := lastEdit(edits); last != nil && last.End == start && last.Text == "" {
				last.End = end
			} else {
				edits = append(edits, types.TextEdit{Start: start, End: end})
			}
			oldPos = end

		case diffmatchpatch.DiffInsert:
			if last := lastEdit(edits); last != nil && last.End == oldPos {
				last.Text += diff.Text
			} else {
				edits = append(edits, types.TextEdit{Start: oldPos, End: oldPos, Text: diff.Text})
			}
		}
	}

	return edits
}

func lastEdit(edits []types.TextEdit) *types.TextEdit {
	if len(edits) == 0 {
		return nil
	}
	return &edits[len(edits)-1]
}

// ShiftEdits returns a copy of edits with both ends moved by delta, turning
// fragment-relative offsets into buffer-absolute ones.
func ShiftEdits(edits []types.TextEdit, delta int) []types.TextEdit {
	shifted := make([]types.TextEdit, len(edits))
	for i, e := range edits {
		shifted[i] = types.TextEdit{Start: e.Start + delta, End: e.End + delta, Text: e.Text}
	}
	return shifted
}
