package text

import (
	"errors"
	"strings"
	"testing"

	"anycoder/assert"
	"anycoder/types"
)

func TestApplyTextEdits_Descending(t *testing.T) {
	original := "The quick brown fox jumps over the lazy dog"
	edits := []types.TextEdit{
		{Start: 43, End: 43, Text: " and cat"},
		{Start: 35, End: 39, Text: "sleepy"},
		{Start: 4, End: 9, Text: "slow"},
	}

	updated, err := ApplyTextEdits(original, edits)

	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, "The slow brown fox jumps over the sleepy dog and cat", updated, "updated")
}

func TestApplyTextEdits_OrderIndependent(t *testing.T) {
	original := "The quick brown fox jumps over the lazy dog"
	orders := [][]types.TextEdit{
		{{Start: 4, End: 9, Text: "slow"}, {Start: 35, End: 39, Text: "sleepy"}, {Start: 43, End: 43, Text: " and cat"}},
		{{Start: 35, End: 39, Text: "sleepy"}, {Start: 43, End: 43, Text: " and cat"}, {Start: 4, End: 9, Text: "slow"}},
	}

	for _, edits := range orders {
		updated, err := ApplyTextEdits(original, edits)
		assert.NoError(t, err, "ApplyTextEdits")
		assert.Equal(t, "The slow brown fox jumps over the sleepy dog and cat", updated, "updated")
	}
}

func TestApplyTextEdits_Unicode(t *testing.T) {
	original := "fn main() {\n    let fruits = vec![];\n    итер\n}"
	start := RuneIndex(original, "итер")
	edits := []types.TextEdit{
		{Start: start, End: start + RuneLen("итер"), Text: "for (fruit, quantity) in &fruits {"},
	}

	updated, err := ApplyTextEdits(original, edits)

	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, "fn main() {\n    let fruits = vec![];\n    for (fruit, quantity) in &fruits {\n}", updated, "updated")
}

func TestApplyTextEdits_StripsCursorMarker(t *testing.T) {
	original := "let ?? = 10;"
	edits := []types.TextEdit{{Start: 4, End: 4, Text: "x"}}

	updated, err := ApplyTextEdits(original, edits)

	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, "let x = 10;", updated, "updated")
}

func TestApplyTextEdits_NoEdits(t *testing.T) {
	updated, err := ApplyTextEdits("a ?? b", nil)

	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, "a  b", updated, "marker removed even without edits")
}

func TestApplyTextEdits_OutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		edit types.TextEdit
	}{
		{"end past buffer", types.TextEdit{Start: 2, End: 20, Text: "x"}},
		{"start past buffer", types.TextEdit{Start: 20, End: 20, Text: "x"}},
		{"start after end", types.TextEdit{Start: 3, End: 2}},
		{"negative start", types.TextEdit{Start: -1, End: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := ApplyTextEdits("hello", []types.TextEdit{{Start: 0, End: 1, Text: "J"}, tt.edit})

			assert.Error(t, err, "expected bounds error")
			assert.Equal(t, "", updated, "no partial result")

			var boundsErr *BoundsError
			assert.True(t, errors.As(err, &boundsErr), "error is *BoundsError")
			assert.Equal(t, tt.edit, boundsErr.Edit, "offending edit")
			assert.Equal(t, 5, boundsErr.Length, "buffer length")
		})
	}
}

func TestApplyTextEdits_BoundsCountCodepoints(t *testing.T) {
	// 4 codepoints, 8 bytes: an edit ending at 5 is out of range even
	// though it is inside the byte length.
	_, err := ApplyTextEdits("итер", []types.TextEdit{{Start: 0, End: 5}})
	assert.Error(t, err, "expected bounds error")

	updated, err := ApplyTextEdits("итер", []types.TextEdit{{Start: 0, End: 4, Text: "iter"}})
	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, "iter", updated, "updated")
}

func TestApplyTextEdits_DoesNotMutateInput(t *testing.T) {
	edits := []types.TextEdit{
		{Start: 0, End: 1, Text: "a"},
		{Start: 2, End: 3, Text: "b"},
	}

	_, err := ApplyTextEdits("xyz", edits)

	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, 0, edits[0].Start, "first edit untouched")
	assert.Equal(t, 2, edits[1].Start, "second edit untouched")
}

func TestApplyTextEdits_PatchPipeline(t *testing.T) {
	buf := "fn main() {\n    for i in 0..5 {\n        println!(\"Current value: {}\", );\n    }\n}\n"
	search := "        println!(\"Current value: {}\", );"
	replace := "        println!(\"Current value: {}\", i);"
	start := RuneIndex(buf, search)

	edits := ShiftEdits(ComputeTextEdits(search, replace), start)
	updated, err := ApplyTextEdits(buf, edits)

	assert.NoError(t, err, "ApplyTextEdits")
	assert.Equal(t, strings.Replace(buf, search, replace, 1), updated, "updated")

	// Re-running with the replacement as the new state emits nothing
	assert.Equal(t, 0, len(ComputeTextEdits(replace, replace)), "idempotent")
}
