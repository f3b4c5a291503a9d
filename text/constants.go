package text

const (
	// CursorMarker is the sentinel the user types to request an edit.
	CursorMarker = "??"

	// CursorToken replaces the sentinel inside a context window. It is kept
	// distinct from CursorMarker so a model echoing "??" in code is not
	// mistaken for the cursor.
	CursorToken = "<|cursor|>"

	// NarrowContextLines is the radius of the window used to anchor a patch.
	NarrowContextLines = 3

	// WholeFile is a radius large enough to cover any buffer.
	WholeFile = 1 << 30
)
