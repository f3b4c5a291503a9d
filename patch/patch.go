// Package patch parses model responses of the form
//
//	<|SEARCH|>text with <|cursor|><|DIVIDE|>replacement<|REPLACE|>
//
// into a types.Patch anchored at a buffer offset.
package patch

import (
	"fmt"
	"strings"

	"anycoder/text"
	"anycoder/types"
)

const (
	SearchMarker  = "<|SEARCH|>"
	DivideMarker  = "<|DIVIDE|>"
	ReplaceMarker = "<|REPLACE|>"
)

// ParseError reports a response that does not follow the patch grammar.
type ParseError struct {
	Marker string // the marker that is missing or out of place
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid patch format: %s %s", e.Marker, e.Reason)
	}
	return fmt.Sprintf("invalid patch format: missing %s", e.Marker)
}

// Parse extracts the search and replace fragments from resp. cursor is the
// buffer offset of the cursor token inside the search fragment, so the
// fragment starts cursor minus the codepoints that precede the token.
//
// In AnchorStrict mode a search fragment without a cursor token is a parse
// error. In AnchorBestEffort mode the fragment is assumed to start at the
// cursor and the returned patch has Anchored set to false.
func Parse(resp string, cursor int, mode types.AnchorMode) (*types.Patch, error) {
	searchAt := strings.Index(resp, SearchMarker)
	if searchAt < 0 {
		return nil, &ParseError{Marker: SearchMarker}
	}
	rest := resp[searchAt+len(SearchMarker):]

	divideAt := strings.Index(rest, DivideMarker)
	if divideAt < 0 {
		return nil, missingAfter(resp, DivideMarker)
	}
	search := rest[:divideAt]
	rest = rest[divideAt+len(DivideMarker):]

	replaceAt := strings.Index(rest, ReplaceMarker)
	if replaceAt < 0 {
		return nil, missingAfter(resp, ReplaceMarker)
	}
	replace := strings.ReplaceAll(rest[:replaceAt], text.CursorToken, "")
	search, replace = trimLayout(search, replace)

	p := &types.Patch{
		Search:   strings.ReplaceAll(search, text.CursorToken, ""),
		Replace:  replace,
		Anchored: true,
	}

	before := text.RuneIndex(search, text.CursorToken)
	if before < 0 {
		if mode != types.AnchorBestEffort {
			return nil, &ParseError{Marker: text.CursorToken, Reason: "not found in search text"}
		}
		p.Start = cursor
		p.Anchored = false
		return p, nil
	}

	p.Start = cursor - before
	if p.Start < 0 {
		return nil, &ParseError{
			Marker: text.CursorToken,
			Reason: fmt.Sprintf("is preceded by %d codepoints but the cursor is at %d", before, cursor),
		}
	}
	return p, nil
}

// trimLayout drops the newline that separates each marker from its fragment
// when the model puts markers on lines of their own. A newline is only
// dropped when both fragments carry it, so the edits between them are
// unchanged.
func trimLayout(search, replace string) (string, string) {
	if strings.HasPrefix(search, "\n") && strings.HasPrefix(replace, "\n") {
		search, replace = search[1:], replace[1:]
	}
	if strings.HasSuffix(search, "\n") && strings.HasSuffix(replace, "\n") {
		search, replace = search[:len(search)-1], replace[:len(replace)-1]
	}
	return search, replace
}

// Locate checks that the search fragment of p occurs in buf, the buffer with
// cursor markers removed, at p.Start. Search text running past the end of
// buf is left for the edit applier to reject. An unanchored patch whose
// search text is not at the cursor is moved to the only place in buf where
// the search text occurs.
func Locate(p *types.Patch, buf string) error {
	if matchesAt(buf, p.Search, p.Start) {
		return nil
	}

	if !p.Anchored && p.Search != "" && strings.Count(buf, p.Search) == 1 {
		p.Start = text.RuneIndex(buf, p.Search)
		return nil
	}

	return &ParseError{
		Marker: SearchMarker,
		Reason: fmt.Sprintf("text does not match the buffer at offset %d", p.Start),
	}
}

// matchesAt compares search with buf from the codepoint offset start,
// up to the end of buf.
func matchesAt(buf, search string, start int) bool {
	if start < 0 || start > text.RuneLen(buf) {
		return false
	}
	rest := buf[text.RuneToByte(buf, start):]
	if len(search) > len(rest) {
		return strings.HasPrefix(search, rest)
	}
	return strings.HasPrefix(rest, search)
}

// missingAfter distinguishes a marker that is absent from one that only
// appears before the search marker.
func missingAfter(resp, marker string) *ParseError {
	if strings.Contains(resp, marker) {
		return &ParseError{Marker: marker, Reason: "out of order"}
	}
	return &ParseError{Marker: marker}
}
