package coder

import (
	"path/filepath"

	"github.com/go-enry/go-enry/v2"
)

// detectLanguage returns the programming language of a file, or "" when it
// cannot be determined. Content is only consulted when the file name is
// ambiguous.
func detectLanguage(path, content string) string {
	if path == "" {
		return ""
	}
	name := filepath.Base(path)

	if lang, safe := enry.GetLanguageByExtension(name); safe {
		return lang
	}
	if lang, safe := enry.GetLanguageByFilename(name); safe {
		return lang
	}
	return enry.GetLanguage(name, []byte(content))
}
