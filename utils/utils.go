package utils

import (
	"path/filepath"
	"slices"
	"strings"
)

// IgnoreDirs are directory names whose contents are never watched
var IgnoreDirs = []string{
	".git",
	".idea",
	".vscode",
	"node_modules",
	"dist",
	"target",
	"__pycache__",
	".pytest_cache",
	"build",
	".venv",
	"venv",
}

// IgnoreFiles are file names that never trigger an autocomplete
var IgnoreFiles = []string{
	".DS_Store",
	".gitignore",
	".env",
	"package-lock.json",
}

// IsIgnoredDir reports whether any component of path is an ignored directory
func IsIgnoredDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if slices.Contains(IgnoreDirs, part) {
			return true
		}
	}
	return false
}

// IsIgnored reports whether events for path should be dropped
func IsIgnored(path string) bool {
	if IsIgnoredDir(path) {
		return true
	}
	return slices.Contains(IgnoreFiles, filepath.Base(path))
}

// RelPath returns path relative to root for logging, or path itself when it
// is not below root.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
