// Package normalize holds the cheap text clean-up applied before chunking.
package normalize

import (
	"path/filepath"
	"strings"
)

var markupStripper = strings.NewReplacer("#", "", "*", "")

// IsMarkup reports whether the file name indicates a lightweight markup format.
func IsMarkup(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// StripMarkup removes Markdown heading and emphasis characters. It is a
// character filter, not a parser: a literal '#' or '*' in prose is lost too.
func StripMarkup(text string) string {
	return markupStripper.Replace(text)
}

// Clean returns content normalised according to the file name.
func Clean(name, content string) string {
	if IsMarkup(name) {
		return StripMarkup(content)
	}
	return content
}
