package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"babyrag/internal/domain"
)

var supportedExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// LoadDocuments reads the files named by paths. Each path may be a glob;
// files with unsupported extensions are skipped. Documents are named by their
// cleaned path so that equal base names in different directories stay
// distinct. A file matched more than once is read once.
func LoadDocuments(paths []string) ([]domain.Document, error) {
	var docs []domain.Document
	seen := make(map[string]bool)
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if seen[m] || !supportedExtensions[strings.ToLower(filepath.Ext(m))] {
				continue
			}
			seen[m] = true
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", m, err)
			}
			docs = append(docs, domain.Document{Name: m, Content: string(data)})
		}
	}
	if len(docs) == 0 {
		return nil, domain.Validationf("no .txt or .md documents found")
	}
	return docs, nil
}
