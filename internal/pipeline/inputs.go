package pipeline

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandInputs resolves a path or doublestar pattern to the PDF files it matches
func ExpandInputs(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid document pattern %q: %w", pattern, err)
	}
	var docs []string
	for _, m := range matches {
		if strings.EqualFold(filepath.Ext(m), ".pdf") {
			docs = append(docs, m)
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no PDF documents match %q", pattern)
	}
	slices.Sort(docs)
	return docs, nil
}
