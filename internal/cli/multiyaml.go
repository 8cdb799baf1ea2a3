package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tansive/wdaclient/pkg/wda/actions"
	"gopkg.in/yaml.v3"
)

// SplitDocuments splits data containing multiple YAML documents. Each
// document is returned re-encoded on its own. Empty documents are skipped.
func SplitDocuments(data []byte) ([][]byte, error) {
	// If data is empty or contains only whitespace or only --- separators, return empty slice
	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return [][]byte{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(replaceTabsWithSpaces(data)))
	var result [][]byte

	for {
		var doc map[string]any
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
		// Skip empty documents (common with trailing ---)
		if len(doc) == 0 {
			continue
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode YAML document: %w", err)
		}
		result = append(result, out)
	}

	return result, nil
}

// ParseActionDocuments parses every document of a multi-document action
// file. Documents are performed in order, one request each.
func ParseActionDocuments(data []byte) ([]*actions.File, error) {
	docs, err := SplitDocuments(data)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("action file is empty")
	}
	files := make([]*actions.File, 0, len(docs))
	for i, doc := range docs {
		f, err := actions.ParseFile(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// replaceTabsWithSpaces replaces leading tabs, which YAML rejects, with two
// spaces each.
func replaceTabsWithSpaces(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, "\t")
		if n := len(line) - len(trimmed); n > 0 {
			lines[i] = strings.Repeat("  ", n) + trimmed
		}
	}
	return []byte(strings.Join(lines, "\n"))
}
