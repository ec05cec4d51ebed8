package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (score: %.4f) ---\n", i+1, r.Score))
		if r.Document.Title != "" {
			sb.WriteString(fmt.Sprintf("Title: %s\n", r.Document.Title))
		}
		if r.Document.URL != "" {
			sb.WriteString(fmt.Sprintf("URL: %s\n", r.Document.URL))
		}
		sb.WriteString("\n")
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
