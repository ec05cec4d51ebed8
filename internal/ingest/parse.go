package ingest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ziadkadry99/econsult/internal/vectordb"
)

// DefaultChunkSize bounds a document's content in runes. Longer texts are
// split on paragraph boundaries.
const DefaultChunkSize = 3000

// record is one entry of a .json array or a .jsonl line.
type record struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// frontMatter is the optional YAML header of a markdown or text file.
type frontMatter struct {
	Title string            `yaml:"title"`
	URL   string            `yaml:"url"`
	Tags  []string          `yaml:"tags"`
	Meta  map[string]string `yaml:"metadata"`
}

// ParseFile reads path and returns its documents, each tagged with path
// as Source.
func ParseFile(path string, chunkSize int) ([]vectordb.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		records, err = parseJSON(data)
	case ".jsonl":
		records, err = parseJSONL(data)
	case ".md", ".markdown", ".txt":
		var rec record
		rec, err = parseText(path, data)
		records = []record{rec}
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return toDocuments(path, records, chunkSize), nil
}

func parseJSON(data []byte) ([]record, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		// A single object, or {"documents": [...]}.
		var wrapper struct {
			Documents []record `json:"documents"`
		}
		if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Documents) > 0 {
			return wrapper.Documents, nil
		}
		var one record
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		return []record{one}, nil
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func parseJSONL(data []byte) ([]record, error) {
	var records []record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// parseText reads an optional YAML front matter block, then takes the title
// from the first heading and the URL from a leading "url:" line. Missing
// values fall back to the file name and path.
func parseText(path string, data []byte) (record, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	rec := record{}

	if strings.HasPrefix(text, "---\n") {
		end := strings.Index(text[4:], "\n---")
		if end >= 0 {
			var fm frontMatter
			if err := yaml.Unmarshal([]byte(text[4:4+end]), &fm); err != nil {
				return rec, fmt.Errorf("front matter: %w", err)
			}
			rec.Title, rec.URL, rec.Metadata = fm.Title, fm.URL, fm.Meta
			if len(fm.Tags) > 0 {
				if rec.Metadata == nil {
					rec.Metadata = make(map[string]string)
				}
				rec.Metadata["tags"] = strings.Join(fm.Tags, ",")
			}
			text = strings.TrimPrefix(text[4+end+4:], "\n")
		}
	}

	var body []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case rec.URL == "" && len(body) == 0 && hasPrefixFold(trimmed, "url:"):
			rec.URL = strings.TrimSpace(trimmed[len("url:"):])
			continue
		case rec.Title == "" && strings.HasPrefix(trimmed, "# "):
			rec.Title = strings.TrimSpace(trimmed[2:])
		}
		body = append(body, line)
	}

	rec.Content = strings.TrimSpace(strings.Join(body, "\n"))
	if rec.Title == "" {
		rec.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if rec.URL == "" {
		rec.URL = filepath.ToSlash(path)
	}
	return rec, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func toDocuments(source string, records []record, chunkSize int) []vectordb.Document {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var docs []vectordb.Document
	for i, rec := range records {
		content := strings.TrimSpace(rec.Content)
		if content == "" {
			continue
		}
		baseID := rec.ID
		if baseID == "" {
			baseID = documentID(source, rec.URL, i)
		}

		chunks := chunk(content, chunkSize)
		for n, part := range chunks {
			doc := vectordb.Document{
				ID:       baseID,
				Title:    rec.Title,
				URL:      rec.URL,
				Content:  part,
				Source:   source,
				Metadata: rec.Metadata,
			}
			if len(chunks) > 1 {
				doc.ID = fmt.Sprintf("%s#%d", baseID, n+1)
				doc.Title = fmt.Sprintf("%s (deel %d)", rec.Title, n+1)
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

func documentID(source, url string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", source, url, index)))
	return hex.EncodeToString(h[:8])
}

// chunk splits text into pieces of at most size runes, preferring blank
// lines, then single newlines, as cut points.
func chunk(text string, size int) []string {
	var out []string
	for {
		runes := []rune(text)
		if len(runes) <= size {
			if t := strings.TrimSpace(text); t != "" {
				out = append(out, t)
			}
			return out
		}
		head := string(runes[:size])
		cut := strings.LastIndex(head, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n")
		}
		if cut <= 0 {
			cut = len(head)
		}
		if t := strings.TrimSpace(text[:cut]); t != "" {
			out = append(out, t)
		}
		text = text[cut:]
	}
}
