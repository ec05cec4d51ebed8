package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxFileSize is the largest file considered (8 MB).
const DefaultMaxFileSize int64 = 8 << 20

// SupportedExtensions are the file types Parse understands.
var SupportedExtensions = []string{".json", ".jsonl", ".md", ".markdown", ".txt"}

// excludedDirs are never descended into, even when a pattern matches.
var excludedDirs = []string{".git", "node_modules", "vendor", "__pycache__", ".venv", ".idea", ".vscode"}

// File is one source file selected for ingestion.
type File struct {
	Path        string
	Size        int64
	ContentHash string
}

// Discover expands doublestar glob patterns (for example "data/**/*.json")
// into the supported, non-binary files they match. A pattern naming an
// existing file is taken as is. Results are sorted and unique.
func Discover(patterns []string, maxSize int64) ([]File, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	seen := make(map[string]bool)
	var files []File
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			if seen[path] || inExcludedDir(path) || !supported(path) {
				continue
			}
			seen[path] = true

			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() || info.Size() > maxSize {
				continue
			}
			if isBinary(path) {
				continue
			}
			hash, err := hashFile(path)
			if err != nil {
				continue
			}
			files = append(files, File{Path: path, Size: info.Size(), ContentHash: hash})
		}
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

func supported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

func inExcludedDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		for _, excl := range excludedDirs {
			if strings.EqualFold(part, excl) {
				return true
			}
		}
	}
	return false
}

// isBinary checks the first 512 bytes for NUL.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	return slices.Contains(buf[:n], 0)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
