// Package ingest turns source files into scoped evidence chunks.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrUnsupportedFormat is returned for file types no segmenter handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Segment is a normalised span of text extracted from a file.
// Page is set for paged formats and starts at 1.
type Segment struct {
	Text string
	Page *int
}

// Segmenter extracts text segments from a file.
type Segmenter interface {
	Extract(path string) ([]Segment, error)
}

// TextSegmenter reads plain text and markdown files as a single segment.
type TextSegmenter struct{}

// Extract implements Segmenter.
func (TextSegmenter) Extract(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return []Segment{{Text: Normalize(strings.ToValidUTF8(string(data), ""))}}, nil
}

// Segmenters maps lower-cased file extensions to segmenters.
type Segmenters map[string]Segmenter

// DefaultSegmenters handles the formats readable without external tooling.
func DefaultSegmenters() Segmenters {
	return Segmenters{
		".txt": TextSegmenter{},
		".md":  TextSegmenter{},
	}
}

// Extract dispatches on the file extension.
func (s Segmenters) Extract(path string) ([]Segment, error) {
	ext := strings.ToLower(filepath.Ext(path))
	seg, ok := s[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}
	return seg.Extract(path)
}

var (
	inlineSpace = regexp.MustCompile(`[ \t]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// Normalize replaces non-breaking spaces, collapses runs of spaces and tabs,
// caps consecutive blank lines at one and trims the result.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = inlineSpace.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
