package ingest

import (
	"strings"
	"unicode/utf8"
)

// Chunk sizing defaults, in characters.
const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 200
)

// ChunkText splits text into chunks of at most size characters. Paragraphs are
// packed together while they fit; a paragraph longer than size is cut with a
// sliding window overlapping by overlap characters.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var packed []string
	cur := ""
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(cur)+runeLen(p)+2 <= size {
			cur = strings.TrimSpace(cur + "\n\n" + p)
			continue
		}
		if cur != "" {
			packed = append(packed, cur)
		}
		cur = p
	}
	if cur != "" {
		packed = append(packed, cur)
	}

	var out []string
	for _, c := range packed {
		if runeLen(c) <= size {
			out = append(out, c)
			continue
		}
		out = append(out, window(c, size, overlap)...)
	}
	return out
}

func window(s string, size, overlap int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); {
		end := min(len(runes), start+size)
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
		start = max(0, end-overlap)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
