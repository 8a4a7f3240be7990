// Package segment splits raw document text into overlapping chunks with
// positional metadata. Chunk boundaries prefer sentence terminators and
// line breaks found inside the window so that chunks read as coherent units.
package segment

import (
	"fmt"
	"strings"
)

// Default window and overlap sizes, in characters.
const (
	DefaultWindow  = 1000
	DefaultOverlap = 100
)

// Chunk is a contiguous, bounded span of a document's text plus its
// embedding and position metadata. StartChar and EndChar index into the
// original (untrimmed) source text; Text is the trimmed span and Size is
// its length.
type Chunk struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	StartChar int            `json:"start_char"`
	EndChar   int            `json:"end_char"`
	Size      int            `json:"size"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Segment splits text into overlapping chunks. The proposed window end is
// start+window; when that falls short of the text's end, the boundary is
// pulled back to just after the last sentence terminator or line break
// inside the window, keeping the break character attached to the chunk.
// Consecutive chunks overlap by overlap characters. Empty (all-whitespace)
// spans are skipped.
//
// overlap must be strictly less than window; otherwise the scan could stall
// or regress and Segment returns an error.
func Segment(text string, window, overlap int) ([]Chunk, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= window {
		return nil, fmt.Errorf("segment: overlap (%d) must be less than window (%d)", overlap, window)
	}

	var chunks []Chunk
	n := len(text)
	start := 0
	for start < n {
		end := start + window
		if end < n {
			// Pull the boundary back to the last sentence terminator or
			// line break inside [start, end). The break character stays
			// attached to the chunk.
			if p := lastBreak(text, start, end); p > start {
				end = p + 1
			}
		} else {
			end = n
		}

		trimmed := strings.TrimSpace(text[start:end])
		if trimmed != "" {
			chunks = append(chunks, Chunk{
				ID:        fmt.Sprintf("chunk-%d", len(chunks)),
				Text:      trimmed,
				StartChar: start,
				EndChar:   end,
				Size:      len(trimmed),
				Metadata: map[string]any{
					"start_char": start,
					"end_char":   end,
					"chunk_size": len(trimmed),
				},
			})
		}

		if end >= n {
			start = n
		} else {
			next := end - overlap
			// A boundary pulled back to a terminator close to start can
			// make end-overlap regress; skip the overlap in that case so
			// the scan always advances.
			if next <= start {
				next = end
			}
			start = next
		}
	}
	return chunks, nil
}

// lastBreak returns the index of the last sentence terminator or line break
// in text[start:end), or -1 if none exists.
func lastBreak(text string, start, end int) int {
	for i := end - 1; i >= start; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}
