// Package chunker splits raw document text into retrieval-sized passages.
// Consecutive chunks share a configurable overlap so that a sentence cut at
// a chunk boundary is still retrievable from one side or the other.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/talentops/ai-gateway/internal/rag"
)

// Default chunking constants. Boundaries are measured in runes, not bytes,
// so multi-byte text never gets split mid-character.
const (
	// DefaultSize is the target chunk length in runes.
	DefaultSize = 800

	// DefaultOverlap is the number of runes shared between consecutive chunks.
	DefaultOverlap = 120
)

// Config holds the chunking parameters. They are service-wide constants, not
// document-dependent: changing them invalidates previously ingested chunk
// boundaries, so re-ingestion is required after a change.
type Config struct {
	// Size is the target chunk length in runes. Defaults to DefaultSize.
	Size int

	// Overlap is the rune overlap between consecutive chunks. Defaults to
	// DefaultOverlap, and is clamped below Size.
	Overlap int
}

// Chunker splits documents into overlapping chunks with stable IDs.
type Chunker struct {
	size    int
	overlap int
}

// New constructs a Chunker, applying defaults for zero values and clamping
// the overlap so the window always advances.
func New(cfg Config) *Chunker {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks text into passages carrying meta. Each chunk gets the
// deterministic ID ChunkID(meta.DocumentID, i), so re-chunking unchanged
// content yields identical IDs. Empty or whitespace-only text yields an
// empty slice. Undecodable text is rejected with a rag.ChunkingError.
// Trailing text shorter than the target size becomes its own chunk — no
// input characters are dropped.
func (c *Chunker) Split(text string, meta rag.DocumentMeta) ([]rag.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if !utf8.ValidString(text) {
		return nil, &rag.ChunkingError{
			DocumentID: meta.DocumentID,
			Reason:     "text is not valid UTF-8",
		}
	}

	runes := []rune(text)
	sections := headingOffsets(text)

	var chunks []rag.Chunk
	step := c.size - c.overlap
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, rag.Chunk{
			ID:           ChunkID(meta.DocumentID, len(chunks)),
			Content:      string(runes[start:end]),
			SectionTitle: sectionAt(sections, start),
			Meta:         meta,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// ChunkID returns the stable chunk identifier for the given document and
// sequence index. The zero-padded index keeps IDs lexically ordered.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%04d", documentID, index)
}

// section marks a markdown-style heading and its rune offset in the text.
type section struct {
	// offset is the rune position where the heading line starts.
	offset int
	// title is the heading text with markers stripped.
	title string
}

// headingOffsets scans text for markdown-style heading lines ("# Title") and
// records their rune offsets. Documents without headings produce no sections
// and their chunks carry no section title.
func headingOffsets(text string) []section {
	var sections []section
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if title, ok := headingTitle(trimmed); ok {
			sections = append(sections, section{offset: offset, title: title})
		}
		offset += utf8.RuneCountInString(line) + 1 // +1 for the newline
	}
	return sections
}

// headingTitle reports whether line is a markdown heading and returns its
// stripped title.
func headingTitle(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	title := strings.TrimLeft(line, "#")
	if title == "" || !strings.HasPrefix(title, " ") {
		return "", false
	}
	return strings.TrimSpace(title), true
}

// sectionAt returns the title of the last heading at or before the given
// rune offset, or empty when the chunk precedes every heading.
func sectionAt(sections []section, offset int) string {
	title := ""
	for _, s := range sections {
		if s.offset > offset {
			break
		}
		title = s.title
	}
	return title
}
