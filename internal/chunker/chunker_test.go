package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/talentops/ai-gateway/internal/rag"
)

func testMeta() rag.DocumentMeta {
	return rag.DocumentMeta{
		DocumentID:     "doc1",
		DocumentType:   "policy",
		Department:     "finance",
		RoleVisibility: []string{"all"},
		Version:        "1.0",
		Title:          "Refund Policy",
	}
}

func Test_Split_EmptyTextYieldsNoChunks(t *testing.T) {
	t.Parallel()
	c := New(Config{})

	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := c.Split(text, testMeta())
		if err != nil {
			t.Fatalf("split %q: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("split %q: want 0 chunks, got %d", text, len(chunks))
		}
	}
}

func Test_Split_ShortTextIsSingleChunk(t *testing.T) {
	t.Parallel()
	c := New(Config{Size: 100, Overlap: 20})

	chunks, err := c.Split("The refund window is 30 days.", testMeta())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ID != "doc1#0000" {
		t.Errorf("chunk ID: want doc1#0000, got %q", chunks[0].ID)
	}
	if chunks[0].Content != "The refund window is 30 days." {
		t.Errorf("content mismatch: %q", chunks[0].Content)
	}
	if chunks[0].Meta.Department != "finance" {
		t.Errorf("metadata not propagated: %+v", chunks[0].Meta)
	}
}

// Test_Split_CoverageWithOverlap verifies that stripping the overlap prefix
// from every chunk after the first reconstructs the original text exactly:
// nothing outside the overlap region is lost or duplicated.
func Test_Split_CoverageWithOverlap(t *testing.T) {
	t.Parallel()
	const size, overlap = 50, 10
	c := New(Config{Size: size, Overlap: overlap})

	text := strings.Repeat("abcdefghij", 37) // 370 chars, not a multiple of the step
	chunks, err := c.Split(text, testMeta())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var sb strings.Builder
	for i, ch := range chunks {
		if ch.Content == "" {
			t.Fatalf("chunk %d is empty", i)
		}
		if i == 0 {
			sb.WriteString(ch.Content)
			continue
		}
		runes := []rune(ch.Content)
		if len(runes) > overlap {
			sb.WriteString(string(runes[overlap:]))
		}
	}
	if sb.String() != text {
		t.Errorf("reassembled text does not match original:\nwant %d chars\ngot  %d chars", len(text), sb.Len())
	}
}

func Test_Split_TrailingRemainderKept(t *testing.T) {
	t.Parallel()
	c := New(Config{Size: 100, Overlap: 0})

	text := strings.Repeat("x", 205) // 2 full chunks + 5-char tail
	chunks, err := c.Split(text, testMeta())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	if got := len(chunks[2].Content); got != 5 {
		t.Errorf("tail chunk: want 5 chars, got %d", got)
	}
}

func Test_Split_DeterministicIDs(t *testing.T) {
	t.Parallel()
	c := New(Config{Size: 40, Overlap: 8})

	text := strings.Repeat("stable content ", 20)
	first, err := c.Split(text, testMeta())
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	second, err := c.Split(text, testMeta())
	if err != nil {
		t.Fatalf("second split: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d: IDs differ: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}

func Test_Split_SectionTitles(t *testing.T) {
	t.Parallel()
	c := New(Config{Size: 60, Overlap: 0})

	text := "# Leave Policy\n" +
		strings.Repeat("a", 80) + "\n" +
		"## Parental Leave\n" +
		strings.Repeat("b", 80)

	chunks, err := c.Split(text, testMeta())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].SectionTitle != "Leave Policy" {
		t.Errorf("first chunk section: want %q, got %q", "Leave Policy", chunks[0].SectionTitle)
	}
	last := chunks[len(chunks)-1]
	if last.SectionTitle != "Parental Leave" {
		t.Errorf("last chunk section: want %q, got %q", "Parental Leave", last.SectionTitle)
	}
}

func Test_Split_InvalidUTF8Rejected(t *testing.T) {
	t.Parallel()
	c := New(Config{})

	_, err := c.Split("valid prefix \xff\xfe", testMeta())
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	var chunkErr *rag.ChunkingError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("want ChunkingError, got %T: %v", err, err)
	}
	if chunkErr.DocumentID != "doc1" {
		t.Errorf("error document ID: want doc1, got %q", chunkErr.DocumentID)
	}
}

func Test_Split_MultibyteRunesNotSplit(t *testing.T) {
	t.Parallel()
	c := New(Config{Size: 10, Overlap: 2})

	text := strings.Repeat("ünïcødé ", 10)
	chunks, err := c.Split(text, testMeta())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i, ch := range chunks {
		if !strings.Contains(text, string([]rune(ch.Content)[0:1])) {
			t.Errorf("chunk %d starts with an unexpected rune: %q", i, ch.Content)
		}
		for _, r := range ch.Content {
			if r == '�' {
				t.Fatalf("chunk %d contains a replacement character: %q", i, ch.Content)
			}
		}
	}
}
