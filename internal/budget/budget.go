// Package budget provides token budget estimation and context trimming for
// prompt assembly. Because the gateway supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code). This
// deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/talentops/ai-gateway/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B, GPT-3.5)
	// while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimChunks drops retrieved chunks until the estimated token count of
// reserved + remaining chunk contents fits within maxTokens. reserved is the
// token cost of everything else in the prompt (instructions, question,
// formatting). chunks must be ordered by descending relevance, as the
// retriever returns them, so trimming from the tail removes the least
// relevant chunks first.
//
// Returns the (possibly shorter) prefix of chunks. If even a single chunk
// does not fit, an empty slice is returned.
func TrimChunks(chunks []rag.ScoredChunk, reserved, maxTokens int) []rag.ScoredChunk {
	for len(chunks) > 0 {
		total := reserved
		for _, c := range chunks {
			total += 4
			total += Estimate(c.Content)
			total += Estimate(c.SectionTitle)
		}
		if total <= maxTokens {
			break
		}
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}
