package corpus

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jjellis/raggate/internal/rag"
)

// Default sliding-window chunking parameters.
const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1200

	// DefaultChunkOverlap is the number of characters shared between
	// consecutive chunks.
	DefaultChunkOverlap = 200
)

var (
	// horizontalWS collapses runs of spaces and tabs to a single space.
	horizontalWS = regexp.MustCompile(`[ \t]+`)

	// excessNewlines collapses 3+ consecutive newlines to exactly two.
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes raw document text: carriage returns become
// newlines, horizontal whitespace runs collapse to a single space,
// 3+ consecutive newlines collapse to two, and the result is trimmed.
// CleanText is idempotent: CleanText(CleanText(s)) == CleanText(s).
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalWS.ReplaceAllString(s, " ")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ChunkText cleans text and splits it into overlapping chunks of at
// most size characters (runes, so multi-byte text never splits inside
// a character). Text that fits in a single window is returned as one
// chunk. The window start advances by size-overlap per step, so
// overlap must be smaller than size — otherwise the window would
// never advance and ChunkText fails with ErrConfiguration.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("corpus: chunk size must be positive, got %d: %w", size, rag.ErrConfiguration)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("corpus: chunk overlap must not be negative, got %d: %w", overlap, rag.ErrConfiguration)
	}
	if overlap >= size {
		return nil, fmt.Errorf("corpus: chunk overlap %d must be smaller than chunk size %d: %w",
			overlap, size, rag.ErrConfiguration)
	}

	runes := []rune(CleanText(text))
	if len(runes) <= size {
		return []string{string(runes)}, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
