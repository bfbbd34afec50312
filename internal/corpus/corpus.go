// Package corpus turns files and directories into embeddable records.
// It handles text normalization, sliding-window chunking and the
// expansion of tabular files into per-row documents.
package corpus

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jjellis/raggate/internal/rag"
)

// Priority orders for selecting which tabular columns carry the most
// retrieval signal. Matching is case-insensitive on the column name.
var (
	titleFields       = []string{"title", "name", "subject", "heading"}
	descriptionFields = []string{"description", "content", "text", "body", "summary", "detail", "details"}
	categoryFields    = []string{"category", "type", "tag", "tags", "genre", "label"}
)

// Config controls corpus construction.
type Config struct {
	// ChunkSize is the maximum characters per chunk (default: 1200).
	ChunkSize int

	// ChunkOverlap is the characters shared between consecutive chunks
	// (default: 200). Must be smaller than ChunkSize.
	ChunkOverlap int

	// Logger receives per-file warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Builder loads documents and produces chunked records ready for
// embedding.
type Builder struct {
	chunkSize    int
	chunkOverlap int
	log          *slog.Logger
}

// NewBuilder validates the chunking parameters up front so a bad
// size/overlap pair fails before any file is read.
func NewBuilder(cfg *Config) (*Builder, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	size := cfg.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap == 0 && cfg.ChunkSize == 0 {
		// Only fill the default overlap alongside the default size; an
		// explicit size with overlap 0 means no overlap.
		overlap = DefaultChunkOverlap
	}
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

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Builder{chunkSize: size, chunkOverlap: overlap, log: log}, nil
}

// Build loads every document reachable from paths and returns the
// chunked records in deterministic order. Documents that clean down to
// empty text produce no records.
func (b *Builder) Build(paths []string) ([]rag.Record, error) {
	docs, err := loadDocuments(paths, b.log)
	if err != nil {
		return nil, err
	}

	var records []rag.Record
	for _, doc := range docs {
		chunks, err := ChunkText(doc.text, b.chunkSize, b.chunkOverlap)
		if err != nil {
			return nil, err
		}
		for i, chunk := range chunks {
			if chunk == "" {
				continue
			}
			records = append(records, rag.Record{
				ID:   fmt.Sprintf("%s::chunk_%04d", doc.path, i),
				Text: chunk,
				Meta: rag.Meta{
					Path:   doc.path,
					Chunk:  i,
					Fields: doc.fields,
				},
			})
		}
	}

	b.log.Info("corpus built",
		slog.Int("documents", len(docs)),
		slog.Int("records", len(records)),
	)
	return records, nil
}

// embeddingTextForRow builds the text embedded for one tabular row.
// Title-like and description-like columns are concatenated, with a
// category-like column appended parenthetically; rows with none of
// those fall back to joining every column as "key: value".
func embeddingTextForRow(fields map[string]string, headers []string, path string) string {
	title := firstMatch(fields, headers, titleFields)
	desc := firstMatch(fields, headers, descriptionFields)
	category := firstMatch(fields, headers, categoryFields)

	var parts []string
	if title != "" {
		parts = append(parts, title)
	}
	if desc != "" {
		parts = append(parts, desc)
	}
	if len(parts) == 0 {
		for _, h := range headers {
			if v := fields[h]; v != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", h, v))
			}
		}
		if len(parts) == 0 {
			return path
		}
		return strings.Join(parts, ", ")
	}
	text := strings.Join(parts, ". ")
	if category != "" {
		text = fmt.Sprintf("%s (%s)", text, category)
	}
	return text
}

// firstMatch returns the value of the first column whose name matches
// one of the candidates, scanning in header order so the leftmost
// matching column wins.
func firstMatch(fields map[string]string, headers, candidates []string) string {
	for _, cand := range candidates {
		for _, h := range headers {
			if strings.EqualFold(h, cand) && fields[h] != "" {
				return fields[h]
			}
		}
	}
	return ""
}
