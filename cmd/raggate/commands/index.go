package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jjellis/raggate/internal/corpus"
	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/logging"
	"github.com/jjellis/raggate/internal/rag"
)

// NewIndexCmd constructs the `raggate index` command, which builds the
// vector index from local documents.
func NewIndexCmd() *cobra.Command {
	var paths []string
	var indexDir string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from local documents",
		Long: `Chunk, embed and index local documents.

Accepted inputs are files or directories (scanned recursively):
.txt, .md, .pdf and .csv. CSV files are indexed row by row, keeping the
full record for display while embedding only its title/description-like
fields.

Index building is an exclusive, offline operation: do not run two
builds against the same index directory concurrently.

Examples:
  raggate index --path ./docs
  raggate index --path ./docs --path notes.md --index-dir ./index
  raggate index --path contests.csv --chunk-size 800 --chunk-overlap 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if len(paths) == 0 {
				return fmt.Errorf("index: at least one --path is required")
			}
			if indexDir == "" {
				indexDir = getEnvOrDefault("RAGGATE_INDEX_DIR", defaultIndexDir)
			}
			if chunkSize == 0 {
				chunkSize = getEnvInt("RAGGATE_CHUNK_SIZE", 0)
			}
			if chunkOverlap == 0 {
				chunkOverlap = getEnvInt("RAGGATE_CHUNK_OVERLAP", 0)
			}

			builder, err := corpus.NewBuilder(&corpus.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Logger:       log,
			})
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			records, err := builder.Build(paths)
			if err != nil {
				return fmt.Errorf("index: corpus build failed: %w", err)
			}
			if len(records) == 0 {
				return fmt.Errorf("index: no indexable content found under the given paths")
			}

			svc, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("index: failed to initialise embedder: %w", err)
			}
			if svc.Mode() == embedder.ModeDummy {
				log.Warn("embedder in dummy mode: index is only usable with the same seed and dimensions")
			}

			texts := make([]string, len(records))
			for i, rec := range records {
				texts[i] = rec.Text
			}
			log.Info("embedding corpus", slog.Int("chunks", len(texts)))
			vectors, err := svc.Encode(ctx, texts)
			if err != nil {
				return fmt.Errorf("index: embedding failed: %w", err)
			}

			backend := getEnvOrDefault("STORE_BACKEND", "flat")
			switch backend {
			case "flat":
				vectorsPath, docsPath := rag.IndexPaths(indexDir)
				store := rag.NewFlatStore(0, vectorsPath, docsPath)
				if err := store.Add(ctx, vectors, records); err != nil {
					return fmt.Errorf("index: %w", err)
				}
				if err := store.Save(); err != nil {
					return fmt.Errorf("index: save failed: %w", err)
				}
			case "qdrant":
				store, err := rag.NewQdrantStore(ctx, qdrantConfigFromEnv(svc.Dim(), true))
				if err != nil {
					return fmt.Errorf("index: failed to connect to Qdrant: %w", err)
				}
				defer store.Close()
				if err := store.Add(ctx, vectors, records); err != nil {
					return fmt.Errorf("index: %w", err)
				}
			default:
				return fmt.Errorf("index: unknown STORE_BACKEND %q (want flat or qdrant): %w", backend, rag.ErrConfiguration)
			}

			log.Info("index built",
				slog.Int("chunks", len(records)),
				slog.Int("dimension", svc.Dim()),
				slog.String("backend", backend),
				slog.String("index_dir", indexDir),
				slog.String("embedding_mode", string(svc.Mode())),
			)
			fmt.Printf("indexed %d chunks (dim %d, backend %s)\n", len(records), svc.Dim(), backend)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "File or directory to index (repeatable)")
	cmd.Flags().StringVar(&indexDir, "index-dir", "", "Directory for the index artifacts (default: $RAGGATE_INDEX_DIR or ./index)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default 1200)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in characters (default 200)")

	return cmd
}
