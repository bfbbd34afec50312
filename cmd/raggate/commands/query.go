package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjellis/raggate/internal/agent"
	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/logging"
	"github.com/jjellis/raggate/internal/rag"
)

// NewQueryCmd constructs the `raggate query` command, which runs one
// retrieval call against the index and prints the payload.
func NewQueryCmd() *cobra.Command {
	var topK int
	var draft bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Query the vector index and print the gated result payload",
		Long: `Run one retrieval query against the index.

The output is the full payload as JSON: the matched contexts with their
similarity scores, the confidence gate decision, and (with --draft) a
deterministic draft answer synthesized from the top matches.

Examples:
  raggate query "overdue invoice handling"
  raggate query --top-k 10 --draft "fruit dessert recipe"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			svc, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("query: failed to initialise embedder: %w", err)
			}
			if svc.Mode() == embedder.ModeDummy {
				log.Warn("embedder in dummy mode: scores reflect token overlap, not semantics")
			}

			opener, err := storeOpener()
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			a, err := agent.New(&agent.Config{
				Embedder:  svc,
				OpenStore: opener,
				Logger:    log,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			plan := buildPlan()
			if topK > 0 {
				plan.TopK = topK
			}
			if draft {
				plan.ForceRAGOnly = true
			}

			payload, err := a.Handle(ctx, args[0], plan)
			if err != nil {
				switch {
				case errors.Is(err, rag.ErrNotFound):
					return fmt.Errorf("query: index not built yet — run 'raggate index' first (%s)", plan.IndexDir)
				case errors.Is(err, rag.ErrDimensionMismatch):
					return fmt.Errorf("query: index was built with a different embedding model — rebuild with 'raggate index'")
				default:
					return fmt.Errorf("query: %w", err)
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(payload); err != nil {
				return fmt.Errorf("query: encode payload: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of contexts to retrieve (default: RETRIEVAL_TOP_K or 5)")
	cmd.Flags().BoolVar(&draft, "draft", false, "Always include a draft answer synthesized from the top matches")

	return cmd
}
