package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jjellis/raggate/internal/rag"
)

// Priority orders for resolving display fields from a context's
// structured metadata. Resolved once here, at the data-model boundary,
// instead of ad hoc per consumer.
var (
	draftTitleFields    = []string{"title", "name", "subject", "heading"}
	draftCategoryFields = []string{"category", "type", "tag", "genre", "field"}
	draftDeadlineFields = []string{"deadline", "due", "due_date", "end_date", "closes"}
	draftDescFields     = []string{"description", "content", "summary", "detail", "details"}
)

// draftDescLimit bounds the per-context description excerpt in runes.
const draftDescLimit = 160

// draftAnswer renders a deterministic human-readable summary of the
// top contexts. It is pure string formatting over already-retrieved
// data: the same contexts always produce the same draft.
func draftAnswer(query string, contexts []rag.Context, maxContext int) string {
	if len(contexts) == 0 {
		return ""
	}
	n := maxContext
	if n > len(contexts) {
		n = len(contexts)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for %q.\n\nTop %d matches:\n", len(contexts), query, n)
	for i, c := range contexts[:n] {
		title := resolveField(c.Meta, draftTitleFields)
		if title == "" {
			title = fmt.Sprintf("Result #%d", i+1)
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, title)
		if category := resolveField(c.Meta, draftCategoryFields); category != "" {
			fmt.Fprintf(&sb, " (%s)", category)
		}
		sb.WriteByte('\n')

		if deadline := resolveField(c.Meta, draftDeadlineFields); deadline != "" {
			fmt.Fprintf(&sb, "   deadline: %s\n", deadline)
		}
		desc := resolveField(c.Meta, draftDescFields)
		if desc == "" {
			desc = c.Text
		}
		if desc != "" {
			fmt.Fprintf(&sb, "   %s\n", truncateRunes(strings.TrimSpace(desc), draftDescLimit))
		}
		fmt.Fprintf(&sb, "   match: %.1f%%\n", float64(c.Score)*100)
	}
	return sb.String()
}

// resolveField returns the first non-empty value among the candidate
// keys, case-insensitively. Keys are scanned in sorted order so the
// resolution is deterministic even when several keys fold to the same
// candidate.
func resolveField(meta rag.Meta, candidates []string) string {
	if len(meta.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta.Fields))
	for k := range meta.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, cand := range candidates {
		for _, k := range keys {
			if strings.EqualFold(k, cand) && meta.Fields[k] != "" {
				return meta.Fields[k]
			}
		}
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
