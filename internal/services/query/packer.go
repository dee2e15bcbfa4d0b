package query

import (
	"fmt"
	"sort"
	"strings"

	"mnemosyne/internal/domain/chatctx"
	"mnemosyne/pkg/logger"
	"mnemosyne/pkg/tokens"
)

// promptPreamble opens every prompt that carries packed context blocks
const promptPreamble = "Use the following reference material to answer the question. " +
	"If the material does not cover the question, say so instead of guessing.\n\n"

// defaultSafetyMargin absorbs tokenizer drift between our counter and the
// provider's, so a prompt that fits locally also fits upstream
const defaultSafetyMargin = 64

// Assembly is the outcome of packing one query. Immutable after Pack returns.
type Assembly struct {
	Prompt         string
	Included       []*chatctx.ScoredItem
	UsedTokens     int
	ReservedTokens int

	// Degraded is set when the budget left no room for context and the
	// prompt is the bare query
	Degraded bool
}

// Packer selects and formats context under a hard token budget. Greedy and
// single-pass: candidates are walked once in relevance order, items that do
// not fit are skipped without stopping the walk. Not a knapsack solver.
type Packer struct {
	counter tokens.Counter
	margin  int
	log     *logger.Logger
}

// NewPacker creates a packer counting with the given counter
func NewPacker(counter tokens.Counter) *Packer {
	return &Packer{
		counter: counter,
		margin:  defaultSafetyMargin,
		log:     logger.Get().With("component", "context_packer"),
	}
}

// Pack assembles a prompt for queryText from the ranked candidates.
//
// The context budget is the model window minus everything else the request
// must carry: the query itself, the system prompt, caller-supplied history,
// the response allowance, and a safety margin. A non-positive budget
// degrades to a query-only prompt rather than failing.
//
// Candidates are re-sorted by relevance descending with a stable sort, so
// ties keep their input order. Items with no extractable text are skipped
// without consuming budget. Token counts are computed once per item and
// cached on the item.
func (p *Packer) Pack(queryText string, candidates []*chatctx.ScoredItem, maxContextTokens, maxResponseTokens int, systemPrompt string, historyTokens int) Assembly {
	reserved := p.counter.Count(queryText) + historyTokens + p.margin
	if systemPrompt != "" {
		reserved += p.counter.Count(systemPrompt)
	}

	budget := maxContextTokens - reserved - maxResponseTokens
	if budget <= 0 {
		p.log.Debugw("Token budget exhausted before packing",
			"max_context", maxContextTokens, "reserved", reserved, "response", maxResponseTokens)
		return Assembly{Prompt: queryText, ReservedTokens: reserved, Degraded: true}
	}

	ranked := make([]*chatctx.ScoredItem, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})

	var blocks strings.Builder
	var included []*chatctx.ScoredItem
	used := 0

	for _, cand := range ranked {
		if cand.Item == nil || cand.Item.Empty() {
			continue
		}
		itemTokens := p.itemTokens(cand.Item)
		if used+itemTokens > budget {
			// A later, smaller item may still fit
			continue
		}
		blocks.WriteString(formatBlock(cand.Item))
		included = append(included, cand)
		used += itemTokens
	}

	if len(included) == 0 {
		return Assembly{Prompt: queryText, ReservedTokens: reserved}
	}

	return Assembly{
		Prompt:         promptPreamble + blocks.String() + queryText,
		Included:       included,
		UsedTokens:     used,
		ReservedTokens: reserved,
	}
}

// itemTokens returns the item's token count, counting the rendered block
// once and caching the result on the item
func (p *Packer) itemTokens(item *chatctx.ContentItem) int {
	if item.TokenCount > 0 {
		return item.TokenCount
	}
	item.TokenCount = p.counter.Count(formatBlock(item))
	return item.TokenCount
}

func formatBlock(item *chatctx.ContentItem) string {
	return fmt.Sprintf("=== %s ===\n%s\n\n", item.Title, item.Body)
}
