package query

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemosyne/internal/domain/chatctx"
)

// wordCounter counts whitespace-separated words, which keeps budgets in
// tests small and predictable.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func scored(title, body string, tokenCount int, relevance float64) *chatctx.ScoredItem {
	return &chatctx.ScoredItem{
		Item: &chatctx.ContentItem{
			ID:         uuid.New(),
			Title:      title,
			Body:       body,
			Kind:       chatctx.KindText,
			TokenCount: tokenCount,
		},
		Relevance: relevance,
	}
}

func TestPackGreedySkipsOversizedAndContinues(t *testing.T) {
	packer := NewPacker(wordCounter{})

	candidates := []*chatctx.ScoredItem{
		scored("first", "alpha", 100, 0.9),
		scored("second", "beta", 200, 0.7),
		scored("third", "gamma", 50, 0.5),
	}

	// One-word query reserves 1 + margin tokens, so a window of
	// budget+reserved leaves exactly the wanted context budget
	budget := 120
	maxContext := budget + 1 + defaultSafetyMargin

	asm := packer.Pack("question", candidates, maxContext, 0, "", 0)

	require.Len(t, asm.Included, 1)
	assert.Equal(t, "first", asm.Included[0].Item.Title)
	assert.Equal(t, 100, asm.UsedTokens)
	assert.False(t, asm.Degraded)
	assert.Contains(t, asm.Prompt, "=== first ===")
	assert.NotContains(t, asm.Prompt, "=== second ===")
	assert.NotContains(t, asm.Prompt, "=== third ===")
	assert.True(t, strings.HasSuffix(asm.Prompt, "question"))
}

func TestPackLaterSmallerItemStillFits(t *testing.T) {
	packer := NewPacker(wordCounter{})

	candidates := []*chatctx.ScoredItem{
		scored("big", "alpha", 90, 0.9),
		scored("huge", "beta", 200, 0.7),
		scored("small", "gamma", 20, 0.5),
	}

	budget := 120
	maxContext := budget + 1 + defaultSafetyMargin

	asm := packer.Pack("question", candidates, maxContext, 0, "", 0)

	require.Len(t, asm.Included, 2)
	assert.Equal(t, "big", asm.Included[0].Item.Title)
	assert.Equal(t, "small", asm.Included[1].Item.Title)
	assert.Equal(t, 110, asm.UsedTokens)
	assert.LessOrEqual(t, asm.UsedTokens, budget)
}

func TestPackExhaustedBudgetDegradesToBareQuery(t *testing.T) {
	packer := NewPacker(wordCounter{})

	candidates := []*chatctx.ScoredItem{scored("first", "alpha", 10, 0.9)}

	// Response allowance larger than the whole window
	asm := packer.Pack("question", candidates, 100, 500, "", 0)

	assert.True(t, asm.Degraded)
	assert.Equal(t, "question", asm.Prompt)
	assert.Empty(t, asm.Included)
	assert.Zero(t, asm.UsedTokens)
}

func TestPackNoCandidatesYieldsBareQuery(t *testing.T) {
	packer := NewPacker(wordCounter{})

	asm := packer.Pack("question", nil, 10_000, 100, "", 0)

	assert.Equal(t, "question", asm.Prompt)
	assert.Empty(t, asm.Included)
	assert.False(t, asm.Degraded)
}

func TestPackSkipsEmptyItemsWithoutSpendingBudget(t *testing.T) {
	packer := NewPacker(wordCounter{})

	candidates := []*chatctx.ScoredItem{
		scored("blank", "   \n\t  ", 50, 0.99),
		scored("real", "alpha beta", 30, 0.5),
	}

	asm := packer.Pack("question", candidates, 10_000, 100, "", 0)

	require.Len(t, asm.Included, 1)
	assert.Equal(t, "real", asm.Included[0].Item.Title)
	assert.Equal(t, 30, asm.UsedTokens)
}

func TestPackOrdersByRelevanceKeepingTiesStable(t *testing.T) {
	packer := NewPacker(wordCounter{})

	candidates := []*chatctx.ScoredItem{
		scored("low", "a", 10, 0.2),
		scored("tie-one", "b", 10, 0.8),
		scored("tie-two", "c", 10, 0.8),
		scored("top", "d", 10, 0.9),
	}

	asm := packer.Pack("question", candidates, 10_000, 100, "", 0)

	require.Len(t, asm.Included, 4)
	assert.Equal(t, "top", asm.Included[0].Item.Title)
	assert.Equal(t, "tie-one", asm.Included[1].Item.Title)
	assert.Equal(t, "tie-two", asm.Included[2].Item.Title)
	assert.Equal(t, "low", asm.Included[3].Item.Title)
}

func TestPackCountsUncountedItemsOnceAndCaches(t *testing.T) {
	packer := NewPacker(wordCounter{})

	item := scored("doc", "one two three four", 0, 0.9)
	asm := packer.Pack("question", []*chatctx.ScoredItem{item}, 10_000, 100, "", 0)

	require.Len(t, asm.Included, 1)
	// Rendered block: delimiter line plus the four body words
	rendered := formatBlock(item.Item)
	want := len(strings.Fields(rendered))
	assert.Equal(t, want, item.Item.TokenCount)
	assert.Equal(t, want, asm.UsedTokens)
}

func TestPackReservesSystemPromptAndHistory(t *testing.T) {
	packer := NewPacker(wordCounter{})

	asm := packer.Pack("question", nil, 10_000, 100, "system prompt here", 40)

	// 1 query word + 3 system words + 40 history + margin
	assert.Equal(t, 1+3+40+defaultSafetyMargin, asm.ReservedTokens)
}

func TestPackIncludedPromptCarriesPreamble(t *testing.T) {
	packer := NewPacker(wordCounter{})

	candidates := []*chatctx.ScoredItem{scored("doc", "alpha", 5, 0.9)}
	asm := packer.Pack("question", candidates, 10_000, 100, "", 0)

	assert.True(t, strings.HasPrefix(asm.Prompt, promptPreamble))
}
