package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatedCounter(t *testing.T) {
	counter := NewEstimatedCounter()

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, 0, counter.Count(""))
	})

	t.Run("scales with length", func(t *testing.T) {
		short := counter.Count("hello world")
		long := counter.Count(strings.Repeat("hello world ", 50))
		assert.Greater(t, long, short)
	})

	t.Run("four chars per token default", func(t *testing.T) {
		text := strings.Repeat("a", 400)
		assert.Equal(t, 100, counter.Count(text))
	})

	t.Run("zero ratio falls back to default", func(t *testing.T) {
		c := &EstimatedCounter{CharsPerToken: 0}
		assert.Equal(t, 100, c.Count(strings.Repeat("a", 400)))
	})
}

func TestTiktokenCounter(t *testing.T) {
	counter, err := NewTiktokenCounter("gpt-4o")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, 0, counter.Count(""))
	})

	t.Run("counts are positive for real text", func(t *testing.T) {
		n := counter.Count("The quick brown fox jumps over the lazy dog.")
		assert.Greater(t, n, 5)
		assert.Less(t, n, 20)
	})

	t.Run("unknown model falls back to cl100k_base", func(t *testing.T) {
		c, err := NewTiktokenCounter("definitely-not-a-model")
		require.NoError(t, err)
		assert.Greater(t, c.Count("fallback encoding still counts"), 0)
	})
}

func TestDefault(t *testing.T) {
	counter := Default("gpt-4o")
	require.NotNil(t, counter)
	assert.GreaterOrEqual(t, counter.Count("hello"), 1)
}
