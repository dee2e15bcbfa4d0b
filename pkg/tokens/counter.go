package tokens

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter defines the interface for counting model-countable text units.
// Implementations must be safe for concurrent use.
type Counter interface {
	// Count returns the number of tokens in the given text
	Count(text string) int
}

// TiktokenCounter counts tokens with a BPE encoding matching the target model
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTiktokenCounter creates a counter for the given model.
// Falls back to the cl100k_base encoding when the model is unknown.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	if model == "" {
		model = "gpt-4o"
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	return &TiktokenCounter{
		encoding: encoding,
		model:    model,
	}, nil
}

// Count returns the exact token count for the text
func (c *TiktokenCounter) Count(text string) int {
	if c.encoding == nil {
		return estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Model returns the model the encoding was resolved for
func (c *TiktokenCounter) Model() string {
	return c.model
}

// EstimatedCounter approximates token counts from character and word length.
// Used when no BPE dictionary is available (offline or unknown encoding).
type EstimatedCounter struct {
	// CharsPerToken is the assumed average characters per token (default 4)
	CharsPerToken float64
}

// NewEstimatedCounter creates an estimator with the default ratio
func NewEstimatedCounter() *EstimatedCounter {
	return &EstimatedCounter{CharsPerToken: 4.0}
}

// Count returns the estimated token count for the text
func (c *EstimatedCounter) Count(text string) int {
	ratio := c.CharsPerToken
	if ratio <= 0 {
		ratio = 4.0
	}
	return int(float64(len(text)) / ratio)
}

// Default returns the best available counter for the model:
// exact BPE counting when the dictionary can be loaded, estimation otherwise.
func Default(model string) Counter {
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		return NewEstimatedCounter()
	}
	return counter
}

// estimate blends character and word heuristics so short code snippets and
// prose both land near their real token count
func estimate(text string) int {
	charCount := len(text)
	wordCount := len(strings.Fields(text))

	if wordCount == 0 {
		return charCount / 4
	}

	charBased := charCount / 4
	wordBased := int(float64(wordCount) * 1.3)

	return (charBased + wordBased) / 2
}

// Verify implementations satisfy Counter
var _ Counter = (*TiktokenCounter)(nil)
var _ Counter = (*EstimatedCounter)(nil)
