package summary

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Budget truncates transcripts to a token budget before prompting, so a long
// call cannot blow past the summarizer model's context window.
type Budget struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// NewBudget creates a Budget sized for the given model. Unknown models fall
// back to the cl100k_base encoding.
func NewBudget(model string, maxTokens int) (*Budget, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("summary: get tokenizer: %w", err)
		}
	}
	return &Budget{tokenizer: enc, maxTokens: maxTokens}, nil
}

// Truncate keeps the transcript's tail when it exceeds the budget: the end
// of the conversation carries the request resolution and contact details the
// summary needs most.
func (b *Budget) Truncate(transcript string) string {
	if b.maxTokens <= 0 {
		return transcript
	}
	tokens := b.tokenizer.Encode(transcript, nil, nil)
	if len(tokens) <= b.maxTokens {
		return transcript
	}
	return b.tokenizer.Decode(tokens[len(tokens)-b.maxTokens:])
}

// Count returns the token count of the given text.
func (b *Budget) Count(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}
