package render

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/aletheia/internal/types"
)

// Meter counts tokens the way the backend's model would see them.
type Meter struct {
	tokenizer *tiktoken.Tiktoken
}

// NewMeter selects the tokenizer for model, falling back to cl100k_base for
// models tiktoken does not know.
func NewMeter(model string) (*Meter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Meter{tokenizer: enc}, nil
}

// Count returns the token count for text.
func (m *Meter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(m.tokenizer.Encode(text, nil, nil))
}

// CountMessages sums message contents and thinking step descriptions.
// Source contents are excluded; they are not part of the conversation.
func (m *Meter) CountMessages(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += m.Count(msg.Content)
		for _, step := range msg.ThinkingTrace {
			total += m.Count(step.Description)
		}
	}
	return total
}
