package compression

import "github.com/jg-phare/ollm/pkg/chattypes"

const perMessageOverheadTokens = 10

// EstimateMessageTokens approximates a single message's token cost as
// ceil(totalTextLength/4) + 10. This approximation, not a real tokenizer,
// is the contract every strategy and test in this package relies on.
func EstimateMessageTokens(m chattypes.Message) int {
	length := 0
	for _, p := range m.Parts {
		if p.Type == chattypes.PartTypeText {
			length += len(p.Text)
		}
	}
	return ceilDiv(length, 4) + perMessageOverheadTokens
}

// EstimateTokens sums EstimateMessageTokens across a message list.
func EstimateTokens(messages []chattypes.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
