package compression

import "github.com/jg-phare/ollm/pkg/chattypes"

// anchorLen returns 1 if messages has a leading system message, else 0.
func anchorLen(messages []chattypes.Message) int {
	if len(messages) > 0 && messages[0].Role == chattypes.RoleSystem {
		return 1
	}
	return 0
}

// selectTail walks backward from the end of messages, accumulating the
// recent tail that fits within budget tokens. The most recent message is
// always included regardless of budget, since it must always survive
// compression. It returns the tail slice and the index where it starts.
func selectTail(messages []chattypes.Message, budget int) ([]chattypes.Message, int) {
	if len(messages) == 0 {
		return nil, 0
	}

	tokens := 0
	idx := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateMessageTokens(messages[i])
		if i != len(messages)-1 && tokens+cost > budget {
			break
		}
		tokens += cost
		idx = i
	}
	return messages[idx:], idx
}
