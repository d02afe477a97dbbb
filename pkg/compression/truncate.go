package compression

import "github.com/jg-phare/ollm/pkg/chattypes"

// Truncate removes messages from the oldest non-anchor position, one at a
// time, until the running total is at or below targetTokens, or only the
// anchor (if any) plus the most recent message remain. Order is preserved.
func Truncate(messages []chattypes.Message, targetTokens int) []chattypes.Message {
	if len(messages) == 0 {
		return nil
	}

	out := append([]chattypes.Message(nil), messages...)

	anchorLen := 0
	if out[0].Role == chattypes.RoleSystem {
		anchorLen = 1
	}

	minKeep := anchorLen + 1
	if minKeep > len(out) {
		minKeep = len(out)
	}

	for EstimateTokens(out) > targetTokens && len(out) > minKeep {
		// Drop the oldest non-anchor message (index anchorLen).
		out = append(out[:anchorLen], out[anchorLen+1:]...)
	}

	return out
}
