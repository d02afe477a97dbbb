package compression

import (
	"context"

	"github.com/jg-phare/ollm/pkg/chattypes"
	"github.com/jg-phare/ollm/pkg/provider"
)

// HybridOptions configures the hybrid strategy: a hard ceiling on the
// recent tail kept verbatim, plus an overall token budget the middle
// summary is sized against.
type HybridOptions struct {
	PreserveRecentTokens int
	TargetTokens         int
}

// Hybrid drops the oldest ("very old") portion of the conversation and
// summarizes the remaining middle into one system message, keeping the
// anchor and a recent tail bounded by PreserveRecentTokens verbatim.
func Hybrid(ctx context.Context, messages []chattypes.Message, opts HybridOptions, p provider.Provider, model string) []chattypes.Message {
	if len(messages) == 0 {
		return nil
	}

	aLen := anchorLen(messages)
	tail, tailStart := selectTail(messages, opts.PreserveRecentTokens)
	if tailStart < aLen {
		tailStart = aLen
	}

	middleBudget := opts.TargetTokens - opts.PreserveRecentTokens
	if middleBudget < 0 {
		middleBudget = 0
	}

	// The "very old" zone is dropped outright; only a middleBudget-sized
	// slice immediately preceding the tail is kept for summarization.
	_, middleStart := selectTail(messages[aLen:tailStart], middleBudget)
	middleStart += aLen

	out := make([]chattypes.Message, 0, aLen+1+len(tail))
	if aLen == 1 {
		out = append(out, messages[0])
	}

	body := messages[middleStart:tailStart]
	if len(body) > 0 {
		out = append(out, buildSummaryMessage(ctx, body, p, model))
	}

	out = append(out, tail...)
	return out
}
