package compression

import "github.com/jg-phare/ollm/pkg/chattypes"

// ShouldCompress reports whether the message history's estimated token
// total has crossed tokenLimit*threshold.
func ShouldCompress(messages []chattypes.Message, tokenLimit int, threshold float64) bool {
	return float64(EstimateTokens(messages)) >= float64(tokenLimit)*threshold
}
