package compression

import (
	"context"

	"github.com/jg-phare/ollm/pkg/chattypes"
	"github.com/jg-phare/ollm/pkg/provider"
)

// Options selects a compression strategy and its parameters. Fields not
// used by the chosen strategy are ignored.
type Options struct {
	Strategy             Strategy
	TargetTokens         int
	PreserveRecentTokens int // hybrid only
	Threshold            float64

	Provider provider.Provider // summarize/hybrid only; nil falls back to a placeholder
	Model    string
}

// Result is the outcome of a Compress call.
type Result struct {
	CompressedMessages   []chattypes.Message
	OriginalTokenCount   int
	CompressedTokenCount int
	Strategy             Strategy
	Metadata             *chattypes.SessionMetadata // present only when metadata was supplied
}

// Compress dispatches to the strategy named in options.Strategy, recomputes
// token counts before and after, and — when metadata is supplied — returns
// an updated metadata with CompressionCount advanced by exactly 1 and
// TokenCount set to the compressed total. Without metadata, the returned
// Result.Metadata is nil and no hidden session mutation occurs.
func Compress(ctx context.Context, messages []chattypes.Message, opts Options, metadata *chattypes.SessionMetadata) (Result, error) {
	originalTokens := EstimateTokens(messages)

	var compacted []chattypes.Message
	switch opts.Strategy {
	case StrategyTruncate:
		compacted = Truncate(messages, opts.TargetTokens)
	case StrategySummarize:
		compacted = Summarize(ctx, messages, opts.TargetTokens, opts.Provider, opts.Model)
	case StrategyHybrid:
		compacted = Hybrid(ctx, messages, HybridOptions{
			PreserveRecentTokens: opts.PreserveRecentTokens,
			TargetTokens:         opts.TargetTokens,
		}, opts.Provider, opts.Model)
	default:
		return Result{}, &InvalidStrategyError{Strategy: opts.Strategy}
	}

	compactedTokens := EstimateTokens(compacted)

	result := Result{
		CompressedMessages:   compacted,
		OriginalTokenCount:   originalTokens,
		CompressedTokenCount: compactedTokens,
		Strategy:             opts.Strategy,
	}

	if metadata != nil {
		updated := *metadata
		updated.CompressionCount = metadata.CompressionCount + 1
		updated.TokenCount = compactedTokens
		result.Metadata = &updated
	}

	return result, nil
}
