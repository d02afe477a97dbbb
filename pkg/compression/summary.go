package compression

import (
	"context"
	"fmt"
	"strings"

	"github.com/jg-phare/ollm/pkg/chattypes"
	"github.com/jg-phare/ollm/pkg/provider"
)

// summaryPrompt is the instruction sent to the provider when generating a
// real summary of the compacted zone.
const summaryPrompt = `Summarize the following conversation, preserving key decisions, file paths and code changes, unresolved questions, and user preferences. Be concise.`

// Summarize replaces messages[anchorLen:tailStart] with a single summary
// message, keeping the leading system anchor (if any) and the trailing
// tailBudget-worth of recent messages verbatim.
func Summarize(ctx context.Context, messages []chattypes.Message, tailBudget int, p provider.Provider, model string) []chattypes.Message {
	if len(messages) == 0 {
		return nil
	}

	aLen := anchorLen(messages)
	tail, tailStart := selectTail(messages, tailBudget)
	if tailStart < aLen {
		tailStart = aLen
	}
	body := messages[aLen:tailStart]

	out := make([]chattypes.Message, 0, aLen+1+len(tail))
	if aLen == 1 {
		out = append(out, messages[0])
	}

	if len(body) > 0 {
		out = append(out, buildSummaryMessage(ctx, body, p, model))
	}

	out = append(out, tail...)
	return out
}

// buildSummaryMessage generates the single system summary message for body.
// A provider failure — an error return, an error event, or an empty text
// result — falls back to a deterministic placeholder; it never propagates.
func buildSummaryMessage(ctx context.Context, body []chattypes.Message, p provider.Provider, model string) chattypes.Message {
	text := generateSummaryText(ctx, body, p, model)
	content := fmt.Sprintf("%d messages compressed summary: %s", len(body), text)
	return chattypes.NewTextMessage(chattypes.RoleSystem, content)
}

func generateSummaryText(ctx context.Context, body []chattypes.Message, p provider.Provider, model string) string {
	if p == nil {
		return placeholderText(body)
	}

	events, err := p.ChatStream(ctx, provider.Request{
		Model:    model,
		Messages: []chattypes.Message{chattypes.NewTextMessage(chattypes.RoleUser, summaryPrompt+"\n\n"+renderBody(body))},
	})
	if err != nil {
		return placeholderText(body)
	}

	var sb strings.Builder
	for ev := range events {
		switch ev.Type {
		case provider.EventError:
			return placeholderText(body)
		case provider.EventText:
			sb.WriteString(ev.Text)
		}
	}

	if sb.Len() == 0 {
		return placeholderText(body)
	}
	return sb.String()
}

// placeholderText is the deterministic fallback used when no provider is
// configured or the provider call fails.
func placeholderText(body []chattypes.Message) string {
	return fmt.Sprintf("placeholder for %d older messages (no provider summary available)", len(body))
}

func renderBody(body []chattypes.Message) string {
	var sb strings.Builder
	for _, m := range body {
		sb.WriteString(fmt.Sprintf("[%s]: %s\n", m.Role, m.Text()))
	}
	return sb.String()
}
