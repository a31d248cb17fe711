package ai

import (
	"fmt"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
)

const emptyOutput = "(no output)"

// resultText is the text a backend sees for a tool result.
func resultText(result domain.ToolResult) string {
	if strings.TrimSpace(result.Output) == "" {
		return emptyOutput
	}
	return result.Output
}

// extractedText summarizes an extracted command for the next turn.
func extractedText(ex *domain.ExtractedCommand) string {
	if ex == nil {
		return ""
	}
	if ex.Result != nil {
		return fmt.Sprintf("Result of `%s` (%s):\n%s", ex.RawText, ex.Result.Outcome, resultText(*ex.Result))
	}
	if ex.Decision != nil && !ex.Decision.Approved() {
		reason := ex.Decision.Reason
		if reason == "" {
			reason = string(ex.Decision.Source)
		}
		return fmt.Sprintf("Command `%s` was not run: %s", ex.RawText, reason)
	}
	return fmt.Sprintf("Command `%s` was proposed.", ex.RawText)
}

// flattenHistory renders history as plain role/content pairs for text-only backends.
func flattenHistory(system string, history []domain.Message) []domain.PromptMessage {
	out := make([]domain.PromptMessage, 0, len(history)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, domain.PromptMessage{Role: string(domain.RoleSystem), Content: system})
	}
	add := func(role domain.Role, content string) {
		if content == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == string(role) && role != domain.RoleSystem {
			out[n-1].Content += "\n\n" + content
			return
		}
		out = append(out, domain.PromptMessage{Role: string(role), Content: content})
	}
	for _, msg := range history {
		switch msg.Kind {
		case domain.KindToolCall:
			if msg.ToolCall != nil {
				add(domain.RoleAssistant, fmt.Sprintf("Requested %s: %s", msg.ToolCall.Name, msg.ToolCall.Command()))
			}
		case domain.KindToolResult:
			if msg.ToolResult != nil {
				add(domain.RoleUser, fmt.Sprintf("Result (%s):\n%s", msg.ToolResult.Outcome, resultText(*msg.ToolResult)))
			}
		case domain.KindExtracted:
			add(domain.RoleUser, extractedText(msg.Extracted))
		default:
			if msg.Role == domain.RoleSystem || msg.Role == domain.RoleTool {
				continue
			}
			add(msg.Role, msg.Content)
		}
	}
	return out
}

// lastUserText returns the most recent operator message.
func lastUserText(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role == domain.RoleUser && msg.Kind == domain.KindText {
			return msg.Content
		}
	}
	return ""
}
