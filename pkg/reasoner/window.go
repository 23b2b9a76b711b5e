package reasoner

import "github.com/adiwardana/pandu/pkg/llm"

// windowHeadroom is the fraction of the token budget the estimated
// window may occupy before pruning kicks in.
const windowHeadroom = 0.7

// pruneWindow trims the conversation window. The system prompt and the
// original task (the first two messages) are never dropped; older
// exchanges go first. An assistant message carrying tool calls is
// removed together with the tool replies that answer it, so the window
// never starts mid-exchange.
func pruneWindow(messages []llm.Message, maxMessages int, counter *llm.TokenCounter, budget int) []llm.Message {
	if len(messages) <= 2 {
		return messages
	}

	limit := int(windowHeadroom * float64(budget))
	for len(messages) > 2 {
		overCount := len(messages) > maxMessages
		overTokens := budget > 0 && counter.CountMessages(messages) > limit
		if !overCount && !overTokens {
			break
		}

		span := groupSpan(messages, 2)
		if 2+span >= len(messages) {
			// The remaining tail is one exchange; dropping it would
			// leave the model with nothing to answer.
			break
		}
		messages = append(messages[:2:2], messages[2+span:]...)
	}
	return messages
}

// groupSpan returns how many messages starting at index i form one
// undroppable unit.
func groupSpan(messages []llm.Message, i int) int {
	if messages[i].Role != llm.RoleAssistant || len(messages[i].ToolCalls) == 0 {
		return 1
	}
	span := 1
	for i+span < len(messages) && messages[i+span].Role == llm.RoleTool {
		span++
	}
	return span
}
