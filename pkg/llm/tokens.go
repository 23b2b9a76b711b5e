package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for window management. Counts
// are estimates: the provider's usage field is authoritative for the
// budget; the counter only drives pruning decisions.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// NewTokenCounter builds a counter for the given model. Unknown models
// fall back to the cl100k_base encoding; if even that fails the
// counter degrades to a chars/4 estimate.
func NewTokenCounter(model string) *TokenCounter {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: cached, model: model}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &TokenCounter{model: model}
		}
	}
	encodingCache[model] = encoding
	return &TokenCounter{encoding: encoding, model: model}
}

// Count returns the token count for a text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across a message list, including the
// per-message role overhead and the assistant reply priming.
func (tc *TokenCounter) CountMessages(messages []Message) int {
	const tokensPerMessage = 3

	total := 3 // reply priming
	for _, msg := range messages {
		total += tokensPerMessage
		total += tc.Count(msg.Role)
		total += tc.Count(msg.Content)
		for _, call := range msg.ToolCalls {
			total += tc.Count(call.Function.Name)
			total += tc.Count(call.Function.Arguments)
		}
	}
	return total
}
