package llm

import (
	"context"
	"strings"

	"github.com/adiwardana/pandu/pkg/config"
	"github.com/adiwardana/pandu/pkg/errdefs"
)

// Generator adapts the chat client for single-shot artifact generation.
// It allows larger completions than conversational turns because whole
// files come back in one response.
type Generator struct {
	client *Client
	opts   Options
}

func NewGenerator(client *Client, cfg *config.LLMConfig) *Generator {
	return &Generator{
		client: client,
		opts: Options{
			Temperature: cfg.Temperature,
			MaxTokens:   4 * cfg.MaxTokensPerResp,
		},
	}
}

// Generate produces text for a system/prompt pair without tools.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: prompt},
	}
	resp, err := g.client.Chat(ctx, messages, nil, g.opts)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", errdefs.New(errdefs.KindLLMPermanent, "model returned empty content")
	}
	return resp.Content, nil
}
