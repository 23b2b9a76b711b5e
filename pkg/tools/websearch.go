package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adiwardana/pandu/pkg/httpclient"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

// WebSearchTool queries the DuckDuckGo instant answer API. Results are
// abstracts and related topics, not a full web index, which keeps the
// tool key-free.
type WebSearchTool struct {
	client     *httpclient.Client
	endpoint   string
	maxResults int
}

func NewWebSearchTool(client *httpclient.Client) *WebSearchTool {
	return &WebSearchTool{
		client:     client,
		endpoint:   duckDuckGoEndpoint,
		maxResults: 5,
	}
}

func (t *WebSearchTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "websearch",
		Description: "Search the web for a topic and return short summaries with source links.",
		Danger:      DangerSafe,
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
		},
	}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Answer        string     `json:"Answer"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()
	query, _ := args["query"].(string)
	meta := map[string]any{"query": query, "operation": "search"}

	if strings.TrimSpace(query) == "" {
		return errorResult("websearch", "query cannot be empty", start, meta), nil
	}

	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1",
		t.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errorResult("websearch", err.Error(), start, meta), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errorResult("websearch", fmt.Sprintf("search request failed: %v", err), start, meta), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorResult("websearch",
			fmt.Sprintf("search returned status %d", resp.StatusCode), start, meta), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errorResult("websearch", err.Error(), start, meta), nil
	}
	var parsed ddgResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return errorResult("websearch", fmt.Sprintf("decode search response: %v", err), start, meta), nil
	}

	output := t.render(query, parsed)
	return ToolResult{
		Status:        StatusSuccess,
		Output:        output,
		ToolName:      "websearch",
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}, nil
}

func (t *WebSearchTool) render(query string, resp ddgResponse) string {
	var b strings.Builder

	if resp.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n", resp.Answer)
	}
	if resp.AbstractText != "" {
		fmt.Fprintf(&b, "%s", resp.AbstractText)
		if resp.AbstractURL != "" {
			fmt.Fprintf(&b, " (%s)", resp.AbstractURL)
		}
		b.WriteString("\n")
	}

	count := 0
	var walk func(topics []ddgTopic)
	walk = func(topics []ddgTopic) {
		for _, topic := range topics {
			if count >= t.maxResults {
				return
			}
			if len(topic.Topics) > 0 {
				walk(topic.Topics)
				continue
			}
			if topic.Text == "" {
				continue
			}
			count++
			fmt.Fprintf(&b, "%d. %s", count, topic.Text)
			if topic.FirstURL != "" {
				fmt.Fprintf(&b, " (%s)", topic.FirstURL)
			}
			b.WriteString("\n")
		}
	}
	walk(resp.RelatedTopics)

	if b.Len() == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	return strings.TrimRight(b.String(), "\n")
}
