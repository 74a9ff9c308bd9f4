// Package llmclient holds the outbound adapters for the LLM and embedding
// services. It converts between the agent's provider-neutral message shapes
// and the Anthropic SDK types.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kdt-ai/neo-backend/internal/agent"
)

const maxResponseTokens = 4096

// AnthropicClient implements agent.LLM over the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a client with the given API key.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// CreateMessage sends one chat-with-tools request and maps the response back
// to the agent's block shapes.
func (c *AnthropicClient) CreateMessage(ctx context.Context, model, system string, tools []agent.ToolSpec, messages []agent.Message) (*agent.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(maxResponseTokens)),
		Messages:  anthropic.F(convertMessages(messages)),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(system)})
	}
	if len(tools) > 0 {
		params.Tools = anthropic.F(convertTools(tools))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llmclient.CreateMessage: %w", err)
	}

	out := &agent.Response{StopReason: string(resp.StopReason)}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			out.Content = append(out.Content, agent.Block{Type: agent.BlockText, Text: block.Text})
		case anthropic.ContentBlockTypeToolUse:
			out.Content = append(out.Content, agent.Block{
				Type:  agent.BlockToolUse,
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(block.Input),
			})
		}
	}
	return out, nil
}

func convertMessages(messages []agent.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.MessageParamContentUnion, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch b.Type {
			case agent.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case agent.BlockToolUse:
				blocks = append(blocks, anthropic.ToolUseBlockParam{
					ID:    anthropic.F(b.ID),
					Name:  anthropic.F(b.Name),
					Input: anthropic.F[interface{}](b.Input),
					Type:  anthropic.F(anthropic.ToolUseBlockParamTypeToolUse),
				})
			case agent.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}

		if msg.Role == agent.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertTools(tools []agent.ToolSpec) []anthropic.ToolParam {
	out := make([]anthropic.ToolParam, len(tools))
	for i, t := range tools {
		out[i] = anthropic.ToolParam{
			Name:        anthropic.F(t.Name),
			Description: anthropic.F(t.Description),
			InputSchema: anthropic.F(interface{}(t.InputSchema)),
		}
	}
	return out
}
