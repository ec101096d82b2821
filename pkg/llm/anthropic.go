package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harun/nalar/pkg/history"
)

// AnthropicClient implements Client for Anthropic Claude models.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic-backed model client.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate sends the projected ledger to the Messages API and maps the
// response back to ledger content blocks.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, turn := range req.Messages {
		switch turn.Kind {
		case history.TurnUser:
			blocks := []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(turn.Text),
			}
			for _, att := range turn.Attachments {
				blocks = append(blocks, anthropic.NewImageBlockBase64(
					att.MediaType,
					base64.StdEncoding.EncodeToString(att.Data),
				))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))

		case history.TurnAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Blocks))
			for _, block := range turn.Blocks {
				switch b := block.(type) {
				case history.TextBlock:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case history.ThinkingBlock:
					blocks = append(blocks, anthropic.NewThinkingBlock(b.Signature, b.Thinking))
				case history.ToolCallBlock:
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
				}
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		case history.TurnToolResult:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(turn.ToolCallID, turn.Text, false),
			))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, schema := range req.Tools {
			tool := anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.InputSchema["properties"],
				},
			}
			if required, ok := schema.InputSchema["required"].([]string); ok {
				tool.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic generate: %w", err)
	}

	blocks := make([]history.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, history.TextBlock{Text: b.Text})
		case anthropic.ThinkingBlock:
			blocks = append(blocks, history.ThinkingBlock{
				Thinking:  b.Thinking,
				Signature: b.Signature,
			})
		case anthropic.ToolUseBlock:
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &input); err != nil {
				return Response{}, fmt.Errorf("parse tool input: %w", err)
			}
			blocks = append(blocks, history.ToolCallBlock{
				ID:    b.ID,
				Name:  b.Name,
				Input: input,
			})
		}
	}

	return Response{
		Blocks: blocks,
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
