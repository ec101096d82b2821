package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/nalar/pkg/history"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client for OpenAI chat models. Thinking blocks have
// no wire representation here; they are folded into the assistant text on
// replay and never produced in responses.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI-backed model client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate sends the projected ledger to the chat completions API and maps
// the response back to ledger content blocks.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, turn := range req.Messages {
		switch turn.Kind {
		case history.TurnUser:
			messages = append(messages, openai.UserMessage(turn.Text))

		case history.TurnAssistant:
			var text strings.Builder
			toolCalls := []openai.ChatCompletionMessageToolCall{}
			for _, block := range turn.Blocks {
				switch b := block.(type) {
				case history.TextBlock:
					text.WriteString(b.Text)
				case history.ThinkingBlock:
					text.WriteString(b.Thinking)
				case history.ToolCallBlock:
					args, err := json.Marshal(b.Input)
					if err != nil {
						return Response{}, fmt.Errorf("marshal tool input: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   b.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      b.Name,
							Arguments: string(args),
						},
					})
				}
			}
			if len(toolCalls) > 0 {
				assistant := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   text.String(),
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistant.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(text.String()))
			}

		case history.TurnToolResult:
			messages = append(messages, openai.ToolMessage(turn.ToolCallID, turn.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, schema := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters:  openai.FunctionParameters(schema.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai generate: no response choices returned")
	}

	choice := resp.Choices[0]
	blocks := []history.ContentBlock{}
	if choice.Message.Content != "" {
		blocks = append(blocks, history.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			return Response{}, fmt.Errorf("parse tool arguments: %w", err)
		}
		blocks = append(blocks, history.ToolCallBlock{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	return Response{
		Blocks: blocks,
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}
