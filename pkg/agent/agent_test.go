package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/harun/nalar/pkg/events"
	"github.com/harun/nalar/pkg/history"
	"github.com/harun/nalar/pkg/llm"
	"github.com/harun/nalar/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns canned responses in order. After the script runs
// out it answers with plain text, which ends the run. onGenerate fires before
// each response, letting tests act "while the model call is outstanding".
type scriptedClient struct {
	mu         sync.Mutex
	script     []llm.Response
	errs       []error
	calls      int
	onGenerate func(call int)
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.mu.Unlock()

	if c.onGenerate != nil {
		c.onGenerate(i)
	}
	if i < len(c.errs) && c.errs[i] != nil {
		return llm.Response{}, c.errs[i]
	}
	if i < len(c.script) {
		return c.script[i], nil
	}
	return llm.Response{
		Blocks: []history.ContentBlock{history.TextBlock{Text: "all wrapped up"}},
	}, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingTool struct {
	mu       sync.Mutex
	name     string
	invoked  int
	onInvoke func()
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "records invocations" }

func (t *recordingTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "what to do",
			},
		},
	}
}

func (t *recordingTool) Invoke(ctx context.Context, input map[string]interface{}, ledger *history.Ledger) (string, error) {
	t.mu.Lock()
	t.invoked++
	t.mu.Unlock()
	if t.onInvoke != nil {
		t.onInvoke()
	}
	return fmt.Sprintf("did %v", input["task"]), nil
}

func (t *recordingTool) invocations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invoked
}

func toolCallResponse(id string) llm.Response {
	return llm.Response{
		Blocks: []history.ContentBlock{
			history.TextBlock{Text: "working on it"},
			history.ToolCallBlock{ID: id, Name: "worker", Input: map[string]interface{}{"task": id}},
		},
	}
}

type testHarness struct {
	agent  *Agent
	client *scriptedClient
	tool   *recordingTool
	ledger *history.Ledger
	queue  *events.Queue
}

func newHarness(t *testing.T, client *scriptedClient, maxTurns int) *testHarness {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	tool := &recordingTool{name: "worker"}
	registry, err := tools.NewRegistry(logger, tool, tools.NewReturnControlTool())
	require.NoError(t, err)

	ledger := history.New(1<<20, logger)
	queue := events.NewQueue()

	ag, err := New(Config{
		Client:   client,
		Registry: registry,
		Ledger:   ledger,
		Queue:    queue,
		Logger:   logger,
		MaxTurns: maxTurns,
	})
	require.NoError(t, err)

	return &testHarness{agent: ag, client: client, tool: tool, ledger: ledger, queue: queue}
}

func (h *testHarness) drainEvents() []events.Event {
	h.queue.Close()
	var out []events.Event
	for {
		ev, ok := h.queue.Get(context.Background())
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func eventTypes(evs []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

// checkPairing asserts every tool result matches a prior call and results
// never outnumber calls.
func checkPairing(t *testing.T, ledger *history.Ledger) {
	t.Helper()
	calls := 0
	results := 0
	known := make(map[string]bool)
	for _, turn := range ledger.MessagesForLLM() {
		for _, block := range turn.Blocks {
			if c, ok := block.(history.ToolCallBlock); ok {
				calls++
				known[c.ID] = true
			}
		}
		if turn.Kind == history.TurnToolResult {
			results++
			assert.True(t, known[turn.ToolCallID], "result %s has no prior call", turn.ToolCallID)
		}
	}
	assert.LessOrEqual(t, results, calls)
}

func TestNew(t *testing.T) {
	t.Run("should require all collaborators", func(t *testing.T) {
		logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
		registry, err := tools.NewRegistry(logger)
		require.NoError(t, err)

		_, err = New(Config{Registry: registry, Ledger: history.New(0, logger), Queue: events.NewQueue(), Logger: logger})
		assert.ErrorContains(t, err, "model client")

		_, err = New(Config{Client: &scriptedClient{}, Ledger: history.New(0, logger), Queue: events.NewQueue(), Logger: logger})
		assert.ErrorContains(t, err, "tool registry")

		_, err = New(Config{Client: &scriptedClient{}, Registry: registry, Queue: events.NewQueue(), Logger: logger})
		assert.ErrorContains(t, err, "history ledger")

		_, err = New(Config{Client: &scriptedClient{}, Registry: registry, Ledger: history.New(0, logger), Logger: logger})
		assert.ErrorContains(t, err, "event queue")
	})
}

func TestRunCompletion(t *testing.T) {
	t.Run("should complete when the model calls no tool", func(t *testing.T) {
		h := newHarness(t, &scriptedClient{}, 10)

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "say hi"})
		require.NoError(t, err)
		assert.Equal(t, CompleteMessage, result)
		assert.Equal(t, 1, h.client.callCount())

		types := eventTypes(h.drainEvents())
		assert.Equal(t, []events.EventType{
			events.EventUserMessage,
			events.EventAgentThinking,
			events.EventAgentResponse,
		}, types)
	})

	t.Run("should run one tool per turn then complete", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{
			toolCallResponse("call-1"),
			toolCallResponse("call-2"),
		}}
		h := newHarness(t, client, 10)

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "do work"})
		require.NoError(t, err)
		assert.Equal(t, CompleteMessage, result)
		assert.Equal(t, 2, h.tool.invocations())
		assert.Equal(t, 3, h.client.callCount())
		checkPairing(t, h.ledger)

		types := eventTypes(h.drainEvents())
		assert.Equal(t, []events.EventType{
			events.EventUserMessage,
			events.EventAgentThinking, // "working on it"
			events.EventToolCall,
			events.EventToolResult,
			events.EventAgentThinking,
			events.EventToolCall,
			events.EventToolResult,
			events.EventAgentThinking, // final text
			events.EventAgentResponse,
		}, types)
	})

	t.Run("should substitute a placeholder for an empty model response", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{{}}}
		h := newHarness(t, client, 10)

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "hm"})
		require.NoError(t, err)
		assert.Equal(t, CompleteMessage, result)

		turns := h.ledger.MessagesForLLM()
		last := turns[len(turns)-1]
		require.Equal(t, history.TurnAssistant, last.Kind)
		require.Len(t, last.Blocks, 1)
		assert.Equal(t, history.TextBlock{Text: CompleteMessage}, last.Blocks[0])
	})

	t.Run("should finish with the final answer when the stop tool fires", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{
			{
				Blocks: []history.ContentBlock{history.ToolCallBlock{
					ID:    "call-1",
					Name:  "return_control_to_user",
					Input: map[string]interface{}{"answer": "42"},
				}},
			},
		}}
		h := newHarness(t, client, 10)

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "answer"})
		require.NoError(t, err)
		assert.Equal(t, "42", result)
		assert.Equal(t, 1, h.client.callCount())
		checkPairing(t, h.ledger)

		// Synthetic assistant turn ends the ledger so the user can resume.
		turns := h.ledger.MessagesForLLM()
		assert.Equal(t, history.TurnAssistant, turns[len(turns)-1].Kind)
	})

	t.Run("should propagate model errors", func(t *testing.T) {
		client := &scriptedClient{errs: []error{errors.New("provider down")}}
		h := newHarness(t, client, 10)

		_, err := h.agent.Run(context.Background(), RunParams{Instruction: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider down")
	})
}

func TestRunContractViolation(t *testing.T) {
	t.Run("should fail the run when the model emits two tool calls", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{
			{
				Blocks: []history.ContentBlock{
					history.ToolCallBlock{ID: "call-1", Name: "worker"},
					history.ToolCallBlock{ID: "call-2", Name: "worker"},
				},
			},
		}}
		h := newHarness(t, client, 10)

		_, err := h.agent.Run(context.Background(), RunParams{Instruction: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, history.ErrContractViolation))
		assert.Zero(t, h.tool.invocations())

		// The assistant turn stays; no tool result was appended.
		turns := h.ledger.MessagesForLLM()
		assert.Equal(t, history.TurnAssistant, turns[len(turns)-1].Kind)
	})
}

func TestRunMaxTurns(t *testing.T) {
	t.Run("should stop after the turn budget with the fixed message", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{
			toolCallResponse("call-1"),
			toolCallResponse("call-2"),
			toolCallResponse("call-3"),
			toolCallResponse("call-4"),
			toolCallResponse("call-5"),
		}}
		h := newHarness(t, client, 3)

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "loop"})
		require.NoError(t, err)
		assert.Equal(t, MaxTurnsMessage, result)
		assert.Equal(t, 3, h.client.callCount())
		checkPairing(t, h.ledger)

		evs := h.drainEvents()
		last := evs[len(evs)-1]
		assert.Equal(t, events.EventAgentResponse, last.Type)
		assert.Equal(t, MaxTurnsMessage, last.Content["text"])
	})
}

func TestRunInterruption(t *testing.T) {
	t.Run("should mark the pending call interrupted when cancelled during the model call", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{toolCallResponse("call-1")}}
		h := newHarness(t, client, 10)
		client.onGenerate = func(call int) {
			h.agent.Cancel()
		}

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "x"})
		require.NoError(t, err)
		assert.Equal(t, ToolResultInterruptMessage, result)
		assert.Zero(t, h.tool.invocations())
		checkPairing(t, h.ledger)

		turns := h.ledger.MessagesForLLM()
		require.GreaterOrEqual(t, len(turns), 2)
		resultTurn := turns[len(turns)-2]
		assert.Equal(t, history.TurnToolResult, resultTurn.Kind)
		assert.Equal(t, ToolResultInterruptMessage, resultTurn.Text)
		assert.Equal(t, history.TurnAssistant, turns[len(turns)-1].Kind)

		evs := h.drainEvents()
		assert.Equal(t, events.EventAgentResponseInterrupted, evs[len(evs)-1].Type)
	})

	t.Run("should terminate before the next model call when cancelled during tool execution", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{
			toolCallResponse("call-1"),
			toolCallResponse("call-2"),
		}}
		h := newHarness(t, client, 10)
		h.tool.onInvoke = func() {
			h.agent.Cancel()
		}

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "x"})
		require.NoError(t, err)
		assert.Equal(t, AgentInterruptMessage, result)
		assert.Equal(t, 1, h.client.callCount())
		assert.Equal(t, 1, h.tool.invocations())
		checkPairing(t, h.ledger)

		turns := h.ledger.MessagesForLLM()
		assert.Equal(t, history.TurnAssistant, turns[len(turns)-1].Kind)
	})

	t.Run("should resume coherently after an interrupted run", func(t *testing.T) {
		client := &scriptedClient{script: []llm.Response{toolCallResponse("call-1")}}
		h := newHarness(t, client, 10)
		client.onGenerate = func(call int) {
			if call == 0 {
				h.agent.Cancel()
			}
		}

		_, err := h.agent.Run(context.Background(), RunParams{Instruction: "first"})
		require.NoError(t, err)
		lenAfterInterrupt := h.ledger.Len()

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "continue", Resume: true})
		require.NoError(t, err)
		assert.Equal(t, CompleteMessage, result)

		turns := h.ledger.MessagesForLLM()
		// The resumed user turn lands right after the synthetic assistant
		// turn; the interrupted pair survives truncation.
		assert.Equal(t, history.TurnUser, turns[lenAfterInterrupt].Kind)
		assert.Equal(t, "continue", turns[lenAfterInterrupt].Text)
		checkPairing(t, h.ledger)
	})

	t.Run("should clear the flag on a fresh run", func(t *testing.T) {
		h := newHarness(t, &scriptedClient{}, 10)
		h.agent.Cancel()

		result, err := h.agent.Run(context.Background(), RunParams{Instruction: "x"})
		require.NoError(t, err)
		assert.Equal(t, CompleteMessage, result)
	})
}

func TestRunParams(t *testing.T) {
	t.Run("should clear the ledger on a non-resumed run", func(t *testing.T) {
		h := newHarness(t, &scriptedClient{}, 10)

		_, err := h.agent.Run(context.Background(), RunParams{Instruction: "one"})
		require.NoError(t, err)

		_, err = h.agent.Run(context.Background(), RunParams{Instruction: "two"})
		require.NoError(t, err)

		turns := h.ledger.MessagesForLLM()
		assert.Equal(t, "two", turns[0].Text)
	})

	t.Run("should append the orientation to the instruction", func(t *testing.T) {
		h := newHarness(t, &scriptedClient{}, 10)

		_, err := h.agent.Run(context.Background(), RunParams{
			Instruction: "fix the bug",
			Orientation: "prefer minimal changes",
		})
		require.NoError(t, err)

		turns := h.ledger.MessagesForLLM()
		assert.Contains(t, turns[0].Text, "fix the bug")
		assert.Contains(t, turns[0].Text, "prefer minimal changes")
	})

	t.Run("should carry attachments into the user turn", func(t *testing.T) {
		h := newHarness(t, &scriptedClient{}, 10)

		_, err := h.agent.Run(context.Background(), RunParams{
			Instruction: "look at this",
			Attachments: []history.Attachment{{MediaType: "image/png", Data: []byte{0x89}}},
		})
		require.NoError(t, err)

		turns := h.ledger.MessagesForLLM()
		require.Len(t, turns[0].Attachments, 1)
	})
}

func TestThinkingEvents(t *testing.T) {
	t.Run("should wrap thinking blocks in the emitted event only", func(t *testing.T) {
		thinking := "one two three four five six seven eight nine ten"
		client := &scriptedClient{script: []llm.Response{
			{Blocks: []history.ContentBlock{
				history.ThinkingBlock{Thinking: thinking},
				history.TextBlock{Text: "done"},
			}},
		}}
		h := newHarness(t, client, 10)

		_, err := h.agent.Run(context.Background(), RunParams{Instruction: "think"})
		require.NoError(t, err)

		evs := h.drainEvents()
		var thinkingEvents []events.Event
		for _, ev := range evs {
			if ev.Type == events.EventAgentThinking {
				thinkingEvents = append(thinkingEvents, ev)
			}
		}
		require.Len(t, thinkingEvents, 2)

		wrapped, _ := thinkingEvents[0].Content["text"].(string)
		assert.Contains(t, wrapped, "```Thinking:")
		assert.Contains(t, wrapped, "one two three four five six seven eight\nnine ten")
		assert.Equal(t, "done", thinkingEvents[1].Content["text"])

		// Ledger keeps the raw thinking text.
		turns := h.ledger.MessagesForLLM()
		block := turns[1].Blocks[0].(history.ThinkingBlock)
		assert.Equal(t, thinking, block.Thinking)
	})
}

func TestWrapWords(t *testing.T) {
	t.Run("should fold at the word limit", func(t *testing.T) {
		assert.Equal(t, "a b\nc d\ne", wrapWords("a b c d e", 2))
	})

	t.Run("should return empty for blank input", func(t *testing.T) {
		assert.Equal(t, "", wrapWords("   ", 4))
	})
}
