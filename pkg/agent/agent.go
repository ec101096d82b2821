package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/harun/nalar/pkg/events"
	"github.com/harun/nalar/pkg/history"
	"github.com/harun/nalar/pkg/llm"
	"github.com/harun/nalar/pkg/tools"
	"github.com/rs/zerolog"
)

// Fixed run outcome and synthetic turn texts. The synthetic assistant texts
// keep the ledger coherent for a resumed run.
const (
	CompleteMessage            = "Task completed"
	AgentInterruptMessage      = "Agent interrupted by user."
	ToolResultInterruptMessage = "Tool execution interrupted by user."
	MaxTurnsMessage            = "Agent did not complete after max turns"

	agentInterruptSyntheticResponse    = "Agent interrupted by user. You can resume by providing a new instruction."
	toolCallInterruptSyntheticResponse = "Tool execution interrupted by user. You can resume by providing a new instruction."
)

// thinkingWrapWords folds emitted thinking text for readability. Cosmetic:
// the ledger keeps the unwrapped text.
const thinkingWrapWords = 8

const (
	defaultMaxTurns        = 200
	defaultMaxOutputTokens = 8192
)

// Agent owns one conversation loop over a model client and a tool registry.
type Agent struct {
	client       llm.Client
	registry     *tools.Registry
	ledger       *history.Ledger
	queue        *events.Queue
	logger       zerolog.Logger
	systemPrompt string

	maxTurns        int
	maxOutputTokens int
	sessionID       uuid.UUID

	interrupted atomic.Bool
	runMu       sync.Mutex
}

// Config holds agent construction parameters.
type Config struct {
	Client       llm.Client
	Registry     *tools.Registry
	Ledger       *history.Ledger
	Queue        *events.Queue
	Logger       zerolog.Logger
	SystemPrompt string

	// MaxTurns bounds model calls per run; zero means the default of 200.
	MaxTurns int
	// MaxOutputTokens is the per-turn output budget; zero means 8192.
	MaxOutputTokens int
	// SessionID correlates this agent's events in the persistence sink.
	// Zero value gets a fresh UUID.
	SessionID uuid.UUID
}

// RunParams are the inputs for one run.
type RunParams struct {
	Instruction string
	Attachments []history.Attachment
	// Resume keeps the existing ledger and continues the dialog.
	Resume bool
	// Orientation is an optional extra steering instruction appended to the
	// user prompt.
	Orientation string
}

// New creates an agent. Collaborators are required; budgets default.
func New(cfg Config) (*Agent, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("history ledger is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("event queue is required")
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	maxOutputTokens := cfg.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	sessionID := cfg.SessionID
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}

	return &Agent{
		client:          cfg.Client,
		registry:        cfg.Registry,
		ledger:          cfg.Ledger,
		queue:           cfg.Queue,
		logger:          cfg.Logger.With().Str("session_id", sessionID.String()).Logger(),
		systemPrompt:    cfg.SystemPrompt,
		maxTurns:        maxTurns,
		maxOutputTokens: maxOutputTokens,
		sessionID:       sessionID,
	}, nil
}

// SessionID returns the identifier correlating this agent's events.
func (a *Agent) SessionID() uuid.UUID {
	return a.sessionID
}

// Cancel requests cooperative interruption. It returns immediately; the run
// observes the flag at its next checkpoint.
func (a *Agent) Cancel() {
	a.interrupted.Store(true)
	a.logger.Info().Msg("Agent cancellation requested")
}

// Clear empties the ledger and resets the interruption flag between
// unrelated runs. Registered tools are kept.
func (a *Agent) Clear() {
	a.ledger.Clear()
	a.interrupted.Store(false)
}

// Run executes one agent run to a terminal state and returns the result
// text. Only configuration and contract violations surface as errors; max
// turns and interruption are ordinary results.
func (a *Agent) Run(ctx context.Context, params RunParams) (string, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.registry.Reset()
	if !params.Resume {
		a.ledger.Clear()
	}
	a.interrupted.Store(false)

	instruction := params.Instruction
	if params.Orientation != "" {
		instruction = instruction + "\n\n" + params.Orientation
	}

	a.ledger.AddUserPrompt(instruction, params.Attachments)
	a.emit(events.EventUserMessage, map[string]interface{}{"text": instruction})

	remaining := a.maxTurns
	for remaining > 0 {
		a.ledger.Truncate()
		remaining--

		// First checkpoint: the flag may have been set since the last turn.
		if a.interrupted.Load() {
			a.addSyntheticAssistantTurn(agentInterruptSyntheticResponse)
			return AgentInterruptMessage, nil
		}

		a.logger.Info().
			Int("token_estimate", a.ledger.CountTokens()).
			Int("remaining_turns", remaining).
			Msg("Starting turn")

		resp, err := a.client.Generate(ctx, llm.Request{
			Messages:     a.ledger.MessagesForLLM(),
			MaxTokens:    a.maxOutputTokens,
			Tools:        a.registry.Schemas(),
			SystemPrompt: a.systemPrompt,
		})
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}

		blocks := resp.Blocks
		if len(blocks) == 0 {
			// An empty assistant turn would corrupt the replayed dialog.
			blocks = []history.ContentBlock{history.TextBlock{Text: CompleteMessage}}
		}
		a.ledger.AddAssistantTurn(blocks)
		a.emitThinking(blocks)

		pending := a.ledger.PendingToolCalls()
		if len(pending) == 0 {
			a.logger.Info().Msg("No tools called, task complete")
			a.emit(events.EventAgentResponse, map[string]interface{}{"text": CompleteMessage})
			return CompleteMessage, nil
		}
		if len(pending) > 1 {
			return "", fmt.Errorf("%w: model returned %d tool calls, only one per turn is supported",
				history.ErrContractViolation, len(pending))
		}

		call := pending[0]
		a.emit(events.EventToolCall, map[string]interface{}{
			"tool_call_id": call.ID,
			"tool_name":    call.Name,
			"tool_input":   call.Input,
		})

		// Second checkpoint: the model call may have taken arbitrarily long.
		if a.interrupted.Load() {
			if err := a.addToolCallResult(call, ToolResultInterruptMessage); err != nil {
				return "", err
			}
			a.addSyntheticAssistantTurn(toolCallInterruptSyntheticResponse)
			return ToolResultInterruptMessage, nil
		}

		result := a.registry.RunTool(ctx, call, a.ledger)
		if err := a.addToolCallResult(call, result); err != nil {
			return "", err
		}

		if a.registry.ShouldStop() {
			answer := a.registry.FinalAnswer()
			a.addSyntheticAssistantTurn(answer)
			return answer, nil
		}
	}

	a.emit(events.EventAgentResponse, map[string]interface{}{"text": MaxTurnsMessage})
	return MaxTurnsMessage, nil
}

// emitThinking publishes one agent_thinking event per text or thinking block,
// in block order. Thinking text is word-wrapped and fenced for display only.
func (a *Agent) emitThinking(blocks []history.ContentBlock) {
	for _, block := range blocks {
		var text string
		switch b := block.(type) {
		case history.TextBlock:
			text = b.Text
		case history.ThinkingBlock:
			text = fmt.Sprintf("```Thinking:\n%s\n```", wrapWords(b.Thinking, thinkingWrapWords))
		case history.ToolCallBlock:
			continue
		}

		a.logger.Info().Str("text", text).Msg("Agent planning next step")
		a.emit(events.EventAgentThinking, map[string]interface{}{"text": text})
	}
}

// addToolCallResult appends the result turn and publishes the matching event.
func (a *Agent) addToolCallResult(call history.ToolCallBlock, result string) error {
	if err := a.ledger.AddToolCallResult(call, result); err != nil {
		return err
	}
	a.emit(events.EventToolResult, map[string]interface{}{
		"tool_call_id": call.ID,
		"tool_name":    call.Name,
		"result":       result,
	})
	return nil
}

// addSyntheticAssistantTurn appends a plain-text assistant turn so the next
// turn belongs to the user, and publishes it as a response event (marked
// interrupted when the flag is set).
func (a *Agent) addSyntheticAssistantTurn(text string) {
	a.ledger.AddAssistantTurn([]history.ContentBlock{history.TextBlock{Text: text}})

	eventType := events.EventAgentResponse
	if a.interrupted.Load() {
		eventType = events.EventAgentResponseInterrupted
	}
	a.emit(eventType, map[string]interface{}{"text": text})
}

func (a *Agent) emit(eventType events.EventType, content map[string]interface{}) {
	a.queue.Put(events.New(eventType, content))
}

// wrapWords folds text at n words per line.
func wrapWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(words); i += n {
		end := i + n
		if end > len(words) {
			end = len(words)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Join(words[i:end], " "))
	}
	return b.String()
}
