package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrContractViolation marks ledger misuse that the run cannot recover from,
// such as appending a tool result with no matching call.
var ErrContractViolation = errors.New("history contract violation")

// TurnKind identifies what a turn carries.
type TurnKind string

const (
	TurnUser       TurnKind = "user"
	TurnAssistant  TurnKind = "assistant"
	TurnToolResult TurnKind = "tool_result"
)

// Turn is one appended unit of conversation: a user prompt, an assistant
// response, or a tool result correlated to an earlier call.
type Turn struct {
	Kind        TurnKind       `json:"kind"`
	Text        string         `json:"text,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	ToolCallID  string         `json:"tool_call_id,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
}

// Ledger is the ordered conversation log for one run. The turn loop owns all
// mutation; tools may read it through the accessor methods.
type Ledger struct {
	mu          sync.RWMutex
	turns       []Turn
	tokenBudget int
	logger      zerolog.Logger
}

// DefaultTokenBudget bounds the projected context when no budget is given.
const DefaultTokenBudget = 120000

// New creates an empty ledger with the given token budget for truncation.
func New(tokenBudget int, logger zerolog.Logger) *Ledger {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Ledger{
		tokenBudget: tokenBudget,
		logger:      logger,
	}
}

// AddUserPrompt appends a user turn. Attachments are carried opaquely.
func (l *Ledger) AddUserPrompt(text string, attachments []Attachment) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = append(l.turns, Turn{
		Kind:        TurnUser,
		Text:        text,
		Attachments: attachments,
	})
}

// AddAssistantTurn appends the raw model output as one turn, preserving block
// order and type exactly as returned.
func (l *Ledger) AddAssistantTurn(blocks []ContentBlock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = append(l.turns, Turn{
		Kind:   TurnAssistant,
		Blocks: blocks,
	})
}

// AddToolCallResult appends a tool-result turn correlated to call by ID. The
// call must still be pending; anything else is a contract violation.
func (l *Ledger) AddToolCallResult(call ToolCallBlock, result string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := false
	for _, pending := range l.pendingToolCallsLocked() {
		if pending.ID == call.ID {
			matched = true
			break
		}
	}
	if !matched {
		return fmt.Errorf("%w: tool result for unknown call %q (%s)", ErrContractViolation, call.ID, call.Name)
	}

	l.turns = append(l.turns, Turn{
		Kind:       TurnToolResult,
		Text:       result,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	})
	return nil
}

// PendingToolCalls returns the tool invocations of the most recent assistant
// turn that have no matching tool-result turn yet. Under correct operation
// this is zero or one element; the loop rejects anything larger.
func (l *Ledger) PendingToolCalls() []ToolCallBlock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pendingToolCallsLocked()
}

func (l *Ledger) pendingToolCallsLocked() []ToolCallBlock {
	lastAssistant := -1
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Kind == TurnAssistant {
			lastAssistant = i
			break
		}
	}
	if lastAssistant < 0 {
		return nil
	}

	resolved := make(map[string]bool)
	for _, turn := range l.turns[lastAssistant+1:] {
		if turn.Kind == TurnToolResult {
			resolved[turn.ToolCallID] = true
		}
	}

	var pending []ToolCallBlock
	for _, block := range l.turns[lastAssistant].Blocks {
		if call, ok := block.(ToolCallBlock); ok && !resolved[call.ID] {
			pending = append(pending, call)
		}
	}
	return pending
}

// Truncate drops the oldest complete exchanges until the ledger fits the
// token budget or only the latest exchange remains. An exchange is a user
// turn together with everything up to the next user turn, so truncation never
// splits a tool call from its result and the projection always starts with a
// user turn. Calling it twice without new turns is a no-op the second time.
func (l *Ledger) Truncate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.turns)
	for l.countTokensLocked() > l.tokenBudget {
		next := l.secondExchangeStartLocked()
		if next < 0 {
			break
		}
		l.turns = l.turns[next:]
	}

	if dropped := before - len(l.turns); dropped > 0 {
		l.logger.Info().
			Int("dropped_turns", dropped).
			Int("remaining_turns", len(l.turns)).
			Int("token_estimate", l.countTokensLocked()).
			Msg("Ledger truncated")
	}
}

// secondExchangeStartLocked returns the index of the second user turn, or -1
// when at most one exchange remains.
func (l *Ledger) secondExchangeStartLocked() int {
	seenFirst := false
	for i, turn := range l.turns {
		if turn.Kind != TurnUser {
			continue
		}
		if seenFirst {
			return i
		}
		seenFirst = true
	}
	return -1
}

// CountTokens estimates the token footprint of the ledger. The estimate is
// provider-agnostic (roughly one token per four characters) and used only for
// truncation decisions and logging.
func (l *Ledger) CountTokens() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.countTokensLocked()
}

func (l *Ledger) countTokensLocked() int {
	chars := 0
	for _, turn := range l.turns {
		chars += len(turn.Text)
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case TextBlock:
				chars += len(b.Text)
			case ThinkingBlock:
				chars += len(b.Thinking)
			case ToolCallBlock:
				chars += len(b.Name)
				if raw, err := json.Marshal(b.Input); err == nil {
					chars += len(raw)
				}
			}
		}
	}
	return (chars + 3) / 4
}

// MessagesForLLM materializes the ledger for the model client. It is a pure
// projection; the returned slice is a copy.
func (l *Ledger) MessagesForLLM() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Clear empties the ledger. Used when a run starts without resume.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}
