package tools

import (
	"context"
	"sync"

	"github.com/harun/nalar/pkg/history"
)

// ReturnControlTool lets the model hand the task back to the user with a
// final answer. Invoking it sets the registry-visible stop signal; the loop
// terminates the run after appending the result.
type ReturnControlTool struct {
	mu          sync.Mutex
	stopped     bool
	finalAnswer string
}

// NewReturnControlTool creates the stop tool.
func NewReturnControlTool() *ReturnControlTool {
	return &ReturnControlTool{}
}

func (t *ReturnControlTool) Name() string {
	return "return_control_to_user"
}

func (t *ReturnControlTool) Description() string {
	return "Return control to the user when the task is finished or when user input is needed. Provide the final answer or the question for the user."
}

func (t *ReturnControlTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"answer": map[string]interface{}{
				"type":        "string",
				"description": "The final answer or message for the user.",
			},
		},
		"required": []string{"answer"},
	}
}

func (t *ReturnControlTool) Invoke(ctx context.Context, input map[string]interface{}, ledger *history.Ledger) (string, error) {
	answer, _ := input["answer"].(string)

	t.mu.Lock()
	t.stopped = true
	t.finalAnswer = answer
	t.mu.Unlock()

	return answer, nil
}

func (t *ReturnControlTool) ShouldStop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *ReturnControlTool) FinalAnswer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalAnswer
}

func (t *ReturnControlTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.finalAnswer = ""
}
