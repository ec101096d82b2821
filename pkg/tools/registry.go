package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harun/nalar/pkg/history"
	"github.com/harun/nalar/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Tool is one capability the model can invoke. Invoke receives the ledger
// read-only for context; all ledger mutation stays with the turn loop.
// Implementations convert their own failures into descriptive result strings
// where they can; errors returned here are also fed back to the model as text.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Invoke(ctx context.Context, input map[string]interface{}, ledger *history.Ledger) (string, error)
}

// Finisher is implemented by tools that can end the run with a final answer,
// such as ReturnControlTool. The registry surfaces their state to the loop.
type Finisher interface {
	ShouldStop() bool
	FinalAnswer() string
	Reset()
}

// Registry validates the tool set once at construction and dispatches single
// invocations for the loop.
type Registry struct {
	tools   []Tool
	byName  map[string]Tool
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// NewRegistry builds a registry from the given tools. Duplicate names are a
// configuration error detected here and nowhere else.
func NewRegistry(logger zerolog.Logger, toolSet ...Tool) (*Registry, error) {
	names := make([]string, 0, len(toolSet))
	for _, tool := range toolSet {
		names = append(names, tool.Name())
	}
	sort.Strings(names)
	for i := 0; i+1 < len(names); i++ {
		if names[i] == names[i+1] {
			return nil, fmt.Errorf("tool %q is duplicated", names[i])
		}
	}

	r := &Registry{
		tools:   toolSet,
		byName:  make(map[string]Tool, len(toolSet)),
		schemas: make(map[string]*gojsonschema.Schema, len(toolSet)),
		logger:  logger,
	}

	for _, tool := range toolSet {
		r.byName[tool.Name()] = tool

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.InputSchema()))
		if err != nil {
			return nil, fmt.Errorf("tool %q input schema: %w", tool.Name(), err)
		}
		r.schemas[tool.Name()] = schema

		logger.Debug().Str("tool", tool.Name()).Msg("Tool registered")
	}

	return r, nil
}

// Schemas projects the tool set for the model client, in registration order.
func (r *Registry) Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, llm.ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunTool executes one invocation and always returns a result string. An
// unknown tool, an invalid input or a tool failure is described in the result
// so the model can recover.
func (r *Registry) RunTool(ctx context.Context, call history.ToolCallBlock, ledger *history.Ledger) string {
	tool, ok := r.byName[call.Name]
	if !ok {
		r.logger.Warn().Str("tool", call.Name).Msg("Unknown tool invoked")
		return fmt.Sprintf("Tool %q does not exist. Available tools: %s",
			call.Name, strings.Join(r.Names(), ", "))
	}

	if err := r.validateInput(call); err != nil {
		r.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool input rejected")
		return fmt.Sprintf("Invalid input for tool %q: %v", call.Name, err)
	}

	start := time.Now()
	result, err := tool.Invoke(ctx, call.Input, ledger)
	if err != nil {
		r.logger.Warn().
			Str("tool", call.Name).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Tool execution failed")
		return fmt.Sprintf("Tool %q failed: %v", call.Name, err)
	}

	r.logger.Debug().
		Str("tool", call.Name).
		Dur("duration", time.Since(start)).
		Msg("Tool execution completed")
	return result
}

func (r *Registry) validateInput(call history.ToolCallBlock) error {
	schema := r.schemas[call.Name]
	if schema == nil {
		return nil
	}

	input := call.Input
	if input == nil {
		input = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			msgs = append(msgs, resultErr.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// ShouldStop reports whether any finishing tool has signalled the end of the
// overall task.
func (r *Registry) ShouldStop() bool {
	for _, tool := range r.tools {
		if f, ok := tool.(Finisher); ok && f.ShouldStop() {
			return true
		}
	}
	return false
}

// FinalAnswer returns the message attached to the stop signal, if any.
func (r *Registry) FinalAnswer() string {
	for _, tool := range r.tools {
		if f, ok := tool.(Finisher); ok && f.ShouldStop() {
			return f.FinalAnswer()
		}
	}
	return ""
}

// Reset clears accumulated stop state between runs on the same agent.
func (r *Registry) Reset() {
	for _, tool := range r.tools {
		if f, ok := tool.(Finisher); ok {
			f.Reset()
		}
	}
}
