package events

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// EventType identifies the kind of state transition an event records.
type EventType string

const (
	EventUserMessage              EventType = "user_message"
	EventToolCall                 EventType = "tool_call"
	EventToolResult               EventType = "tool_result"
	EventAgentThinking            EventType = "agent_thinking"
	EventAgentResponse            EventType = "agent_response"
	EventAgentResponseInterrupted EventType = "agent_response_interrupted"
)

// Event is one observable state transition of an agent run. Events are
// immutable once emitted; the queue owns them from emission onward.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Content   map[string]interface{} `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType EventType, content map[string]interface{}) Event {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the OS entropy source is broken.
		id = "evt-" + time.Now().Format("20060102150405.000000000")
	}
	return Event{
		ID:        id,
		Type:      eventType,
		Content:   content,
		Timestamp: time.Now(),
	}
}
