package agent

import (
	"encoding/json"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// ToolInvocation is one dispatched tool call with its rich result, as
// returned to the outer caller. The model itself only saw the bounded echo.
type ToolInvocation struct {
	Tool      string          `json:"tool"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    map[string]any  `json:"result"`
}

// Result is the outcome of one query through the orchestration loop.
type Result struct {
	Response       string           `json:"response"`
	ToolResults    []ToolInvocation `json:"tool_results,omitempty"`
	ConversationID int64            `json:"conversation_id"`
	Usage          *llm.Usage       `json:"usage,omitempty"`
	Rounds         int              `json:"rounds"`
	BoundExceeded  bool             `json:"bound_exceeded,omitempty"`
	Failed         bool             `json:"failed,omitempty"`
}

// EventType enumerates loop progress events forwarded to streaming
// transports.
type EventType string

const (
	EventCreated    EventType = "created"
	EventTextDelta  EventType = "text.delta"
	EventToolStart  EventType = "tool.start"
	EventToolResult EventType = "tool.result"
	EventCompleted  EventType = "completed"
	EventError      EventType = "error"
)

// Event is one loop progress notification. Completed events carry the final
// Result; tool events carry the call id, tool name and, for results, the
// status plus the bounded summary the model received.
type Event struct {
	Type           EventType
	ConversationID int64
	Text           string
	CallID         string
	Tool           string
	Arguments      string
	Status         string
	Summary        string
	Result         *Result
}

// Sink receives loop events. A nil sink disables event reporting.
type Sink func(Event)
