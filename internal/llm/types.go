package llm

import (
	"context"
	"encoding/json"
)

// Role is the message role used in model exchanges.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ItemType discriminates conversation items.
type ItemType string

const (
	ItemMessage            ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
)

// Item is a single turn in the model's ordered input or output list: a plain
// message, a model-requested function call, or the output produced for one.
type Item struct {
	Type      ItemType `json:"type"`
	Role      Role     `json:"role,omitempty"`
	Content   string   `json:"content,omitempty"`
	ID        string   `json:"id,omitempty"`
	CallID    string   `json:"call_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Arguments string   `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// UserMessage builds a user message item.
func UserMessage(text string) Item {
	return Item{Type: ItemMessage, Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message item.
func AssistantMessage(text string) Item {
	return Item{Type: ItemMessage, Role: RoleAssistant, Content: text}
}

// FunctionCallOutput builds the result item for a prior function call.
func FunctionCallOutput(callID, output string) Item {
	return Item{Type: ItemFunctionCallOutput, CallID: callID, Output: output}
}

// ToolDef describes one callable tool advertised to the model.
type ToolDef struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is the input for a model exchange.
type Request struct {
	Model           string
	Input           []Item
	Instructions    string
	Tools           []ToolDef
	ToolChoice      string
	MaxOutputTokens int
	Temperature     float64
	Stream          bool
}

// Usage captures token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is a completed model exchange envelope.
type Response struct {
	ID           string
	Model        string
	OutputText   string
	Output       []Item
	Usage        *Usage
	ProviderName string
}

// FunctionCalls returns the function-call items of the response in order.
func (r *Response) FunctionCalls() []Item {
	if r == nil {
		return nil
	}
	calls := make([]Item, 0, len(r.Output))
	for _, item := range r.Output {
		if item.Type == ItemFunctionCall {
			calls = append(calls, item)
		}
	}
	return calls
}

// EventType enumerates stream events emitted during a streamed exchange.
type EventType string

const (
	EventCreated        EventType = "response.created"
	EventTextDelta      EventType = "response.output_text.delta"
	EventTextDone       EventType = "response.output_text.done"
	EventItemAdded      EventType = "response.output_item.added"
	EventArgumentsDelta EventType = "response.function_call_arguments.delta"
	EventArgumentsDone  EventType = "response.function_call_arguments.done"
	EventCompleted      EventType = "response.completed"
	EventFailed         EventType = "response.failed"
)

// Event is one element of a streamed exchange. ItemID correlates argument
// deltas with the function-call item they extend. Text carries the final
// payload on *.done events. Response is set on the terminal completed event.
type Event struct {
	Type        EventType
	Delta       string
	Text        string
	ItemID      string
	OutputIndex int
	Item        *Item
	Response    *Response
	Err         error
}

// Provider defines the contract for model providers.
type Provider interface {
	Name() string
	Respond(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
