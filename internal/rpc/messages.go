// Package rpc defines the wire types shared by the daemon's transports.
package rpc

import (
	"encoding/json"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// QueryRequest starts one agent query. ConversationID zero asks the daemon
// to create a new conversation named after the query.
type QueryRequest struct {
	AgentID        string `json:"agent_id,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
}

// ToolResult is one dispatched tool call with its full payload, as exposed
// to API callers.
type ToolResult struct {
	Tool      string          `json:"tool"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    map[string]any  `json:"result"`
}

// QueryResponse is the blocking response envelope for a completed query.
type QueryResponse struct {
	Response       string       `json:"response"`
	ToolResults    []ToolResult `json:"tool_results,omitempty"`
	ConversationID int64        `json:"conversation_id"`
	Usage          *llm.Usage   `json:"usage,omitempty"`
	Rounds         int          `json:"rounds,omitempty"`
	BoundExceeded  bool         `json:"bound_exceeded,omitempty"`
}

// QueryEvent streams back query progress from the daemon.
type QueryEvent struct {
	Type           string         `json:"type"` // created|text.delta|tool.start|tool.result|completed|error
	ConversationID int64          `json:"conversation_id,omitempty"`
	Text           string         `json:"text,omitempty"`
	CallID         string         `json:"call_id,omitempty"`
	Tool           string         `json:"tool,omitempty"`
	Arguments      string         `json:"arguments,omitempty"`
	Status         string         `json:"status,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Response       *QueryResponse `json:"response,omitempty"`
	Error          string         `json:"error,omitempty"`
	Done           bool           `json:"done,omitempty"`
}

// QueryStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry the Run request; later messages can cancel.
type QueryStreamRequest struct {
	Run    *QueryRequest `json:"run,omitempty"`
	Cancel bool          `json:"cancel,omitempty"`
}
