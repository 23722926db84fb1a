package tools

import (
	"encoding/json"

	"github.com/R2i2Labs/fin-agent-ui/internal/sandbox"
)

// Result is one tool invocation's outcome in the two renderings callers
// need: Payload is the full result exposed through the HTTP API, Echo the
// compact JSON handed back to the model as the function call output and
// persisted with the conversation. For most tools the two are the same
// document; script runs echo only the execution outcome, not the script
// source or artifact paths.
type Result struct {
	Tool    string         `json:"tool"`
	CallID  string         `json:"call_id,omitempty"`
	Payload map[string]any `json:"payload"`
	Echo    string         `json:"-"`
}

// Status returns the payload's status field, or "unknown" when absent.
func (r Result) Status() string {
	if s, ok := r.Payload["status"].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

func newResult(tool string, payload map[string]any) Result {
	return Result{Tool: tool, Payload: payload, Echo: marshalEcho(payload)}
}

func errorResult(tool, message string) Result {
	return newResult(tool, map[string]any{"status": "error", "message": message})
}

func marshalEcho(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return `{"status":"error","message":"tool result could not be serialized"}`
	}
	return string(b)
}

// scriptEcho renders the bounded model echo for a script run. Success hands
// the model the script's stdout; failure hands it a one-line summary instead
// of the raw stderr dump so a long traceback cannot flood the context.
func scriptEcho(exec sandbox.Execution) string {
	if exec.Status == sandbox.StatusSuccess {
		return marshalEcho(map[string]any{"status": "executed", "message": exec.Output})
	}
	summary := sandbox.SummarizeFailure(exec.Output)
	if summary == "" {
		summary = sandbox.SummarizeFailure(exec.Message)
	}
	if summary == "" {
		summary = "Script execution failed."
	}
	return marshalEcho(map[string]any{"status": "error", "message": summary})
}
