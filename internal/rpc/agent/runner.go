// Package agent exposes the orchestration loop over the daemon's streaming
// transports.
package agent

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
	"github.com/R2i2Labs/fin-agent-ui/internal/store"
)

const (
	defaultAgentID        = "financial_agent"
	conversationNameLimit = 30
)

var errEmptyQuery = errors.New("query must not be empty")

// ConversationStore is the slice of the store the runner needs to set up
// conversations. Satisfied by *store.Store.
type ConversationStore interface {
	CreateConversation(ctx context.Context, name, agentID string) (int64, error)
	MessagesForModel(ctx context.Context, conversationID int64) ([]llm.Item, error)
}

var _ ConversationStore = (*store.Store)(nil)

// Runner executes a query and yields streamed events.
type Runner interface {
	Run(ctx context.Context, req rpc.QueryRequest) (<-chan rpc.QueryEvent, error)
}

// QueryRunner bridges the agent core to RPC events.
type QueryRunner struct {
	Agent    *agent.Agent
	Sessions *agent.Sessions
	Store    ConversationStore
	Logger   *zap.Logger
}

// Prepare resolves the session a request targets, creating and naming a new
// conversation when the request carries no conversation id. Fresh sessions
// for existing conversations are hydrated from persisted history.
func (r *QueryRunner) Prepare(ctx context.Context, req *rpc.QueryRequest) (*agent.Session, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errEmptyQuery
	}
	if req.AgentID == "" {
		req.AgentID = defaultAgentID
	}

	if req.ConversationID == 0 && r.Store != nil {
		id, err := r.Store.CreateConversation(ctx, conversationName(req.Query), req.AgentID)
		if err != nil {
			return nil, err
		}
		req.ConversationID = id
		r.logf("conversation created", zap.Int64("conversation_id", id), zap.String("agent_id", req.AgentID))
	}

	var sess *agent.Session
	if r.Sessions != nil {
		sess = r.Sessions.Get(req.ConversationID)
	} else {
		sess = agent.NewSession(req.ConversationID)
	}

	if sess.Empty() && r.Store != nil && req.ConversationID > 0 {
		items, err := r.Store.MessagesForModel(ctx, req.ConversationID)
		if err != nil {
			r.logf("failed to hydrate session", zap.Int64("conversation_id", req.ConversationID), zap.Error(err))
		} else {
			sess.Hydrate(items)
		}
	}
	return sess, nil
}

// Run executes the query in the background and emits wire events as the
// loop progresses. The channel closes after the terminal event.
func (r *QueryRunner) Run(ctx context.Context, req rpc.QueryRequest) (<-chan rpc.QueryEvent, error) {
	out := make(chan rpc.QueryEvent, 16)
	go func() {
		defer close(out)

		sess, err := r.Prepare(ctx, &req)
		if err != nil {
			out <- rpc.QueryEvent{Type: "error", ConversationID: req.ConversationID, Error: err.Error(), Done: true}
			return
		}

		res := r.Agent.Query(ctx, sess, req.Query, func(ev agent.Event) {
			switch ev.Type {
			case agent.EventCompleted, agent.EventError:
				// the terminal event is built from the returned result
			default:
				out <- eventToWire(ev)
			}
		})

		terminal := rpc.QueryEvent{
			Type:           "completed",
			ConversationID: res.ConversationID,
			Response:       responseFromResult(res),
			Done:           true,
		}
		if res.Failed {
			terminal.Type = "error"
			terminal.Error = res.Response
		}
		out <- terminal
	}()
	return out, nil
}

// ResponseFromResult converts a loop result into the blocking wire envelope.
func ResponseFromResult(res agent.Result) rpc.QueryResponse {
	return *responseFromResult(res)
}

func responseFromResult(res agent.Result) *rpc.QueryResponse {
	out := &rpc.QueryResponse{
		Response:       res.Response,
		ConversationID: res.ConversationID,
		Usage:          res.Usage,
		Rounds:         res.Rounds,
		BoundExceeded:  res.BoundExceeded,
	}
	for _, tr := range res.ToolResults {
		out.ToolResults = append(out.ToolResults, rpc.ToolResult{
			Tool:      tr.Tool,
			CallID:    tr.CallID,
			Arguments: tr.Arguments,
			Result:    tr.Result,
		})
	}
	return out
}

func eventToWire(ev agent.Event) rpc.QueryEvent {
	return rpc.QueryEvent{
		Type:           string(ev.Type),
		ConversationID: ev.ConversationID,
		Text:           ev.Text,
		CallID:         ev.CallID,
		Tool:           ev.Tool,
		Arguments:      ev.Arguments,
		Status:         ev.Status,
		Summary:        ev.Summary,
	}
}

func conversationName(query string) string {
	query = strings.TrimSpace(query)
	if len(query) > conversationNameLimit {
		return query[:conversationNameLimit] + "..."
	}
	return query
}

func (r *QueryRunner) logf(msg string, fields ...zap.Field) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Info(msg, fields...)
}
