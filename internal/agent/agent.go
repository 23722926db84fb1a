// Package agent drives the tool-calling orchestration loop: it sends the
// conversation to the model, dispatches any tool calls the model requests,
// feeds the results back and repeats until the model answers in plain text
// or the round bound is reached.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
	"github.com/R2i2Labs/fin-agent-ui/internal/observability"
	"github.com/R2i2Labs/fin-agent-ui/internal/store"
	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
)

const (
	apologyInitial = "I'm having trouble processing your request. Please try again."
	apologyTool    = "I'm having trouble processing the tool response. Please try again."
	boundMessage   = "I wasn't able to finish the analysis within the allowed number of tool rounds. Please try a more specific request."

	defaultMaxToolRounds = 5
)

// Store persists conversation turns. Satisfied by *store.Store; a nil store
// disables persistence (ad hoc sessions).
type Store interface {
	SaveMessage(ctx context.Context, conversationID int64, item llm.Item, extraData string) (int64, error)
}

var _ Store = (*store.Store)(nil)

// Agent owns the orchestration loop. It holds no conversation state of its
// own; callers pass the session each query operates on.
type Agent struct {
	router       *Router
	dispatcher   *tools.Dispatcher
	store        Store
	cfg          config.AgentConfig
	metrics      *observability.Metrics
	logger       *zap.Logger
	instructions string
}

// New wires the orchestration loop. store may be nil for unpersisted
// sessions.
func New(router *Router, dispatcher *tools.Dispatcher, st Store, cfg config.AgentConfig,
	metrics *observability.Metrics, logger *zap.Logger) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		router:       router,
		dispatcher:   dispatcher,
		store:        st,
		cfg:          cfg,
		metrics:      metrics,
		logger:       logger,
		instructions: SystemPrompt(),
	}
}

// Query runs one user query through the loop. Every failure path resolves to
// a conversational response inside the Result; the loop never surfaces raw
// faults. Events are forwarded to sink when non-nil.
func (a *Agent) Query(ctx context.Context, sess *Session, query string, sink Sink) Result {
	sess.run.Lock()
	defer sess.run.Unlock()

	started := time.Now()
	emit := func(ev Event) {
		if sink != nil {
			ev.ConversationID = sess.ConversationID()
			sink(ev)
		}
	}
	emit(Event{Type: EventCreated})

	a.record(ctx, sess, llm.UserMessage(query), "")

	res := Result{ConversationID: sess.ConversationID()}
	lastText := ""

	for round := 1; round <= a.cfg.MaxToolRounds; round++ {
		res.Rounds = round

		resp, err := a.exchange(ctx, sess, emit)
		if err != nil {
			apology := apologyInitial
			if round > 1 {
				apology = apologyTool
			}
			a.logger.Error("model exchange failed",
				zap.Int64("conversation_id", sess.ConversationID()),
				zap.Int("round", round), zap.Error(err))
			a.record(ctx, sess, llm.AssistantMessage(apology), "")
			res.Response = apology
			res.Failed = true
			emit(Event{Type: EventError, Text: apology})
			a.metrics.RecordQuery("financial_agent", "error", time.Since(started))
			return res
		}

		res.Usage = addUsage(res.Usage, resp.Usage)
		if resp.Usage != nil {
			a.metrics.AddModelTokens(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}
		if resp.OutputText != "" {
			lastText = resp.OutputText
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			a.record(ctx, sess, llm.AssistantMessage(resp.OutputText), usageJSON(resp.Usage))
			res.Response = resp.OutputText
			emit(Event{Type: EventCompleted, Result: &res})
			a.metrics.RecordQuery("financial_agent", "success", time.Since(started))
			return res
		}

		// Assistant commentary accompanying a tool batch is a turn of its
		// own, recorded before the calls it introduces.
		if resp.OutputText != "" {
			a.record(ctx, sess, llm.AssistantMessage(resp.OutputText), "")
		}

		for _, call := range calls {
			if ctx.Err() != nil {
				a.logger.Warn("query cancelled mid-batch",
					zap.Int64("conversation_id", sess.ConversationID()), zap.Int("round", round))
				res.Response = lastText
				res.Failed = true
				emit(Event{Type: EventError, Text: "query cancelled"})
				a.metrics.RecordQuery("financial_agent", "cancelled", time.Since(started))
				return res
			}

			a.record(ctx, sess, call, "")
			emit(Event{Type: EventToolStart, CallID: call.CallID, Tool: call.Name, Arguments: call.Arguments})

			tr := a.dispatcher.HandleCall(ctx, sess.Tools(), call.Name, call.CallID, call.Arguments)
			a.record(ctx, sess, llm.FunctionCallOutput(call.CallID, tr.Echo), "")
			emit(Event{Type: EventToolResult, CallID: call.CallID, Tool: tr.Tool,
				Status: tr.Status(), Summary: tr.Echo})

			res.ToolResults = append(res.ToolResults, ToolInvocation{
				Tool:      tr.Tool,
				CallID:    call.CallID,
				Arguments: rawArguments(call.Arguments),
				Result:    tr.Payload,
			})
		}
	}

	res.BoundExceeded = true
	if lastText == "" {
		lastText = boundMessage
	}
	res.Response = lastText
	a.record(ctx, sess, llm.AssistantMessage(lastText), "")
	a.logger.Warn("tool round limit reached",
		zap.Int64("conversation_id", sess.ConversationID()),
		zap.Int("max_tool_rounds", a.cfg.MaxToolRounds))
	emit(Event{Type: EventCompleted, Result: &res})
	a.metrics.RecordQuery("financial_agent", "bound_exceeded", time.Since(started))
	return res
}

// exchange performs one send-to-model/interpret cycle. Streamed exchanges
// are folded by the accumulator with text deltas forwarded to the sink.
func (a *Agent) exchange(ctx context.Context, sess *Session, emit func(Event)) (*llm.Response, error) {
	provider, route, err := a.router.Resolve(RoleChat)
	if err != nil {
		return nil, err
	}

	req := llm.Request{
		Model:           route.Model,
		Input:           sess.Items(),
		Instructions:    a.instructions,
		Tools:           tools.Defs(),
		ToolChoice:      "auto",
		MaxOutputTokens: route.MaxTokens,
		Temperature:     route.Temperature,
		Stream:          a.cfg.Stream,
	}
	a.metrics.RecordModelRequest(provider.Name(), route.Model)

	if a.cfg.Stream {
		events, err := provider.Stream(ctx, req)
		if err != nil {
			a.metrics.RecordModelFailure(provider.Name(), route.Model)
			return nil, err
		}
		resp, err := llm.Drain(events, func(ev llm.Event) {
			if ev.Type == llm.EventTextDelta {
				emit(Event{Type: EventTextDelta, Text: ev.Delta})
			}
		})
		if err != nil {
			a.metrics.RecordModelFailure(provider.Name(), route.Model)
			return nil, err
		}
		return resp, nil
	}

	resp, err := provider.Respond(ctx, req)
	if err != nil {
		a.metrics.RecordModelFailure(provider.Name(), route.Model)
		return nil, err
	}
	return resp, nil
}

// record commits a turn: appended to the session unconditionally, persisted
// when the session belongs to a stored conversation. Persistence failures
// are logged, not fatal; the in-memory conversation stays coherent.
func (a *Agent) record(ctx context.Context, sess *Session, item llm.Item, extraData string) {
	sess.Append(item)
	if a.store == nil || sess.ConversationID() <= 0 {
		return
	}
	if _, err := a.store.SaveMessage(ctx, sess.ConversationID(), item, extraData); err != nil {
		a.logger.Warn("failed to persist conversation turn",
			zap.Int64("conversation_id", sess.ConversationID()),
			zap.String("type", string(item.Type)), zap.Error(err))
	}
}

func addUsage(total, delta *llm.Usage) *llm.Usage {
	if delta == nil {
		return total
	}
	if total == nil {
		u := *delta
		return &u
	}
	total.InputTokens += delta.InputTokens
	total.OutputTokens += delta.OutputTokens
	total.TotalTokens += delta.TotalTokens
	return total
}

func usageJSON(usage *llm.Usage) string {
	if usage == nil {
		return ""
	}
	b, err := json.Marshal(usage)
	if err != nil {
		return ""
	}
	return string(b)
}

func rawArguments(arguments string) json.RawMessage {
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return nil
}
