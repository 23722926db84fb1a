package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm/mock"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
	"github.com/R2i2Labs/fin-agent-ui/internal/sandbox"
	"github.com/R2i2Labs/fin-agent-ui/internal/script"
	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
)

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, command string, args ...string) (sandbox.RunResult, error) {
	return sandbox.RunResult{}, nil
}

// fakeStore records created conversations and serves canned history.
type fakeStore struct {
	created []string
	history map[int64][]llm.Item
	nextID  int64
}

func (s *fakeStore) CreateConversation(ctx context.Context, name, agentID string) (int64, error) {
	s.created = append(s.created, name)
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) MessagesForModel(ctx context.Context, conversationID int64) ([]llm.Item, error) {
	return s.history[conversationID], nil
}

func newLoopAgent(t *testing.T, chat llm.Provider) *agent.Agent {
	t.Helper()
	root := t.TempDir()
	datasets := dataset.NewStore(filepath.Join(root, "datasets"), zap.NewNop())
	t.Cleanup(datasets.Close)

	synth := script.NewSynthesizer(&mock.Provider{},
		llm.ModelRoute{Name: "script", Provider: "mock", Model: "script-model"}, 0, nil)
	executor := sandbox.NewExecutor(sandbox.Options{}, execRunner{}, nil)
	dispatcher := tools.NewDispatcher(datasets, synth, executor,
		filepath.Join(root, "generated_scripts"), nil, zap.NewNop())

	registry := llm.NewRegistry()
	registry.RegisterProvider("mock", chat)
	registry.RegisterModel("gpt-chat", llm.ModelRoute{Provider: "mock", Model: "chat-model"}, true)
	router := agent.NewRouter(registry, config.StrategyConfig{ChatModel: "gpt-chat"})

	return agent.New(router, dispatcher, nil, config.AgentConfig{}, nil, zap.NewNop())
}

func answeringProvider(text string) *mock.Provider {
	return &mock.Provider{
		NameValue: "mock",
		RespondFn: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{
				OutputText: text,
				Output:     []llm.Item{llm.AssistantMessage(text)},
			}, nil
		},
	}
}

func collect(t *testing.T, ch <-chan rpc.QueryEvent) []rpc.QueryEvent {
	t.Helper()
	var events []rpc.QueryEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	return events
}

func TestQueryRunnerStreamsTerminalEvent(t *testing.T) {
	runner := &QueryRunner{
		Agent:    newLoopAgent(t, answeringProvider("All set.")),
		Sessions: agent.NewSessions(),
	}

	ch, err := runner.Run(context.Background(), rpc.QueryRequest{Query: "hello"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Equal(t, "created", events[0].Type)

	last := events[len(events)-1]
	require.Equal(t, "completed", last.Type)
	require.True(t, last.Done)
	require.NotNil(t, last.Response)
	require.Equal(t, "All set.", last.Response.Response)
}

func TestQueryRunnerCreatesAndNamesConversation(t *testing.T) {
	st := &fakeStore{}
	runner := &QueryRunner{
		Agent:    newLoopAgent(t, answeringProvider("done")),
		Sessions: agent.NewSessions(),
		Store:    st,
	}

	query := "please compute the average closing price for every dataset"
	ch, err := runner.Run(context.Background(), rpc.QueryRequest{Query: query})
	require.NoError(t, err)

	events := collect(t, ch)
	last := events[len(events)-1]
	require.Equal(t, int64(1), last.ConversationID)

	require.Len(t, st.created, 1)
	require.Equal(t, query[:30]+"...", st.created[0])
}

func TestQueryRunnerKeepsShortConversationNames(t *testing.T) {
	require.Equal(t, "short query", conversationName("short query"))
	require.Equal(t, strings.Repeat("x", 30)+"...", conversationName(strings.Repeat("x", 31)))
	require.Equal(t, strings.Repeat("x", 30), conversationName(strings.Repeat("x", 30)))
}

func TestQueryRunnerHydratesFreshSession(t *testing.T) {
	chat := answeringProvider("continuing")
	st := &fakeStore{history: map[int64][]llm.Item{
		5: {llm.UserMessage("earlier question"), llm.AssistantMessage("earlier answer")},
	}}
	runner := &QueryRunner{
		Agent:    newLoopAgent(t, chat),
		Sessions: agent.NewSessions(),
		Store:    st,
	}

	ch, err := runner.Run(context.Background(), rpc.QueryRequest{ConversationID: 5, Query: "and now?"})
	require.NoError(t, err)
	collect(t, ch)

	// The exchange saw the persisted history ahead of the new turn.
	require.Len(t, chat.Requests, 1)
	input := chat.Requests[0].Input
	require.Len(t, input, 3)
	require.Equal(t, "earlier question", input[0].Content)
	require.Equal(t, "and now?", input[2].Content)
}

func TestPrepareReusesLiveSession(t *testing.T) {
	sessions := agent.NewSessions()
	live := sessions.Get(9)
	live.Append(llm.UserMessage("in flight"))

	runner := &QueryRunner{
		Sessions: sessions,
		Store: &fakeStore{history: map[int64][]llm.Item{
			9: {llm.UserMessage("stale persisted turn")},
		}},
	}

	req := rpc.QueryRequest{ConversationID: 9, Query: "q"}
	sess, err := runner.Prepare(context.Background(), &req)
	require.NoError(t, err)
	require.Same(t, live, sess)

	items := sess.Items()
	require.Len(t, items, 1)
	require.Equal(t, "in flight", items[0].Content)
	require.Equal(t, defaultAgentID, req.AgentID)
}

func TestQueryRunnerRejectsEmptyQuery(t *testing.T) {
	runner := &QueryRunner{Agent: newLoopAgent(t, answeringProvider("unused"))}

	ch, err := runner.Run(context.Background(), rpc.QueryRequest{Query: "   "})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	require.Equal(t, "error", events[0].Type)
	require.True(t, events[0].Done)
	require.Contains(t, events[0].Error, "query")
}

func TestQueryRunnerReportsModelFailure(t *testing.T) {
	chat := &mock.Provider{
		NameValue: "mock",
		RespondFn: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return nil, errors.New("upstream down")
		},
	}
	runner := &QueryRunner{Agent: newLoopAgent(t, chat), Sessions: agent.NewSessions()}

	ch, err := runner.Run(context.Background(), rpc.QueryRequest{Query: "hi"})
	require.NoError(t, err)

	events := collect(t, ch)
	last := events[len(events)-1]
	require.Equal(t, "error", last.Type)
	require.True(t, last.Done)
	require.NotNil(t, last.Response)
	require.Contains(t, last.Response.Response, "trouble processing your request")
}
