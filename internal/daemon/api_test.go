package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm/mock"
	"github.com/R2i2Labs/fin-agent-ui/internal/observability"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
	agentrpc "github.com/R2i2Labs/fin-agent-ui/internal/rpc/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/sandbox"
	"github.com/R2i2Labs/fin-agent-ui/internal/script"
	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
)

const pricesCSV = "date,close\n2024-01-01,100.5\n2024-01-02,101.0\n2024-01-03,102.5\n2024-01-04,101.5\n"

type sandboxStub struct {
	stdout string
	n      int
}

func (r *sandboxStub) Run(ctx context.Context, dir, command string, args ...string) (sandbox.RunResult, error) {
	r.n++
	if r.n == 3 {
		return sandbox.RunResult{Stdout: r.stdout}, nil
	}
	return sandbox.RunResult{}, nil
}

// newTestServer assembles a server around mock providers without opening a
// conversation store.
func newTestServer(t *testing.T, chat llm.Provider) (*Server, *dataset.Store) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			DatasetsDir: filepath.Join(root, "datasets"),
			ScriptsDir:  filepath.Join(root, "generated_scripts"),
			AssetsDir:   filepath.Join(root, "generated_assets"),
		},
		Server: config.ServerConfig{MetricsEnabled: true},
	}

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	datasets := dataset.NewStore(cfg.Paths.DatasetsDir, logger)
	t.Cleanup(datasets.Close)

	if chat == nil {
		chat = &mock.Provider{NameValue: "mock"}
	}
	scriptProvider := &mock.Provider{
		RespondFn: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{OutputText: "PACKAGES: pandas\nprint('101.5')"}, nil
		},
	}
	synth := script.NewSynthesizer(scriptProvider,
		llm.ModelRoute{Name: "script", Provider: "mock", Model: "script-model"}, 0, nil)
	executor := sandbox.NewExecutor(sandbox.Options{}, &sandboxStub{stdout: "101.5"}, nil)
	dispatcher := tools.NewDispatcher(datasets, synth, executor, cfg.Paths.ScriptsDir, metrics, logger)

	registry := llm.NewRegistry()
	registry.RegisterProvider("mock", chat)
	registry.RegisterModel("gpt-chat", llm.ModelRoute{Provider: "mock", Model: "chat-model"}, true)
	router := agent.NewRouter(registry, config.StrategyConfig{ChatModel: "gpt-chat"})

	sessions := agent.NewSessions()
	core := agent.New(router, dispatcher, nil, config.AgentConfig{}, metrics, logger)
	runner := &agentrpc.QueryRunner{Agent: core, Sessions: sessions, Logger: logger}

	searcher := dataset.NewSearcher(datasets, 0)
	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		datasets:   datasets,
		searcher:   searcher,
		dispatcher: dispatcher,
		sessions:   sessions,
		agent:      core,
		runner:     runner,
	}, datasets
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// Array bodies (the tools catalogue) stay raw; callers decode those
	// themselves from rr.Body.
	var out map[string]any
	raw := bytes.TrimSpace(rr.Body.Bytes())
	if len(raw) > 0 && raw[0] == '{' && rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return rr, out
}

func TestWelcomeAndStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	rr, body := doJSON(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Financial Analysis Agent API", body["message"])

	rr, body = doJSON(t, h, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", body["status"])

	rr, _ = doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUploadListAndSearchDatasets(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	// Empty before any upload.
	rr, body := doJSON(t, h, http.MethodGet, "/datasets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, body["datasets"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "prices.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(pricesCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/file-upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rr, body = doJSON(t, h, http.MethodGet, "/datasets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []any{"prices.csv"}, body["datasets"])

	rr, body = doJSON(t, h, http.MethodGet, "/datasets/search?q=close+price", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)

	rr, _ = doJSON(t, h, http.MethodGet, "/datasets/search", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadRejectsNonCSV(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/file-upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataEndpointsAreSessionScoped(t *testing.T) {
	s, datasets := newTestServer(t, nil)
	h := s.routes()
	require.NoError(t, os.MkdirAll(datasets.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasets.Dir(), "prices.csv"), []byte(pricesCSV), 0o644))

	rr, body := doJSON(t, h, http.MethodPost, "/datasets/load",
		map[string]any{"filename": "prices.csv", "conversation_id": 7})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "success", body["status"])
	require.Equal(t, "prices.csv", body["filename"])

	// Same session sees the dataset.
	rr, body = doJSON(t, h, http.MethodGet, "/data/info?conversation_id=7", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "success", body["status"])

	// A different session does not.
	rr, body = doJSON(t, h, http.MethodGet, "/data/preview?conversation_id=8", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "No dataset loaded yet.", body["message"])
}

func TestAnalyzeWithoutDataset(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	rr, body := doJSON(t, h, http.MethodPost, "/analyze",
		map[string]any{"analysis_request": "average close"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "No dataset loaded. Please load a dataset first.", body["message"])
}

func TestAnalyzeExecutesScript(t *testing.T) {
	s, datasets := newTestServer(t, nil)
	h := s.routes()
	require.NoError(t, os.MkdirAll(datasets.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasets.Dir(), "prices.csv"), []byte(pricesCSV), 0o644))

	rr, _ := doJSON(t, h, http.MethodPost, "/datasets/load",
		map[string]any{"filename": "prices.csv", "conversation_id": 1})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body := doJSON(t, h, http.MethodPost, "/analyze",
		map[string]any{"analysis_request": "average close", "conversation_id": 1})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "success", body["status"])
	require.Equal(t, []any{"pandas"}, body["required_packages"])
}

func TestResetClearsSessions(t *testing.T) {
	s, datasets := newTestServer(t, nil)
	h := s.routes()
	require.NoError(t, os.MkdirAll(datasets.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasets.Dir(), "prices.csv"), []byte(pricesCSV), 0o644))

	doJSON(t, h, http.MethodPost, "/datasets/load",
		map[string]any{"filename": "prices.csv", "conversation_id": 2})

	rr, body := doJSON(t, h, http.MethodGet, "/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", body["status"])

	_, body = doJSON(t, h, http.MethodGet, "/data/info?conversation_id=2", nil)
	require.Equal(t, "error", body["status"])
}

func TestAgentsCatalogue(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	rr, body := doJSON(t, h, http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	agents := body["agents"].([]any)
	require.Len(t, agents, 1)
	require.Equal(t, "financial_agent", agents[0].(map[string]any)["id"])
}

func TestToolDefinitionsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	rr, _ := doJSON(t, h, http.MethodGet, "/v1/tools", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var defs []llm.ToolDef
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &defs))
	require.Len(t, defs, 5)
}

func TestBlockingQuery(t *testing.T) {
	chat := &mock.Provider{
		NameValue: "mock",
		RespondFn: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{
				OutputText: "Happy to help with your datasets.",
				Output:     []llm.Item{llm.AssistantMessage("Happy to help with your datasets.")},
				Usage:      &llm.Usage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20},
			}, nil
		},
	}
	s, _ := newTestServer(t, chat)
	h := s.routes()

	rr, body := doJSON(t, h, http.MethodPost, "/financial_agent/query",
		map[string]any{"query": "hello"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Happy to help with your datasets.", body["response"])

	var usage llm.Usage
	require.NoError(t, json.Unmarshal([]byte(body["extra_data"].(string)), &usage))
	require.Equal(t, 20, usage.TotalTokens)
}

func TestBlockingQueryRejectsEmpty(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.routes()

	rr, body := doJSON(t, h, http.MethodPost, "/financial_agent/query",
		map[string]any{"query": "  "})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, body["detail"], "query")
}

func TestStreamingQueryEndpoint(t *testing.T) {
	chat := &mock.Provider{
		NameValue: "mock",
		RespondFn: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{
				OutputText: "All done.",
				Output:     []llm.Item{llm.AssistantMessage("All done.")},
			}, nil
		},
	}
	s, _ := newTestServer(t, chat)
	h := s.routes()

	body := bytes.NewBufferString(`{"query":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []rpc.QueryEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev rpc.QueryEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.True(t, last.Done)
	require.Equal(t, "completed", last.Type)
	require.Equal(t, "All done.", last.Response.Response)
}

func TestStaticAssets(t *testing.T) {
	s, _ := newTestServer(t, nil)
	require.NoError(t, os.MkdirAll(s.cfg.Paths.AssetsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Paths.AssetsDir, "chart.txt"), []byte("plot"), 0o644))
	h := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/static/chart.txt", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "plot", rr.Body.String())
}
