// Package daemon hosts the HTTP surface of the financial agent: the REST
// API, the streaming query transports and the Prometheus endpoint.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/config"
	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
	"github.com/R2i2Labs/fin-agent-ui/internal/llm/configbuilder"
	"github.com/R2i2Labs/fin-agent-ui/internal/observability"
	agentrpc "github.com/R2i2Labs/fin-agent-ui/internal/rpc/agent"
	toolrpc "github.com/R2i2Labs/fin-agent-ui/internal/rpc/tools"
	"github.com/R2i2Labs/fin-agent-ui/internal/sandbox"
	"github.com/R2i2Labs/fin-agent-ui/internal/script"
	"github.com/R2i2Labs/fin-agent-ui/internal/store"
	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
)

// Server wires the agent core to its HTTP transports.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	store      *store.Store
	datasets   *dataset.Store
	searcher   *dataset.Searcher
	dispatcher *tools.Dispatcher
	sessions   *agent.Sessions
	agent      *agent.Agent
	runner     *agentrpc.QueryRunner
}

// NewServer constructs a daemon instance with all collaborators wired.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	router := agent.NewRouter(registry, cfg.Strategy)

	st, err := store.Open(ctx, cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}

	metrics := observability.NewMetrics()
	datasets := dataset.NewStore(cfg.Paths.DatasetsDir, logger)
	searcher := dataset.NewSearcher(datasets, 0)

	scriptProvider, scriptRoute, err := router.Resolve(agent.RoleScript)
	if err != nil {
		st.Close()
		datasets.Close()
		return nil, fmt.Errorf("resolve script model: %w", err)
	}
	synth := script.NewSynthesizer(scriptProvider, scriptRoute, cfg.Synthesizer.MaxOutputTokens, logger)

	executor := sandbox.NewExecutor(sandbox.Options{
		Python:         cfg.Sandbox.Python,
		Persistent:     cfg.Sandbox.Persistent,
		EnvDir:         cfg.Sandbox.EnvDir,
		InstallTimeout: time.Duration(cfg.Sandbox.InstallTimeoutSeconds) * time.Second,
		ExecTimeout:    time.Duration(cfg.Sandbox.ExecTimeoutSeconds) * time.Second,
	}, nil, logger)

	dispatcher := tools.NewDispatcher(datasets, synth, executor, cfg.Paths.ScriptsDir, metrics, logger)
	dispatcher.SetPreviewRows(cfg.Agent.LoadPreviewRows, cfg.Agent.PreviewRows)

	sessions := agent.NewSessions()
	core := agent.New(router, dispatcher, st, cfg.Agent, metrics, logger)
	runner := &agentrpc.QueryRunner{Agent: core, Sessions: sessions, Store: st, Logger: logger}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		store:      st,
		datasets:   datasets,
		searcher:   searcher,
		dispatcher: dispatcher,
		sessions:   sessions,
		agent:      core,
		runner:     runner,
	}, nil
}

// Close releases the store and the dataset watcher.
func (s *Server) Close() {
	if s.datasets != nil {
		s.datasets.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close conversation store", zap.Error(err))
		}
	}
}

// routes assembles the full HTTP surface. Split out so tests can drive the
// API without a listener.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /file-upload", s.handleFileUpload)
	mux.HandleFunc("GET /datasets", s.handleListDatasets)
	mux.HandleFunc("GET /datasets/search", s.handleSearchDatasets)
	mux.HandleFunc("POST /datasets/load", s.handleLoadDataset)
	mux.HandleFunc("GET /data/preview", s.handleDataPreview)
	mux.HandleFunc("GET /data/info", s.handleDataInfo)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /agents", s.handleAgents)
	mux.HandleFunc("GET /reset", s.handleReset)
	mux.Handle("GET /v1/tools", toolrpc.SchemaHandler{})
	mux.Handle("POST /v1/query/stream", agentrpc.NewHandler(s.runner, s.metrics))

	connectPath, connectHandler := agentrpc.NewConnectHandler(s.runner, s.metrics)
	mux.Handle("POST "+connectPath, connectHandler)

	mux.Handle("GET /static/", http.StripPrefix("/static/",
		http.FileServer(http.Dir(s.cfg.Paths.AssetsDir))))

	// Agent-scoped routes carry a wildcard first segment, so they live on a
	// fallback mux to stay out of the literal routes' way.
	scoped := http.NewServeMux()
	scoped.HandleFunc("GET /{$}", s.handleWelcome)
	scoped.HandleFunc("POST /{agentID}/conversations", s.handleCreateConversation)
	scoped.HandleFunc("GET /{agentID}/conversations", s.handleListConversations)
	scoped.HandleFunc("GET /{agentID}/conversations/{id}", s.handleGetConversation)
	scoped.HandleFunc("DELETE /{agentID}/conversations/{id}", s.handleDeleteConversation)
	scoped.HandleFunc("POST /{agentID}/query", s.handleQuery)
	mux.Handle("/", scoped)

	return s.withLogging(mux)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(started)))
	})
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal listener error.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	handler := s.routes()
	if strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport)) != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting finagent daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down finagent daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
