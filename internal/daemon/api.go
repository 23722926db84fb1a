package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/R2i2Labs/fin-agent-ui/internal/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
	"github.com/R2i2Labs/fin-agent-ui/internal/store"
	"github.com/R2i2Labs/fin-agent-ui/internal/tools"
	"github.com/R2i2Labs/fin-agent-ui/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Financial Analysis Agent API",
		"version": version.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart form: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	saved, err := s.datasets.SaveUpload(name, file)
	if err != nil {
		if errors.Is(err, dataset.ErrNotCSV) {
			writeDetail(w, http.StatusBadRequest, "Only CSV files are supported")
			return
		}
		writeDetail(w, http.StatusInternalServerError, "failed to save upload: %v", err)
		return
	}
	s.logger.Info("dataset uploaded", zap.String("filename", name))
	writeJSON(w, http.StatusOK, map[string]string{
		"filename": name,
		"path":     saved,
		"message":  "File uploaded successfully",
	})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.datasets.List()
	if err != nil {
		if errors.Is(err, dataset.ErrNoDatasetDir) {
			writeJSON(w, http.StatusOK, map[string]any{"datasets": []string{}})
			return
		}
		writeDetail(w, http.StatusInternalServerError, "failed to list datasets: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": names})
}

func (s *Server) handleSearchDatasets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeDetail(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	matches, err := s.searcher.Search(query, limit)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "search failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// sessionFor resolves the tool session a data endpoint operates on.
// Conversation id zero is the shared ad-hoc session.
func (s *Server) sessionFor(r *http.Request) *agent.Session {
	id, _ := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	return s.sessions.Get(id)
}

func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename       string `json:"filename"`
		ConversationID int64  `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if strings.TrimSpace(body.Filename) == "" {
		writeDetail(w, http.StatusBadRequest, "filename is required")
		return
	}

	sess := s.sessions.Get(body.ConversationID)
	res := s.dispatcher.Dispatch(r.Context(), sess.Tools(), tools.LoadDataset{Filename: body.Filename})
	writeJSON(w, http.StatusOK, res.Payload)
}

func (s *Server) handleDataPreview(w http.ResponseWriter, r *http.Request) {
	res := s.dispatcher.Dispatch(r.Context(), s.sessionFor(r).Tools(), tools.GetDataPreview{})
	writeJSON(w, http.StatusOK, res.Payload)
}

func (s *Server) handleDataInfo(w http.ResponseWriter, r *http.Request) {
	res := s.dispatcher.Dispatch(r.Context(), s.sessionFor(r).Tools(), tools.GetDataInfo{})
	writeJSON(w, http.StatusOK, res.Payload)
}

// handleAnalyze synthesizes and executes a script against the session's
// loaded dataset without going through the conversation loop.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AnalysisRequest string `json:"analysis_request"`
		ConversationID  int64  `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if strings.TrimSpace(body.AnalysisRequest) == "" {
		writeDetail(w, http.StatusBadRequest, "analysis_request is required")
		return
	}

	sess := s.sessions.Get(body.ConversationID)
	res := s.dispatcher.Dispatch(r.Context(), sess.Tools(), tools.RunScript{AnalysisRequest: body.AnalysisRequest})
	writeJSON(w, http.StatusOK, res.Payload)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": []map[string]string{
			{
				"id":          "financial_agent",
				"name":        "Financial Analysis Agent",
				"description": "Conversational analyst for CSV financial datasets",
			},
		},
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sessions.Reset()
	s.logger.Info("all sessions reset")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "All sessions cleared",
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentID")
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		body.Name = "New Conversation"
	}

	id, err := s.store.CreateConversation(r.Context(), body.Name, agentID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to create conversation: %v", err)
		return
	}
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to load conversation: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context(), r.PathValue("agentID"))
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to list conversations: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func conversationID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "conversation %d not found", id)
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to load conversation: %v", err)
		return
	}
	messages, err := s.store.Messages(r.Context(), id)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to load messages: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "conversation %d not found", id)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "failed to delete conversation: %v", err)
		return
	}
	s.sessions.Delete(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleQuery runs a blocking query through the orchestration loop.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query          string `json:"query"`
		ConversationID int64  `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	if body.ConversationID == 0 {
		body.ConversationID, _ = strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	}

	req := rpc.QueryRequest{
		AgentID:        r.PathValue("agentID"),
		ConversationID: body.ConversationID,
		Query:          body.Query,
	}
	sess, err := s.runner.Prepare(r.Context(), &req)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	res := s.agent.Query(r.Context(), sess, req.Query, nil)

	out := map[string]any{
		"response":        res.Response,
		"tool_results":    res.ToolResults,
		"conversation_id": res.ConversationID,
	}
	if res.Usage != nil {
		if extra, err := json.Marshal(res.Usage); err == nil {
			out["extra_data"] = string(extra)
		}
	}
	writeJSON(w, http.StatusOK, out)
}
