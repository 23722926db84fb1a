package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
)

// scriptedEvents is a Runner emitting a fixed event sequence.
type scriptedEvents []rpc.QueryEvent

func (s scriptedEvents) Run(ctx context.Context, req rpc.QueryRequest) (<-chan rpc.QueryEvent, error) {
	out := make(chan rpc.QueryEvent, len(s))
	for _, ev := range s {
		ev.ConversationID = req.ConversationID
		out <- ev
	}
	close(out)
	return out, nil
}

func TestHandlerStreamsNDJSON(t *testing.T) {
	handler := NewHandler(scriptedEvents{
		{Type: "created"},
		{Type: "text.delta", Text: "The average "},
		{Type: "text.delta", Text: "is 101.5."},
		{Type: "completed", Response: &rpc.QueryResponse{Response: "The average is 101.5."}, Done: true},
	}, nil)

	body := bytes.NewBufferString(`{"conversation_id":3,"query":"average close price"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

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
	require.Len(t, events, 4)
	require.Equal(t, "created", events[0].Type)
	require.Equal(t, int64(3), events[0].ConversationID)

	last := events[len(events)-1]
	require.True(t, last.Done)
	require.Equal(t, "The average is 101.5.", last.Response.Response)
}

func TestHandlerRejectsNonPost(t *testing.T) {
	handler := NewHandler(scriptedEvents{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/query/stream", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	handler := NewHandler(scriptedEvents{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
