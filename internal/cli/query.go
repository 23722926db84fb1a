package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
	agentrpc "github.com/R2i2Labs/fin-agent-ui/internal/rpc/agent"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc/connectjson"
)

// NewQueryCmd sends a query to the daemon, blocking by default or streaming
// events with --stream.
func NewQueryCmd(opts *Options) *cobra.Command {
	var (
		agentID        string
		conversationID int64
		stream         bool
	)

	cmd := &cobra.Command{
		Use:   "query \"<question>\"",
		Short: "Ask the financial agent a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			query := args[0]
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("query cannot be empty")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			req := rpc.QueryRequest{
				AgentID:        agentID,
				ConversationID: conversationID,
				Query:          query,
			}
			baseURL := daemonURL(cfg.Server.Addr)

			if !stream {
				return queryBlocking(ctx, cmd, baseURL, req)
			}
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return queryNDJSON(ctx, cmd, baseURL+"/v1/query/stream", req)
			default:
				return queryConnect(ctx, cmd, baseURL+agentrpc.ConnectQueryProcedure, req)
			}
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "financial_agent", "Agent the query addresses")
	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Conversation to continue (0 starts a new one)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream progress events instead of waiting for the final answer")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func queryBlocking(ctx context.Context, cmd *cobra.Command, baseURL string, reqBody rpc.QueryRequest) error {
	payload := map[string]any{
		"query":           reqBody.Query,
		"conversation_id": reqBody.ConversationID,
	}
	var resp struct {
		Response       string           `json:"response"`
		ToolResults    []rpc.ToolResult `json:"tool_results"`
		ConversationID int64            `json:"conversation_id"`
	}
	url := fmt.Sprintf("%s/%s/query", baseURL, reqBody.AgentID)
	if err := postJSON(ctx, url, payload, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tr := range resp.ToolResults {
		fmt.Fprintf(out, "[tool %s] %s\n", tr.Tool, tr.Result["status"])
	}
	fmt.Fprintln(out, resp.Response)
	fmt.Fprintf(out, "(conversation %d)\n", resp.ConversationID)
	return nil
}

func postJSON(ctx context.Context, url string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeDetail(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeDetail(resp *http.Response) error {
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, detail.Detail)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}

func queryNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.QueryRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.QueryEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func queryConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.QueryRequest) error {
	client := connect.NewClient[rpc.QueryStreamRequest, rpc.QueryEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.QueryStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.QueryStreamRequest{Cancel: true})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.QueryEvent) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "created":
		fmt.Fprintf(out, "[conversation %d]\n", evt.ConversationID)
	case "text.delta":
		fmt.Fprint(out, evt.Text)
	case "tool.start":
		fmt.Fprintf(out, "[tool %s]\n", evt.Tool)
	case "tool.result":
		fmt.Fprintf(out, "[tool %s %s] %s\n", evt.Tool, evt.Status, evt.Summary)
	case "completed":
		if evt.Response != nil {
			fmt.Fprintln(out, evt.Response.Response)
			if evt.Response.BoundExceeded {
				fmt.Fprintln(out, "[tool round limit reached]")
			}
		}
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
