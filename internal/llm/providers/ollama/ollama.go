package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// Provider implements llm.Provider against a local ollama daemon. Ollama
// speaks a chat-completions dialect, so conversation items are translated
// to chat messages on the way out and back to items on the way in.
type Provider struct {
	name         string
	client       *http.Client
	streamClient *http.Client
	baseURL      string
}

// NewProvider constructs an ollama provider.
func NewProvider(name, baseURL string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		name:         name,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Respond executes a non-streamed exchange.
func (p *Provider) Respond(ctx context.Context, req llm.Request) (*llm.Response, error) {
	res, err := p.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(res.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if chat.Error != "" {
		return nil, fmt.Errorf("ollama: %s", chat.Error)
	}
	return chat.toResponse(p.name, req.Model), nil
}

// Stream executes a streamed exchange. Ollama emits newline-delimited JSON
// chunks; each content chunk becomes a text delta and tool calls arrive
// whole, so their item-added and arguments-done events are emitted together.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	res, err := p.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer res.Body.Close()

		emit := func(ev llm.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(llm.Event{Type: llm.EventCreated}) {
			return
		}

		final := &llm.Response{Model: req.Model, ProviderName: p.name}
		var text strings.Builder
		var calls []llm.Item
		index := 0

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				emit(llm.Event{Type: llm.EventFailed, Err: fmt.Errorf("decode stream chunk: %w", err)})
				return
			}
			if chunk.Error != "" {
				emit(llm.Event{Type: llm.EventFailed, Err: fmt.Errorf("ollama: %s", chunk.Error)})
				return
			}

			if chunk.Message.Content != "" {
				text.WriteString(chunk.Message.Content)
				if !emit(llm.Event{Type: llm.EventTextDelta, OutputIndex: index, Delta: chunk.Message.Content}) {
					return
				}
			}
			for _, tc := range chunk.Message.ToolCalls {
				item := tc.toItem()
				calls = append(calls, item)
				index++
				if !emit(llm.Event{Type: llm.EventItemAdded, OutputIndex: index, ItemID: item.ID, Item: &item}) {
					return
				}
				if !emit(llm.Event{Type: llm.EventArgumentsDone, OutputIndex: index, ItemID: item.ID, Text: item.Arguments}) {
					return
				}
			}

			if chunk.Done {
				final.Usage = chunk.usage()
			}
		}
		if err := scanner.Err(); err != nil {
			emit(llm.Event{Type: llm.EventFailed, Err: fmt.Errorf("read stream: %w", err)})
			return
		}

		final.OutputText = text.String()
		if final.OutputText != "" {
			final.Output = append(final.Output, llm.Item{
				Type:    llm.ItemMessage,
				Role:    llm.RoleAssistant,
				Content: final.OutputText,
			})
		}
		final.Output = append(final.Output, calls...)
		emit(llm.Event{Type: llm.EventCompleted, Response: final})
	}()

	return events, nil
}

func (p *Provider) send(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: toMessages(req),
		Tools:    toTools(req.Tools),
		Stream:   stream,
	}
	if req.Temperature != 0 || req.MaxOutputTokens != 0 {
		body.Options = &chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxOutputTokens,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := p.client
	if stream {
		client = p.streamClient
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("ollama: status %d: %s", res.StatusCode, string(b))
	}
	return res, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolCall struct {
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	Error           string      `json:"error,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (c *chatResponse) usage() *llm.Usage {
	if c.PromptEvalCount == 0 && c.EvalCount == 0 {
		return nil
	}
	return &llm.Usage{
		InputTokens:  c.PromptEvalCount,
		OutputTokens: c.EvalCount,
		TotalTokens:  c.PromptEvalCount + c.EvalCount,
	}
}

func (c *chatResponse) toResponse(provider, model string) *llm.Response {
	resp := &llm.Response{
		Model:        model,
		OutputText:   c.Message.Content,
		Usage:        c.usage(),
		ProviderName: provider,
	}
	if c.Message.Content != "" {
		resp.Output = append(resp.Output, llm.Item{
			Type:    llm.ItemMessage,
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
		})
	}
	for _, tc := range c.Message.ToolCalls {
		resp.Output = append(resp.Output, tc.toItem())
	}
	return resp
}

// toItem converts a returned tool call to a function-call item. Ollama does
// not assign call ids, so one is minted here to keep items correlatable.
func (tc toolCall) toItem() llm.Item {
	args := string(tc.Function.Arguments)
	if args == "" {
		args = "{}"
	}
	id := uuid.NewString()
	return llm.Item{
		Type:      llm.ItemFunctionCall,
		ID:        id,
		CallID:    id,
		Name:      tc.Function.Name,
		Arguments: args,
	}
}

func toMessages(req llm.Request) []chatMessage {
	out := make([]chatMessage, 0, len(req.Input)+1)
	if req.Instructions != "" {
		out = append(out, chatMessage{Role: "system", Content: req.Instructions})
	}
	for _, it := range req.Input {
		switch it.Type {
		case llm.ItemMessage:
			out = append(out, chatMessage{Role: string(it.Role), Content: it.Content})
		case llm.ItemFunctionCall:
			args := json.RawMessage(it.Arguments)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out = append(out, chatMessage{
				Role: "assistant",
				ToolCalls: []toolCall{
					{Function: toolCallFunction{Name: it.Name, Arguments: args}},
				},
			})
		case llm.ItemFunctionCallOutput:
			out = append(out, chatMessage{Role: "tool", Content: it.Output})
		}
	}
	return out
}

func toTools(defs []llm.ToolDef) []chatTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, chatTool{
			Type: "function",
			Function: toolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
