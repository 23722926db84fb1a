package openai

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

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// Provider implements the OpenAI Responses API.
type Provider struct {
	name         string
	client       *http.Client
	streamClient *http.Client
	baseURL      string
	apiKey       string
}

// NewProvider constructs a Provider with sane defaults. The streaming client
// carries no overall timeout; streamed exchanges are bounded by the caller's
// context.
func NewProvider(name, baseURL, apiKey string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		name:         name,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
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

	var resp responsesEnvelope
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("openai: %s", resp.Error.Message)
	}

	return resp.toResponse(p.name), nil
}

// Stream executes a streamed exchange, emitting one event per SSE record.
// The channel closes when the server ends the stream.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	res, err := p.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	events := make(chan llm.Event)
	go func() {
		defer close(events)
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				continue
			}

			var raw streamRecord
			if err := json.Unmarshal([]byte(data), &raw); err != nil {
				events <- llm.Event{Type: llm.EventFailed, Err: fmt.Errorf("decode stream event: %w", err)}
				return
			}
			ev, ok := raw.toEvent(p.name)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			events <- llm.Event{Type: llm.EventFailed, Err: fmt.Errorf("read stream: %w", err)}
		}
	}()

	return events, nil
}

func (p *Provider) send(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}

	body := responsesRequest{
		Model:           req.Model,
		Input:           toInputItems(req.Input),
		Instructions:    req.Instructions,
		Tools:           req.Tools,
		ToolChoice:      req.ToolChoice,
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
		Stream:          stream,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

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
		return nil, fmt.Errorf("openai: status %d: %s", res.StatusCode, string(b))
	}
	return res, nil
}

type responsesRequest struct {
	Model           string        `json:"model"`
	Input           []inputItem   `json:"input"`
	Instructions    string        `json:"instructions,omitempty"`
	Tools           []llm.ToolDef `json:"tools,omitempty"`
	ToolChoice      string        `json:"tool_choice,omitempty"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty"`
	Temperature     float64       `json:"temperature,omitempty"`
	Stream          bool          `json:"stream,omitempty"`
}

type inputItem struct {
	Type      string `json:"type,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outputItem struct {
	Type      string        `json:"type"`
	ID        string        `json:"id,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Role      string        `json:"role,omitempty"`
	Content   []contentPart `json:"content,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type responsesEnvelope struct {
	ID     string       `json:"id"`
	Model  string       `json:"model"`
	Output []outputItem `json:"output"`
	Usage  *wireUsage   `json:"usage"`
	Error  *wireError   `json:"error"`
}

type streamRecord struct {
	Type        string             `json:"type"`
	OutputIndex int                `json:"output_index"`
	ItemID      string             `json:"item_id"`
	Delta       string             `json:"delta"`
	Text        string             `json:"text"`
	Arguments   string             `json:"arguments"`
	Item        *outputItem        `json:"item"`
	Response    *responsesEnvelope `json:"response"`
}

func (e *responsesEnvelope) toResponse(provider string) *llm.Response {
	resp := &llm.Response{
		ID:           e.ID,
		Model:        e.Model,
		ProviderName: provider,
	}
	if e.Usage != nil {
		resp.Usage = &llm.Usage{
			InputTokens:  e.Usage.InputTokens,
			OutputTokens: e.Usage.OutputTokens,
			TotalTokens:  e.Usage.TotalTokens,
		}
	}

	var text strings.Builder
	for _, item := range e.Output {
		converted := item.toItem()
		resp.Output = append(resp.Output, converted)
		if converted.Type == llm.ItemMessage {
			text.WriteString(converted.Content)
		}
	}
	resp.OutputText = text.String()
	return resp
}

func (o *outputItem) toItem() llm.Item {
	item := llm.Item{
		Type:      llm.ItemType(o.Type),
		ID:        o.ID,
		CallID:    o.CallID,
		Name:      o.Name,
		Arguments: o.Arguments,
		Role:      llm.Role(o.Role),
	}
	if item.Type == llm.ItemMessage {
		var text strings.Builder
		for _, part := range o.Content {
			if part.Type == "output_text" {
				text.WriteString(part.Text)
			}
		}
		item.Content = text.String()
	}
	return item
}

func (r *streamRecord) toEvent(provider string) (llm.Event, bool) {
	switch r.Type {
	case "response.created":
		return llm.Event{Type: llm.EventCreated}, true
	case "response.output_text.delta":
		return llm.Event{Type: llm.EventTextDelta, ItemID: r.ItemID, OutputIndex: r.OutputIndex, Delta: r.Delta}, true
	case "response.output_text.done":
		return llm.Event{Type: llm.EventTextDone, ItemID: r.ItemID, OutputIndex: r.OutputIndex, Text: r.Text}, true
	case "response.output_item.added":
		if r.Item == nil {
			return llm.Event{}, false
		}
		item := r.Item.toItem()
		return llm.Event{Type: llm.EventItemAdded, OutputIndex: r.OutputIndex, ItemID: item.ID, Item: &item}, true
	case "response.function_call_arguments.delta":
		return llm.Event{Type: llm.EventArgumentsDelta, ItemID: r.ItemID, OutputIndex: r.OutputIndex, Delta: r.Delta}, true
	case "response.function_call_arguments.done":
		return llm.Event{Type: llm.EventArgumentsDone, ItemID: r.ItemID, OutputIndex: r.OutputIndex, Text: r.Arguments}, true
	case "response.completed":
		if r.Response == nil {
			return llm.Event{}, false
		}
		return llm.Event{Type: llm.EventCompleted, Response: r.Response.toResponse(provider)}, true
	case "response.failed":
		var err error
		if r.Response != nil && r.Response.Error != nil {
			err = fmt.Errorf("openai: %s", r.Response.Error.Message)
		}
		return llm.Event{Type: llm.EventFailed, Err: err}, true
	default:
		return llm.Event{}, false
	}
}

func toInputItems(items []llm.Item) []inputItem {
	out := make([]inputItem, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case llm.ItemMessage:
			out = append(out, inputItem{Type: "message", Role: string(it.Role), Content: it.Content})
		case llm.ItemFunctionCall:
			out = append(out, inputItem{Type: "function_call", CallID: it.CallID, Name: it.Name, Arguments: it.Arguments})
		case llm.ItemFunctionCallOutput:
			out = append(out, inputItem{Type: "function_call_output", CallID: it.CallID, Output: it.Output})
		}
	}
	return out
}
