package mock

import (
	"context"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue string
	RespondFn func(ctx context.Context, req llm.Request) (*llm.Response, error)
	StreamFn  func(ctx context.Context, req llm.Request) (<-chan llm.Event, error)
	Events    []llm.Event

	Requests []llm.Request
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Respond(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.Requests = append(p.Requests, req)
	if p.RespondFn != nil {
		return p.RespondFn(ctx, req)
	}
	return &llm.Response{
		OutputText: "mock",
		Output: []llm.Item{
			{Type: llm.ItemMessage, Role: llm.RoleAssistant, Content: "mock"},
		},
		ProviderName: p.Name(),
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	p.Requests = append(p.Requests, req)
	if p.StreamFn != nil {
		return p.StreamFn(ctx, req)
	}
	events := make(chan llm.Event, len(p.Events))
	for _, ev := range p.Events {
		events <- ev
	}
	close(events)
	return events, nil
}
