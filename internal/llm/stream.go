package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Accumulator folds a streamed exchange into a single Response. Argument
// fragments are tracked per call identifier so interleaved deltas for
// concurrent function calls cannot cross-contaminate; the merge happens once,
// in Final, after the terminal completed event arrived.
type Accumulator struct {
	order    []string
	builders map[string]*itemBuilder
	text     strings.Builder
	textDone string
	final    *Response
	failed   error
}

type itemBuilder struct {
	item Item
	args strings.Builder
	done bool
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{builders: make(map[string]*itemBuilder)}
}

// Feed consumes one stream event. Events referencing unknown call ids or
// arriving after the per-call terminal event are reported as errors.
func (a *Accumulator) Feed(ev Event) error {
	switch ev.Type {
	case EventCreated:
		return nil
	case EventTextDelta:
		a.text.WriteString(ev.Delta)
	case EventTextDone:
		a.textDone = ev.Text
	case EventItemAdded:
		if ev.Item == nil {
			return errors.New("output_item.added event without item")
		}
		key := itemKey(ev.Item)
		if key == "" {
			return errors.New("output item has no identifier")
		}
		if _, ok := a.builders[key]; ok {
			return fmt.Errorf("duplicate output item %q", key)
		}
		b := &itemBuilder{item: *ev.Item}
		b.args.WriteString(ev.Item.Arguments)
		a.builders[key] = b
		a.order = append(a.order, key)
	case EventArgumentsDelta:
		b, ok := a.builders[ev.ItemID]
		if !ok {
			return fmt.Errorf("arguments delta for unknown item %q", ev.ItemID)
		}
		if b.done {
			return fmt.Errorf("arguments delta after done for item %q", ev.ItemID)
		}
		b.args.WriteString(ev.Delta)
	case EventArgumentsDone:
		b, ok := a.builders[ev.ItemID]
		if !ok {
			return fmt.Errorf("arguments done for unknown item %q", ev.ItemID)
		}
		b.done = true
		if ev.Text != "" {
			b.args.Reset()
			b.args.WriteString(ev.Text)
		}
	case EventCompleted:
		if ev.Response == nil {
			return errors.New("completed event without response envelope")
		}
		a.final = ev.Response
	case EventFailed:
		if ev.Err != nil {
			a.failed = ev.Err
		} else {
			a.failed = errors.New("response failed")
		}
	}
	return nil
}

// Final merges the accumulated state into the terminal response. The stream
// must have delivered a completed event; usage accounting comes from its
// envelope.
func (a *Accumulator) Final() (*Response, error) {
	if a.failed != nil {
		return nil, a.failed
	}
	if a.final == nil {
		return nil, errors.New("stream ended without terminal event")
	}

	resp := a.final
	if resp.OutputText == "" {
		if a.textDone != "" {
			resp.OutputText = a.textDone
		} else {
			resp.OutputText = a.text.String()
		}
	}
	if len(resp.Output) == 0 {
		for _, key := range a.order {
			b := a.builders[key]
			item := b.item
			if item.Type == ItemFunctionCall {
				item.Arguments = b.args.String()
			}
			if item.Type == ItemMessage && item.Content == "" {
				item.Content = resp.OutputText
			}
			resp.Output = append(resp.Output, item)
		}
	}
	return resp, nil
}

// Drain feeds every event from the channel, forwarding each to observe when
// set, and returns the merged response.
func Drain(events <-chan Event, observe func(Event)) (*Response, error) {
	acc := NewAccumulator()
	for ev := range events {
		if observe != nil {
			observe(ev)
		}
		if err := acc.Feed(ev); err != nil {
			return nil, err
		}
	}
	return acc.Final()
}

func itemKey(item *Item) string {
	if item.ID != "" {
		return item.ID
	}
	return item.CallID
}
