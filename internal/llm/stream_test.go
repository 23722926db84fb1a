package llm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R2i2Labs/fin-agent-ui/internal/llm"
)

func TestAccumulatorMergesTextDeltas(t *testing.T) {
	acc := llm.NewAccumulator()
	events := []llm.Event{
		{Type: llm.EventCreated},
		{Type: llm.EventTextDelta, Delta: "Hello"},
		{Type: llm.EventTextDelta, Delta: ", "},
		{Type: llm.EventTextDelta, Delta: "world"},
		{Type: llm.EventCompleted, Response: &llm.Response{ID: "resp_1"}},
	}
	for _, ev := range events {
		require.NoError(t, acc.Feed(ev))
	}

	resp, err := acc.Final()
	require.NoError(t, err)
	require.Equal(t, "Hello, world", resp.OutputText)
	require.Equal(t, "resp_1", resp.ID)
}

func TestAccumulatorTextDoneOverridesDeltas(t *testing.T) {
	acc := llm.NewAccumulator()
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventTextDelta, Delta: "partial"}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventTextDone, Text: "the full text"}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventCompleted, Response: &llm.Response{}}))

	resp, err := acc.Final()
	require.NoError(t, err)
	require.Equal(t, "the full text", resp.OutputText)
}

func TestAccumulatorInterleavedFunctionCalls(t *testing.T) {
	acc := llm.NewAccumulator()

	callA := llm.Item{Type: llm.ItemFunctionCall, ID: "item_a", CallID: "call_a", Name: "load_dataset"}
	callB := llm.Item{Type: llm.ItemFunctionCall, ID: "item_b", CallID: "call_b", Name: "run_script"}

	events := []llm.Event{
		{Type: llm.EventCreated},
		{Type: llm.EventItemAdded, ItemID: "item_a", Item: &callA},
		{Type: llm.EventItemAdded, ItemID: "item_b", Item: &callB},
		{Type: llm.EventArgumentsDelta, ItemID: "item_a", Delta: `{"filename":`},
		{Type: llm.EventArgumentsDelta, ItemID: "item_b", Delta: `{"analysis_request":`},
		{Type: llm.EventArgumentsDelta, ItemID: "item_a", Delta: `"prices.csv"}`},
		{Type: llm.EventArgumentsDelta, ItemID: "item_b", Delta: `"plot returns"}`},
		{Type: llm.EventArgumentsDone, ItemID: "item_a"},
		{Type: llm.EventArgumentsDone, ItemID: "item_b"},
		{Type: llm.EventCompleted, Response: &llm.Response{}},
	}
	for _, ev := range events {
		require.NoError(t, acc.Feed(ev))
	}

	resp, err := acc.Final()
	require.NoError(t, err)

	calls := resp.FunctionCalls()
	require.Len(t, calls, 2)
	require.Equal(t, "load_dataset", calls[0].Name)
	require.JSONEq(t, `{"filename":"prices.csv"}`, calls[0].Arguments)
	require.Equal(t, "run_script", calls[1].Name)
	require.JSONEq(t, `{"analysis_request":"plot returns"}`, calls[1].Arguments)
}

func TestAccumulatorArgumentsDoneReplacesFragments(t *testing.T) {
	acc := llm.NewAccumulator()
	call := llm.Item{Type: llm.ItemFunctionCall, ID: "item_1", CallID: "call_1", Name: "load_dataset"}

	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventItemAdded, ItemID: "item_1", Item: &call}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventArgumentsDelta, ItemID: "item_1", Delta: `{"filena`}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventArgumentsDone, ItemID: "item_1", Text: `{"filename":"a.csv"}`}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventCompleted, Response: &llm.Response{}}))

	resp, err := acc.Final()
	require.NoError(t, err)
	require.JSONEq(t, `{"filename":"a.csv"}`, resp.FunctionCalls()[0].Arguments)
}

func TestAccumulatorRequiresTerminalEvent(t *testing.T) {
	acc := llm.NewAccumulator()
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventTextDelta, Delta: "dangling"}))

	_, err := acc.Final()
	require.Error(t, err)
	require.Contains(t, err.Error(), "without terminal event")
}

func TestAccumulatorRequiresCompletedEnvelope(t *testing.T) {
	acc := llm.NewAccumulator()
	err := acc.Feed(llm.Event{Type: llm.EventCompleted})
	require.Error(t, err)
	require.Contains(t, err.Error(), "without response envelope")
}

func TestAccumulatorRejectsDuplicateItems(t *testing.T) {
	acc := llm.NewAccumulator()
	call := llm.Item{Type: llm.ItemFunctionCall, ID: "item_1", CallID: "call_1", Name: "get_data_info"}

	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventItemAdded, ItemID: "item_1", Item: &call}))
	require.Error(t, acc.Feed(llm.Event{Type: llm.EventItemAdded, ItemID: "item_1", Item: &call}))
}

func TestAccumulatorRejectsUnknownItemDeltas(t *testing.T) {
	acc := llm.NewAccumulator()
	require.Error(t, acc.Feed(llm.Event{Type: llm.EventArgumentsDelta, ItemID: "ghost", Delta: "{"}))
}

func TestAccumulatorRejectsDeltaAfterDone(t *testing.T) {
	acc := llm.NewAccumulator()
	call := llm.Item{Type: llm.ItemFunctionCall, ID: "item_1", CallID: "call_1", Name: "get_data_preview"}

	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventItemAdded, ItemID: "item_1", Item: &call}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventArgumentsDone, ItemID: "item_1", Text: "{}"}))
	require.Error(t, acc.Feed(llm.Event{Type: llm.EventArgumentsDelta, ItemID: "item_1", Delta: "x"}))
}

func TestAccumulatorPropagatesFailure(t *testing.T) {
	acc := llm.NewAccumulator()
	boom := errors.New("upstream exploded")
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventFailed, Err: boom}))

	_, err := acc.Final()
	require.ErrorIs(t, err, boom)
}

func TestAccumulatorPrefersEnvelopeOutput(t *testing.T) {
	acc := llm.NewAccumulator()
	call := llm.Item{Type: llm.ItemFunctionCall, ID: "item_1", CallID: "call_1", Name: "get_dataset_list", Arguments: "{}"}

	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventItemAdded, ItemID: "item_1", Item: &call}))
	require.NoError(t, acc.Feed(llm.Event{Type: llm.EventCompleted, Response: &llm.Response{
		OutputText: "from envelope",
		Output:     []llm.Item{{Type: llm.ItemMessage, Role: llm.RoleAssistant, Content: "from envelope"}},
	}}))

	resp, err := acc.Final()
	require.NoError(t, err)
	require.Equal(t, "from envelope", resp.OutputText)
	require.Len(t, resp.Output, 1)
	require.Empty(t, resp.FunctionCalls())
}

func TestDrainObservesEveryEvent(t *testing.T) {
	events := make(chan llm.Event, 3)
	events <- llm.Event{Type: llm.EventCreated}
	events <- llm.Event{Type: llm.EventTextDelta, Delta: "hi"}
	events <- llm.Event{Type: llm.EventCompleted, Response: &llm.Response{}}
	close(events)

	var seen []llm.EventType
	resp, err := llm.Drain(events, func(ev llm.Event) {
		seen = append(seen, ev.Type)
	})
	require.NoError(t, err)
	require.Equal(t, "hi", resp.OutputText)
	require.Equal(t, []llm.EventType{llm.EventCreated, llm.EventTextDelta, llm.EventCompleted}, seen)
}
