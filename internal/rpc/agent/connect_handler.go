package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/R2i2Labs/fin-agent-ui/internal/observability"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc"
	"github.com/R2i2Labs/fin-agent-ui/internal/rpc/connectjson"
)

const ConnectQueryProcedure = "/finagent.agent.v1.AgentService/Query"

// NewConnectHandler builds a Connect bidi stream handler for Query.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectQueryHandler{runner: runner, metrics: metrics}
	return ConnectQueryProcedure, connect.NewBidiStreamHandler(ConnectQueryProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectQueryHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectQueryHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.QueryStreamRequest, rpc.QueryEvent]) error {
	h.metrics.IncActiveStreams("connect")
	defer h.metrics.DecActiveStreams("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Run == nil {
		h.metrics.RecordTransportError("connect", "missing_run")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include run payload"))
	}
	req := *first.Run

	// Listen for cancellation messages from the client.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				if !errors.Is(recvErr, context.Canceled) {
					h.metrics.RecordTransportError("connect", "receive_stream")
				}
				cancel()
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Run(ctx, req)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		return connect.NewError(connect.CodeInternal, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			return err
		}
	}
	return nil
}
