package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wagiedev/daemonkit/internal/errors"
)

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/wagiedev/daemonkit/internal/rpc"

// Sender is the single-flight request/response transport the client drives.
//
// This interface is satisfied by *transport.Conn but allows for testing
// with fake transports.
type Sender interface {
	SendRequestMatching(ctx context.Context, payload []byte, accept func(line []byte) bool) ([]byte, error)
}

// Client provides typed call semantics on top of a Sender.
type Client struct {
	log    *slog.Logger
	sender Sender
	tracer trace.Tracer
	nextID atomic.Uint64
}

// NewClient creates a client. Request ids start at 1.
//
// Spans are created with the global OpenTelemetry tracer provider, which is
// a no-op unless the application installs one.
func NewClient(log *slog.Logger, sender Sender) *Client {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		log:    log.With("component", "rpc"),
		sender: sender,
		tracer: otel.Tracer(tracerName),
	}
}

// NextID reserves the next request id. Ids are strictly increasing and never
// reused for the lifetime of the client, including ids handed to subscriptions.
func (c *Client) NextID() uint64 {
	return c.nextID.Add(1)
}

// Call sends method with params and decodes the result into result.
//
// A nil params is omitted from the envelope. A nil result discards the
// decoded value but still requires the reply to carry one.
//
// Returns *RPCError if the daemon reported an error, *DecodeError if the
// result does not fit result, and *ProtocolError if the reply is malformed or
// carries neither result nor error. Transport errors are returned unchanged.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	id := c.NextID()

	ctx, span := c.tracer.Start(ctx, "rpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.Int64("rpc.jsonrpc.request_id", int64(id)),
		),
	)
	defer span.End()

	err := c.call(ctx, id, method, params, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (c *Client) call(ctx context.Context, id uint64, method string, params any, result any) error {
	data, err := json.Marshal(NewRequest(method, params, id))
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.log.Debug("Sending RPC request", "method", method, "id", id)

	line, err := c.sender.SendRequestMatching(ctx, data, func(line []byte) bool {
		// Replies with a different numeric id belong to an earlier request
		// that was abandoned; replies without an id are parse errors for us.
		got, ok := replyID(line)

		return !ok || got == id
	})
	if err != nil {
		c.log.Debug("RPC request failed", "method", method, "id", id, "error", err)

		return err
	}

	c.log.Debug("Received RPC response", "method", method, "id", id, "bytes", len(line))

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return &errors.ProtocolError{Reason: "malformed response", RawData: string(line), Err: err}
	}

	if resp.Error != nil {
		return &errors.RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}

	if !resp.HasResult() {
		return &errors.ProtocolError{Reason: "no result in response", RawData: string(line)}
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(resp.Result, result); err != nil {
		return &errors.DecodeError{Method: method, Err: err}
	}

	return nil
}
