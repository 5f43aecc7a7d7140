package endpoint

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/coder/websocket"

	"github.com/gaspardpetit/devbridge/internal/bus"
	"github.com/gaspardpetit/devbridge/internal/envelope"
	"github.com/gaspardpetit/devbridge/internal/metrics"
)

// Runtime is the runtime-facing endpoint. It decodes envelopes from runtime
// clients into results and turns commands from the bus into envelopes sent to
// every runtime client.
type Runtime struct {
	*Listener

	bus         bus.Bus
	codec       envelope.Codec
	wrapper     envelope.Wrapper
	seq         *envelope.Sequence
	traceFrames bool
}

// NewRuntime builds the runtime endpoint. seq is shared by every runtime
// connection and must outlive the endpoint.
func NewRuntime(opts Options, b bus.Bus, codec envelope.Codec, wrapper envelope.Wrapper, seq *envelope.Sequence, traceFrames bool) *Runtime {
	r := &Runtime{bus: b, codec: codec, wrapper: wrapper, seq: seq, traceFrames: traceFrames}
	r.Listener = newListener(RoleRuntime, websocket.MessageBinary, opts, r.handleFrame)
	return r
}

// Start binds the listener and subscribes to commands.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.Listener.Start(); err != nil {
		return err
	}
	if err := r.bus.Subscribe(ctx, bus.TopicCommand, r.handleCommand); err != nil {
		_ = r.Listener.Shutdown(context.Background())
		return fmt.Errorf("runtime endpoint: %w", err)
	}
	return nil
}

func (r *Runtime) handleFrame(_ context.Context, c *Conn, _ websocket.MessageType, data []byte) {
	log := r.log.With().Str("conn_id", c.ID).Logger()
	if r.traceFrames {
		log.Trace().Str("hex", hex.EncodeToString(data)).Msg("runtime frame")
	}
	env, err := r.codec.Decode(data)
	if err != nil {
		metrics.RecordDecodeError()
		log.Warn().Err(err).Int("bytes", len(data)).Msg("discarding undecodable frame")
		return
	}
	p, ok := r.wrapper.Unwrap(env)
	if !ok {
		metrics.RecordMessage(metrics.DirToFrontend, metrics.OutcomeIgnored)
		log.Debug().Str("category", string(env.Category)).Uint32("seq", env.Seq).Msg("nothing to route")
		return
	}
	if r.traceFrames {
		log.Debug().Uint32("seq", env.Seq).Uint32("op_id", p.OperationID).Str("payload", p.Payload).Msg("result")
	}
	if err := r.bus.Publish(bus.TopicResult, []byte(p.Payload)); err != nil {
		metrics.RecordMessage(metrics.DirToFrontend, metrics.OutcomeFailed)
		log.Warn().Err(err).Msg("publish result")
	}
}

// handleCommand encodes one front-end message and broadcasts it to every open
// runtime client. With no client open nothing is built, so no sequence number
// is spent.
func (r *Runtime) handleCommand(_ context.Context, raw []byte) error {
	if r.Count() == 0 {
		metrics.RecordMessage(metrics.DirToRuntime, metrics.OutcomeDropped)
		return nil
	}
	w, err := r.wrapper.Wrap(string(raw), envelope.CategoryCommand, envelope.CompressNone)
	if err != nil {
		metrics.RecordMessage(metrics.DirToRuntime, metrics.OutcomeFailed)
		return fmt.Errorf("wrap command: %w", err)
	}
	env := envelope.Envelope{
		Seq:          r.seq.Next(),
		Category:     envelope.CategoryCommand,
		Data:         w.Data,
		CompressAlgo: envelope.CompressNone,
		OriginalSize: w.OriginalSize,
	}
	b, err := r.codec.Encode(env)
	if err != nil {
		metrics.RecordMessage(metrics.DirToRuntime, metrics.OutcomeFailed)
		return fmt.Errorf("encode command %d: %w", env.Seq, err)
	}
	n := r.Broadcast(b)
	metrics.SetOutboundSeq(env.Seq)
	metrics.RecordMessage(metrics.DirToRuntime, metrics.OutcomeRelayed)
	r.log.Trace().Uint32("seq", env.Seq).Int("clients", n).Msg("command sent")
	return nil
}
