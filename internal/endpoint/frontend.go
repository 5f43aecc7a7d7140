package endpoint

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	"github.com/gaspardpetit/devbridge/internal/bus"
	"github.com/gaspardpetit/devbridge/internal/metrics"
)

// Frontend is the endpoint DevTools connects to. Messages pass through it
// untouched in both directions.
type Frontend struct {
	*Listener

	bus bus.Bus
}

// NewFrontend builds the front-end endpoint.
func NewFrontend(opts Options, b bus.Bus) *Frontend {
	f := &Frontend{bus: b}
	f.Listener = newListener(RoleFrontend, websocket.MessageText, opts, f.handleFrame)
	return f
}

// Start binds the listener and subscribes to results.
func (f *Frontend) Start(ctx context.Context) error {
	if err := f.Listener.Start(); err != nil {
		return err
	}
	if err := f.bus.Subscribe(ctx, bus.TopicResult, f.handleResult); err != nil {
		_ = f.Listener.Shutdown(context.Background())
		return fmt.Errorf("frontend endpoint: %w", err)
	}
	return nil
}

func (f *Frontend) handleFrame(_ context.Context, c *Conn, _ websocket.MessageType, data []byte) {
	if err := f.bus.Publish(bus.TopicCommand, data); err != nil {
		metrics.RecordMessage(metrics.DirToRuntime, metrics.OutcomeFailed)
		f.log.Warn().Err(err).Str("conn_id", c.ID).Msg("publish command")
	}
}

func (f *Frontend) handleResult(_ context.Context, payload []byte) error {
	if f.Broadcast(payload) == 0 {
		metrics.RecordMessage(metrics.DirToFrontend, metrics.OutcomeDropped)
		return nil
	}
	metrics.RecordMessage(metrics.DirToFrontend, metrics.OutcomeRelayed)
	return nil
}
