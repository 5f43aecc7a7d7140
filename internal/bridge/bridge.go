// Package bridge wires the runtime and front-end endpoints together and owns
// their lifecycle.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/devbridge/internal/bridgestate"
	"github.com/gaspardpetit/devbridge/internal/bus"
	"github.com/gaspardpetit/devbridge/internal/config"
	"github.com/gaspardpetit/devbridge/internal/endpoint"
	"github.com/gaspardpetit/devbridge/internal/envelope"
	"github.com/gaspardpetit/devbridge/internal/fault"
	"github.com/gaspardpetit/devbridge/internal/server"
)

// Options binds the replaceable parts of a Handle. Zero values select the
// protobuf codec and wrapper, the watermill bus and the memory state store.
type Options struct {
	Codec   envelope.Codec
	Wrapper envelope.Wrapper
	Bus     bus.Bus
	Store   bridgestate.Store
	Log     zerolog.Logger
}

// Handle is one running bridge. It is built once by New and torn down once by
// Shutdown, however many times Shutdown is called.
type Handle struct {
	cfg config.BridgeConfig
	log zerolog.Logger

	bus      bus.Bus
	seq      envelope.Sequence
	runtime  *endpoint.Runtime
	frontend *endpoint.Frontend
	status   *server.Server
	state    *bridgestate.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	faults chan fault.Fault

	mu       sync.Mutex
	started  bool
	stopping bool

	once        sync.Once
	done        chan struct{}
	shutdownErr error
}

// New builds a bridge from cfg without binding anything.
func New(cfg config.BridgeConfig, opts Options) *Handle {
	h := &Handle{
		cfg:    cfg,
		log:    opts.Log,
		faults: make(chan fault.Fault, 1),
		done:   make(chan struct{}),
		state:  bridgestate.NewTracker(opts.Store),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	if opts.Codec == nil {
		opts.Codec = envelope.ProtoCodec{}
	}
	if opts.Wrapper == nil {
		opts.Wrapper = envelope.NewWrapper(cfg.SessionContextID)
	}
	h.bus = opts.Bus
	if h.bus == nil {
		h.bus = bus.New(h.log.With().Str("component", "bus").Logger(), h.report)
	}

	base := endpoint.Options{
		MaxMessageBytes: cfg.MaxMessageBytes,
		AllowedOrigins:  cfg.AllowedOrigins,
		Log:             h.log,
		OnFault:         h.report,
		OnCount: func(role endpoint.Role, n int) {
			h.state.SetClients(role == endpoint.RoleRuntime, n)
		},
	}
	ro := base
	ro.Addr = cfg.RuntimeAddr
	h.runtime = endpoint.NewRuntime(ro, h.bus, opts.Codec, opts.Wrapper, &h.seq, cfg.TraceFrames)
	fo := base
	fo.Addr = cfg.FrontendAddr
	h.frontend = endpoint.NewFrontend(fo, h.bus)
	return h
}

// Start binds both endpoints and, when configured, the status listener. An
// endpoint bind failure is returned as *endpoint.BindError. Any failure shuts
// the handle down, so nothing is left running.
func (h *Handle) Start() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("bridge already started")
	}
	h.started = true
	h.mu.Unlock()

	if err := h.runtime.Start(h.ctx); err != nil {
		h.abort()
		return err
	}
	if err := h.frontend.Start(h.ctx); err != nil {
		h.abort()
		return err
	}
	if h.cfg.StatusAddr != "" {
		s, err := server.Start(server.Options{
			Addr:           h.cfg.StatusAddr,
			AllowedOrigins: h.cfg.AllowedOrigins,
			State:          h,
			Log:            h.log,
		})
		if err != nil {
			h.abort()
			return err
		}
		h.mu.Lock()
		h.status = s
		h.mu.Unlock()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopping {
		if h.status != nil {
			_ = h.status.Shutdown(context.Background())
		}
		return errors.New("bridge shut down during start")
	}
	h.state.SetStatus(bridgestate.StatusReady)
	h.log.Info().Msg("bridge ready")
	return nil
}

func (h *Handle) abort() {
	_ = h.Shutdown(context.Background())
}

// Shutdown terminates every client of both endpoints, closes the listeners,
// the status server and the bus. Only the first call does the work; later
// calls wait for it and return the same result. Close errors are logged and
// joined into the result but never interrupt the sequence.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.once.Do(func() { go h.shutdown(ctx) })
	select {
	case <-h.done:
		return h.shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("wait for shutdown: %w", ctx.Err())
	}
}

func (h *Handle) shutdown(ctx context.Context) {
	defer close(h.done)
	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()
	h.state.StartShutdown()
	h.log.Info().Msg("shutting down")

	var errs []error
	step := func(name string, err error) {
		if err != nil {
			h.log.Warn().Err(err).Msg(name)
			errs = append(errs, err)
			return
		}
		h.log.Debug().Msg(name)
	}
	step("close runtime endpoint", h.runtime.Shutdown(ctx))
	step("close frontend endpoint", h.frontend.Shutdown(ctx))
	if s := h.statusServer(); s != nil {
		step("close status server", s.Shutdown(ctx))
	}
	h.cancel()
	step("close bus", h.bus.Close())

	h.state.SetOutboundSeq(h.seq.Current())
	h.state.SetStatus(bridgestate.StatusStopped)
	h.shutdownErr = errors.Join(errs...)
	h.log.Info().Msg("stopped")
}

// Done is closed once Shutdown has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Faults delivers the first panic recovered from a bridge goroutine.
func (h *Handle) Faults() <-chan fault.Fault { return h.faults }

func (h *Handle) report(f fault.Fault) {
	h.log.Error().Str("source", f.Source).Interface("panic", f.Value).Bytes("stack", f.Stack).Msg("recovered panic")
	select {
	case h.faults <- f:
	default:
	}
}

// Snapshot returns the lifecycle state with the live sequence number.
func (h *Handle) Snapshot() bridgestate.State {
	st := h.state.Snapshot()
	st.OutboundSeq = h.seq.Current()
	return st
}

// RuntimeAddr returns the bound runtime address, or nil before Start.
func (h *Handle) RuntimeAddr() net.Addr { return h.runtime.Addr() }

// FrontendAddr returns the bound front-end address, or nil before Start.
func (h *Handle) FrontendAddr() net.Addr { return h.frontend.Addr() }

// StatusAddr returns the bound status address, or nil when disabled.
func (h *Handle) StatusAddr() net.Addr {
	if s := h.statusServer(); s != nil {
		return s.Addr()
	}
	return nil
}

func (h *Handle) statusServer() *server.Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
