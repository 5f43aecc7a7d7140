// Package endpoint hosts the two WebSocket listeners of the bridge: one for
// the embedded runtime and one for the debugging front-end.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/devbridge/internal/fault"
	"github.com/gaspardpetit/devbridge/internal/metrics"
)

// BindError reports that a listener could not acquire its address.
type BindError struct {
	Role Role
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s listener: bind %s: %v", e.Role, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Options configures a Listener.
type Options struct {
	Addr string
	// MaxMessageBytes caps one inbound message; zero or less means no limit.
	MaxMessageBytes int64
	// AllowedOrigins are WebSocket origin patterns; "*" accepts any origin.
	AllowedOrigins []string
	Log            zerolog.Logger
	OnFault        fault.Handler
	// OnCount is called with the number of open connections whenever it changes.
	OnCount func(role Role, n int)
}

// MessageFunc handles one inbound frame. It runs on the connection's read
// goroutine, so frames of one connection are handled in arrival order.
type MessageFunc func(ctx context.Context, c *Conn, typ websocket.MessageType, data []byte)

// Listener accepts WebSocket clients on one address and broadcasts to them.
type Listener struct {
	role      Role
	outType   websocket.MessageType
	opts      Options
	log       zerolog.Logger
	onMessage MessageFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conns     map[string]*Conn
	ln        net.Listener
	srv       *http.Server
	started   bool
	stopping  bool
	serveDone chan struct{}
	connWG    sync.WaitGroup
}

func newListener(role Role, outType websocket.MessageType, opts Options, onMessage MessageFunc) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		role:      role,
		outType:   outType,
		opts:      opts,
		log:       opts.Log.With().Str("endpoint", string(role)).Logger(),
		onMessage: onMessage,
		ctx:       ctx,
		cancel:    cancel,
		conns:     map[string]*Conn{},
		serveDone: make(chan struct{}),
	}
}

// Start binds the listen address and begins accepting clients.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("%s listener already started", l.role)
	}
	if l.stopping {
		return fmt.Errorf("%s listener stopped", l.role)
	}
	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return &BindError{Role: l.role, Addr: l.opts.Addr, Err: err}
	}
	r := chi.NewRouter()
	r.HandleFunc("/*", l.serveWS)
	l.ln = ln
	l.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	l.started = true
	go func() {
		defer close(l.serveDone)
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error().Err(err).Msg("serve")
		}
	}()
	l.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Count returns the number of open connections.
func (l *Listener) Count() int {
	n := 0
	for _, c := range l.snapshot() {
		if c.State() == StateOpen {
			n++
		}
	}
	return n
}

// Broadcast queues b on every open connection and returns how many took it.
func (l *Listener) Broadcast(b []byte) int {
	n := 0
	for _, c := range l.snapshot() {
		if c.Send(b) {
			n++
		}
	}
	return n
}

// Shutdown force-closes every client, closes the listening socket and waits
// for all connection goroutines to finish. It is safe to call more than once.
// The returned error only reports problems closing the listener.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.stopping {
		started := l.started
		l.mu.Unlock()
		if started {
			return l.wait(ctx)
		}
		return nil
	}
	l.stopping = true
	started := l.started
	conns := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	pending := 0
	for _, c := range conns {
		pending += c.Pending()
	}
	l.log.Info().Int("clients", len(conns)).Int("undelivered", pending).Msg("terminating clients")
	for _, c := range conns {
		if c.State() != StateClosed {
			c.setState(StateClosing)
			_ = c.ws.CloseNow()
		}
	}
	l.cancel()
	if !started {
		return nil
	}
	var closeErr error
	if err := l.srv.Close(); err != nil {
		closeErr = fmt.Errorf("close %s listener: %w", l.role, err)
	}
	if err := l.wait(ctx); err != nil {
		return errors.Join(closeErr, err)
	}
	l.log.Info().Msg("listener closed")
	return closeErr
}

func (l *Listener) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-l.serveDone
		l.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %s listener: %w", l.role, ctx.Err())
	}
}

func (l *Listener) snapshot() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		out = append(out, c)
	}
	return out
}

// add registers c and marks it open so broadcasts reach it as soon as it is
// counted. Frames queued before the writer starts are kept in the outbox.
func (l *Listener) add(c *Conn) bool {
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return false
	}
	c.setState(StateOpen)
	l.conns[c.ID] = c
	l.connWG.Add(1)
	n := len(l.conns)
	l.mu.Unlock()
	l.counted(n)
	return true
}

func (l *Listener) remove(c *Conn) {
	l.mu.Lock()
	delete(l.conns, c.ID)
	n := len(l.conns)
	l.mu.Unlock()
	l.counted(n)
	l.connWG.Done()
}

func (l *Listener) counted(n int) {
	metrics.SetConnections(string(l.role), n)
	if l.opts.OnCount != nil {
		l.opts.OnCount(l.role, n)
	}
}

// readLimit maps MaxMessageBytes onto coder/websocket, where -1 disables the
// limit and leaving it unset would keep the library's 32 KiB default.
func (l *Listener) readLimit() int64 {
	if l.opts.MaxMessageBytes <= 0 {
		return -1
	}
	return l.opts.MaxMessageBytes
}

func (l *Listener) acceptOptions() *websocket.AcceptOptions {
	for _, o := range l.opts.AllowedOrigins {
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: l.opts.AllowedOrigins}
}

func (l *Listener) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, l.acceptOptions())
	if err != nil {
		l.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("accept failed")
		return
	}
	ws.SetReadLimit(l.readLimit())
	c := newConn(uuid.NewString(), l.role, r.RemoteAddr, ws, l.outType)
	if !l.add(c) {
		_ = ws.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer l.remove(c)
	fault.Guard(l.opts.OnFault, string(l.role)+"/conn", func() { l.run(c) })
}

// run owns a connection from open to closed.
func (l *Listener) run(c *Conn) {
	log := l.log.With().Str("conn_id", c.ID).Str("remote_addr", c.RemoteAddr).Logger()
	ctx, cancel := context.WithCancel(l.ctx)
	defer cancel()

	writerDone := make(chan struct{})
	fault.Go(l.opts.OnFault, string(l.role)+"/writer", func() {
		defer close(writerDone)
		if err := c.writeLoop(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("write failed")
			_ = c.ws.CloseNow()
		}
	})
	log.Info().Msg("client connected")

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				log.Debug().Msg("connection terminated")
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				log.Info().Msg("client disconnected")
			default:
				log.Warn().Err(err).Msg("client error")
			}
			break
		}
		metrics.ObserveFrame(string(l.role), len(data))
		fault.Guard(l.opts.OnFault, string(l.role)+"/message", func() {
			l.onMessage(ctx, c, typ, data)
		})
	}

	c.setState(StateClosing)
	cancel()
	<-writerDone
	_ = c.ws.CloseNow()
	c.setState(StateClosed)
}
