package endpoint

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Role identifies which side of the bridge a connection belongs to.
type Role string

const (
	RoleRuntime  Role = "runtime"
	RoleFrontend Role = "frontend"
)

// State is the lifecycle state of a client connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one client WebSocket. Outbound frames go through an unbounded FIFO
// drained by a dedicated writer so broadcasting never blocks.
type Conn struct {
	ID         string
	Role       Role
	RemoteAddr string

	ws    *websocket.Conn
	typ   websocket.MessageType
	state atomic.Int32

	mu    sync.Mutex
	queue [][]byte
	wake  chan struct{}
}

func newConn(id string, role Role, remote string, ws *websocket.Conn, typ websocket.MessageType) *Conn {
	return &Conn{
		ID:         id,
		Role:       role,
		RemoteAddr: remote,
		ws:         ws,
		typ:        typ,
		wake:       make(chan struct{}, 1),
	}
}

// State reports the connection state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Send queues b for delivery. It reports false, without queueing, when the
// connection is not open.
func (c *Conn) Send(b []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	c.mu.Lock()
	c.queue = append(c.queue, b)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued frames not yet written.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Conn) pop() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	b := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		c.queue = nil
	}
	return b, true
}

// writeLoop drains the queue until ctx is done or a write fails.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
		for {
			b, ok := c.pop()
			if !ok {
				break
			}
			if err := c.ws.Write(ctx, c.typ, b); err != nil {
				return err
			}
		}
	}
}
