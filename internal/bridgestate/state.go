// Package bridgestate tracks the bridge lifecycle so health checks and
// external supervisors can observe it.
package bridgestate

import (
	"sync"
	"sync/atomic"
	"time"
)

// Lifecycle statuses.
const (
	StatusNotReady     = "not_ready"
	StatusReady        = "ready"
	StatusShuttingDown = "shutting_down"
	StatusStopped      = "stopped"
)

// State is a snapshot of the bridge lifecycle. All fields are updated
// together so callers always observe a consistent snapshot.
type State struct {
	Status          string    `json:"status"`
	ShuttingDown    bool      `json:"shutting_down"`
	RuntimeClients  int       `json:"runtime_clients"`
	FrontendClients int       `json:"frontend_clients"`
	OutboundSeq     uint32    `json:"outbound_seq"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store defines how the state is kept. Implementations may store state in
// memory or in an external service such as Redis.
type Store interface {
	Load() State
	Store(State)
}

// memoryStore implements Store using an atomic.Value.
type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() *memoryStore {
	ms := &memoryStore{}
	ms.v.Store(State{Status: StatusNotReady})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *memoryStore) Store(s State) {
	m.v.Store(s)
}

// Tracker serializes read-modify-write updates on a Store.
type Tracker struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

// NewTracker wraps s; a nil s selects the memory store. The state is reset to
// not_ready since nothing survives a restart.
func NewTracker(s Store) *Tracker {
	if s == nil {
		s = NewMemoryStore()
	}
	t := &Tracker{store: s, now: time.Now}
	t.update(func(st *State) { *st = State{Status: StatusNotReady} })
	return t
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State { return t.store.Load() }

// SetStatus updates the status string.
func (t *Tracker) SetStatus(status string) {
	t.update(func(st *State) { st.Status = status })
}

// StartShutdown marks the bridge as shutting down.
func (t *Tracker) StartShutdown() {
	t.update(func(st *State) {
		st.ShuttingDown = true
		st.Status = StatusShuttingDown
	})
}

// SetClients records the open connection count of one endpoint.
func (t *Tracker) SetClients(runtime bool, n int) {
	t.update(func(st *State) {
		if runtime {
			st.RuntimeClients = n
		} else {
			st.FrontendClients = n
		}
	})
}

// SetOutboundSeq records the last sequence number sent to the runtime.
func (t *Tracker) SetOutboundSeq(seq uint32) {
	t.update(func(st *State) { st.OutboundSeq = seq })
}

func (t *Tracker) update(fn func(*State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.store.Load()
	fn(&st)
	st.UpdatedAt = t.now()
	t.store.Store(st)
}
