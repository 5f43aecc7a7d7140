// Package fault turns panics in bridge goroutines into reports a supervisor
// can act on.
package fault

import (
	"fmt"
	"runtime/debug"
)

// Handler receives a recovered panic and the goroutine it came from.
type Handler func(f Fault)

// Fault describes a recovered panic.
type Fault struct {
	Source string
	Value  any
	Stack  []byte
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s: panic: %v", f.Source, f.Value)
}

// Guard runs fn. A panic inside fn is recovered and passed to h; with a nil h
// the panic is re-raised.
func Guard(h Handler, source string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			if h == nil {
				panic(v)
			}
			h(Fault{Source: source, Value: v, Stack: debug.Stack()})
		}
	}()
	fn()
}

// Go runs fn on a new goroutine under Guard.
func Go(h Handler, source string, fn func()) {
	go Guard(h, source, fn)
}
