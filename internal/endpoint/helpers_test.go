package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/devbridge/internal/bus"
)

func testOptions() Options {
	return Options{Addr: "127.0.0.1:0", AllowedOrigins: []string{"*"}, MaxMessageBytes: 1 << 20, Log: zerolog.Nop()}
}

func newTestBus(t *testing.T) *bus.GoChannel {
	t.Helper()
	b := bus.New(zerolog.Nop(), nil)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// collect subscribes to topic and returns a channel of received payloads.
func collect(t *testing.T, b bus.Bus, topic bus.Topic) <-chan string {
	t.Helper()
	ch := make(chan string, 64)
	err := b.Subscribe(context.Background(), topic, func(_ context.Context, p []byte) error {
		ch <- string(p)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return ch
}

func dial(t *testing.T, l *Listener) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws://"+l.Addr().String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, c *websocket.Conn) (websocket.MessageType, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return typ, data
}

func write(t *testing.T, c *websocket.Conn, typ websocket.MessageType, b []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, typ, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectNothing(t *testing.T, ch <-chan string, d time.Duration) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %q", m)
	case <-time.After(d):
	}
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for message")
		return ""
	}
}
