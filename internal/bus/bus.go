// Package bus decouples the two bridge endpoints with a two-topic in-process
// publish/subscribe channel.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/devbridge/internal/fault"
)

// Topic names a logical channel on the bus.
type Topic string

const (
	// TopicCommand carries raw front-end messages towards the runtime.
	TopicCommand Topic = "command"
	// TopicResult carries raw front-end messages unwrapped from the runtime.
	TopicResult Topic = "result"
)

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("bus: closed")

// Handler processes one message. Returned errors are logged; the message is
// never redelivered.
type Handler func(ctx context.Context, payload []byte) error

// Bus is the publish/subscribe contract the endpoints depend on.
type Bus interface {
	Publish(topic Topic, payload []byte) error
	Subscribe(ctx context.Context, topic Topic, h Handler) error
	Close() error
}

// GoChannel is a Bus backed by watermill's in-memory gochannel pub/sub.
// Messages published with no subscriber are dropped, and Publish returns only
// after every subscriber has handled the message, which keeps a single
// publisher's messages in order.
type GoChannel struct {
	ps      *gochannel.GoChannel
	log     zerolog.Logger
	onFault fault.Handler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a GoChannel bus. onFault receives panics raised by handlers.
func New(log zerolog.Logger, onFault fault.Handler) *GoChannel {
	ps := gochannel.NewGoChannel(gochannel.Config{
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, NewLogger(log))
	return &GoChannel{ps: ps, log: log, onFault: onFault}
}

// Publish delivers payload to every current subscriber of topic.
func (b *GoChannel) Publish(topic Topic, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	msg := message.NewMessage(watermill.NewShortUUID(), payload)
	if err := b.ps.Publish(string(topic), msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe runs h for every message on topic until ctx is done or the bus
// is closed. Messages are handled one at a time in publish order.
func (b *GoChannel) Subscribe(ctx context.Context, topic Topic, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	ch, err := b.ps.Subscribe(ctx, string(topic))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ch {
			b.handle(topic, msg, h)
		}
	}()
	return nil
}

func (b *GoChannel) handle(topic Topic, msg *message.Message, h Handler) {
	defer msg.Ack()
	fault.Guard(b.onFault, "bus/"+string(topic), func() {
		if err := h(msg.Context(), msg.Payload); err != nil {
			b.log.Warn().Err(err).Str("topic", string(topic)).Msg("handler failed")
		}
	})
}

// Close stops delivery and waits for running handlers to return.
func (b *GoChannel) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	err := b.ps.Close()
	b.wg.Wait()
	return err
}

func (b *GoChannel) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
