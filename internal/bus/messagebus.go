package bus

import (
	"context"
	"log/slog"
	"sync"
)

// queueDepth bounds the inbound/outbound message queues, matching the
// EventBus mailbox's bounded-queue-with-drop discipline (§5) rather than
// letting a stalled channel adapter or agent runner grow memory
// unbounded.
const queueDepth = 1024

// MessageBus adapts EventBus's pull-based subscription (C1's
// subscribe() -> (subscription_id, pull_handle) contract) to the
// push-style EventPublisher callers outside the WS gateway expect:
// channel adapters and RPC method handlers just want to fire a callback
// on Broadcast, not manage a channel themselves. Internally there is
// still exactly one fan-out implementation (EventBus); MessageBus only
// adds the goroutine that drains a subscription into its handler.
//
// It also implements MessageRouter: the single inbound/outbound queue
// every channel adapter (internal/channels) publishes into and the
// agent runner/channel manager consume from, so channels never need a
// direct reference to each other.
type MessageBus struct {
	inner *EventBus

	mu     sync.Mutex
	cancel map[string]func()

	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// NewMessageBus constructs a MessageBus backed by a fresh EventBus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inner:    NewEventBus(),
		cancel:   make(map[string]func()),
		inbound:  make(chan InboundMessage, queueDepth),
		outbound: make(chan OutboundMessage, queueDepth),
	}
}

var _ EventPublisher = (*MessageBus)(nil)

// Subscribe registers handler to be invoked for every event broadcast
// after this call, until Unsubscribe(id) is called.
func (m *MessageBus) Subscribe(id string, handler EventHandler) {
	_, ch := m.inner.Subscribe()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				handler(evt)
			case <-done:
				return
			}
		}
	}()

	m.mu.Lock()
	if old, ok := m.cancel[id]; ok {
		old()
	}
	m.cancel[id] = func() { close(done) }
	m.mu.Unlock()
}

// Unsubscribe stops delivering events to id's handler.
func (m *MessageBus) Unsubscribe(id string) {
	m.mu.Lock()
	cancel, ok := m.cancel[id]
	delete(m.cancel, id)
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Broadcast fans event out to every subscriber, non-blocking per C1.
func (m *MessageBus) Broadcast(event Event) {
	m.inner.Publish(event.Name, event.Payload)
}

var _ MessageRouter = (*MessageBus)(nil)

// PublishInbound enqueues a message received by a channel adapter for the
// agent runner to consume. Non-blocking: a full queue drops the message
// and logs, the same discipline EventBus.Publish uses.
func (m *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case m.inbound <- msg:
	default:
		slog.Warn("inbound message queue full, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message is available or ctx is canceled.
func (m *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-m.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply for the channel manager's dispatch
// loop to deliver to the originating channel.
func (m *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case m.outbound <- msg:
	default:
		slog.Warn("outbound message queue full, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// SubscribeOutbound blocks until an outbound message is available or ctx
// is canceled.
func (m *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-m.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
