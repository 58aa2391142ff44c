package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// mailboxDepth is the bounded per-subscriber queue depth (§5).
const mailboxDepth = 1024

// EventBus is a process-wide, in-memory fan-out (C1). Publish is
// non-blocking: a full subscriber mailbox drops the event and increments
// that subscriber's drop counter rather than blocking the publisher.
// Delivery is at-most-once per subscriber with per-subscriber ordering
// preserved; cross-subscriber ordering is not guaranteed.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	seq         atomic.Uint64
}

type subscriber struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a new subscriber and returns its id and a channel to
// pull events from. Call Unsubscribe when the subscriber goes away.
func (b *EventBus) Subscribe() (string, <-chan Event) {
	id := subscriptionID(b.seq.Add(1))
	sub := &subscriber{id: id, ch: make(chan Event, mailboxDepth)}

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish fans an event out to every current subscriber, non-blocking.
func (b *EventBus) Publish(topic string, payload interface{}) {
	evt := Event{Name: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- evt:
		default:
			n := sub.dropped.Add(1)
			slog.Warn("event bus mailbox full, dropping event", "subscriber", sub.id, "topic", topic, "dropped_total", n)
		}
	}
}

// Dropped returns the number of events dropped for a subscriber due to a
// full mailbox, or 0 if the subscriber is unknown.
func (b *EventBus) Dropped(id string) uint64 {
	b.mu.RLock()
	sub, ok := b.subscribers[id]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return sub.dropped.Load()
}

func subscriptionID(n uint64) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "sub-0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append(buf, alphabet[n%uint64(len(alphabet))])
		n /= uint64(len(alphabet))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return "sub-" + string(buf)
}

// Topic name constants (§4.1).
const (
	TopicStreamStart = "stream.start"
	TopicStreamChunk = "stream.chunk"
	TopicStreamEnd   = "stream.end"
	TopicStreamError = "stream.error"

	TopicTaskUpdated = "task.updated"

	TopicPresenceConnected = "presence.connected"
	TopicHeartbeat         = "heartbeat"

	TopicNodeExecPendingApproval = "node.execution.pending_approval"
	TopicNodeExecApproved        = "node.execution.approved"
	TopicNodeExecRejected        = "node.execution.rejected"
	TopicNodeExecStarted         = "node.execution.started"
	TopicNodeExecCompleted       = "node.execution.completed"
	TopicNodeExecFailed          = "node.execution.failed"
)

// Publisher is the narrow interface consumers depend on so they can be
// tested against a fake bus.
type Publisher interface {
	Publish(topic string, payload interface{})
}

var _ Publisher = (*EventBus)(nil)
