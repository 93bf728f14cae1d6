package agentsdk

import (
	"context"

	"github.com/soorma-platform/soorma/pkg/envelope"
)

// Handler processes one envelope delivered to the agent. A non-nil error is
// logged; the SDK does not retry or nack — agents that need at-least-once
// processing guarantees build that on top via their own idempotency key.
type Handler func(ctx context.Context, env *envelope.Envelope) error

type handlerKey struct {
	topic     envelope.Topic
	eventType string
}

// HandlerTable is a read-only topic×event_type → Handler lookup built once
// at startup via Builder and handed to Run. It is never mutated after
// construction, so no locking is needed on the hot dispatch path.
type HandlerTable struct {
	exact     map[handlerKey]Handler
	topicOnly map[envelope.Topic]Handler
}

// lookup resolves the handler for an incoming envelope: an exact
// topic+type match wins; a topic-only handler (registered with eventType
// "") is the fallback.
func (t *HandlerTable) lookup(env *envelope.Envelope) (Handler, bool) {
	if h, ok := t.exact[handlerKey{topic: env.Topic, eventType: env.Type}]; ok {
		return h, true
	}
	if h, ok := t.topicOnly[env.Topic]; ok {
		return h, true
	}
	return nil, false
}

// Builder constructs a HandlerTable. It is not safe for concurrent use; build
// the whole table on one goroutine at startup, then call Build() once.
type Builder struct {
	exact     map[handlerKey]Handler
	topicOnly map[envelope.Topic]Handler
}

// NewBuilder starts a fresh handler table builder.
func NewBuilder() *Builder {
	return &Builder{
		exact:     make(map[handlerKey]Handler),
		topicOnly: make(map[envelope.Topic]Handler),
	}
}

// On registers a handler for a specific topic and event type.
func (b *Builder) On(topic envelope.Topic, eventType string, h Handler) *Builder {
	b.exact[handlerKey{topic: topic, eventType: eventType}] = h
	return b
}

// OnTopic registers a fallback handler for every event type on a topic that
// has no more specific registration.
func (b *Builder) OnTopic(topic envelope.Topic, h Handler) *Builder {
	b.topicOnly[topic] = h
	return b
}

// Build finalizes the table. The Builder should not be reused afterward.
func (b *Builder) Build() *HandlerTable {
	return &HandlerTable{exact: b.exact, topicOnly: b.topicOnly}
}
