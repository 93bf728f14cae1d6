// Package bus defines the pluggable pub/sub capability set the Event
// Service consumes (Adapter) and its two implementations: an in-process
// MemoryAdapter and a NATSAdapter. Topic pattern matching and queue-group
// round robin are shared semantics both variants must honor identically.
package bus

import (
	"context"
	"strings"
)

// Handler is invoked for every envelope delivered to a subscription. The
// first argument is the concrete topic the message was published to (with
// any transport prefix already stripped). Any error the handler returns is
// logged by the adapter, never propagated to the publisher.
type Handler func(ctx context.Context, matchedTopic string, payload []byte) error

// Adapter is the capability set the Event Service depends on. Both
// MemoryAdapter and NATSAdapter satisfy it and the Event Service treats them
// identically — backend selection is a startup-time configuration enum.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler against the given topic patterns under
	// subID. When queueGroup is non-empty, the adapter delivers each
	// matching message to exactly one subscription sharing that group
	// name; broadcast subscribers (empty queueGroup) always receive every
	// matching message independently of any group delivery.
	Subscribe(ctx context.Context, subID string, patterns []string, queueGroup string, handler Handler) error
	Unsubscribe(ctx context.Context, subID string) error
}

// matchTopic reports whether topic (a dot-separated subject) matches
// pattern under the rules in §4.1:
//   - tokens are '.'-separated
//   - '*' matches exactly one token
//   - '>' matches one or more trailing tokens and is legal only as the
//     final token
//   - literal tokens must match exactly
func matchTopic(pattern, topic string) bool {
	pTokens := strings.Split(pattern, ".")
	tTokens := strings.Split(topic, ".")

	for i, pt := range pTokens {
		if pt == ">" {
			// '>' must be the final pattern token and requires at least
			// one trailing token to match.
			return i < len(tTokens)
		}
		if i >= len(tTokens) {
			return false
		}
		if pt == "*" {
			continue
		}
		if pt != tTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(tTokens)
}

// anyMatch reports whether topic matches at least one of patterns.
func anyMatch(patterns []string, topic string) bool {
	for _, p := range patterns {
		if matchTopic(p, topic) {
			return true
		}
	}
	return false
}
