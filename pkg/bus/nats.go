package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

// subjectPrefix namespaces every subject this platform uses on a shared
// NATS cluster.
const subjectPrefix = "soorma.events."

func topicToSubject(topic string) string {
	return subjectPrefix + topic
}

func subjectToTopic(subject string) string {
	return strings.TrimPrefix(subject, subjectPrefix)
}

// NATSAdapter is the NATS-backed bus implementation. NATS subject wildcards
// (`*` for one token, `>` for one-or-more trailing tokens) coincide exactly
// with the platform's topic pattern grammar, so pattern matching is
// delegated to the server rather than reimplemented; queue groups map
// directly onto NATS queue subscriptions, which gives this adapter true
// exactly-one-per-group delivery (unlike a non-enforcing NATS client, which
// would be a bug per this platform's contract).
type NATSAdapter struct {
	url string
	nc  *nats.Conn

	mu   sync.Mutex
	subs map[string][]*nats.Subscription
}

// NewNATSAdapter constructs a NATS adapter for the given server URL. Connect
// must be called before use.
func NewNATSAdapter(url string) *NATSAdapter {
	return &NATSAdapter{
		url:  url,
		subs: make(map[string][]*nats.Subscription),
	}
}

func (a *NATSAdapter) Connect(_ context.Context) error {
	nc, err := nats.Connect(
		a.url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Warn("nats connection closed")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	a.mu.Lock()
	a.nc = nc
	a.mu.Unlock()
	return nil
}

// Disconnect drains the connection so in-flight deliveries finish instead of
// being dropped, falling back to a hard close if draining itself fails.
func (a *NATSAdapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	nc := a.nc
	a.nc = nil
	a.subs = make(map[string][]*nats.Subscription)
	a.mu.Unlock()

	if nc == nil {
		return nil
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
	}
	return nil
}

func (a *NATSAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nc != nil && a.nc.IsConnected()
}

func (a *NATSAdapter) Publish(_ context.Context, topic string, payload []byte) error {
	a.mu.Lock()
	nc := a.nc
	a.mu.Unlock()
	if nc == nil {
		return soormaerrors.ErrAdapterUnavailable
	}
	return nc.Publish(topicToSubject(topic), payload)
}

func (a *NATSAdapter) Subscribe(_ context.Context, subID string, patterns []string, queueGroup string, handler Handler) error {
	a.mu.Lock()
	nc := a.nc
	a.mu.Unlock()
	if nc == nil {
		return soormaerrors.ErrAdapterUnavailable
	}

	cb := func(msg *nats.Msg) {
		matchedTopic := subjectToTopic(msg.Subject)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("nats handler panicked", "sub_id", subID, "topic", matchedTopic, "recover", r)
			}
		}()
		if err := handler(context.Background(), matchedTopic, msg.Data); err != nil {
			slog.Error("nats handler returned error", "sub_id", subID, "topic", matchedTopic, "error", err)
		}
	}

	subs := make([]*nats.Subscription, 0, len(patterns))
	for _, pattern := range patterns {
		subject := topicToSubject(pattern)
		var sub *nats.Subscription
		var err error
		if queueGroup != "" {
			sub, err = nc.QueueSubscribe(subject, queueGroup, cb)
		} else {
			sub, err = nc.Subscribe(subject, cb)
		}
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("nats subscribe %q: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	a.mu.Lock()
	a.subs[subID] = subs
	a.mu.Unlock()
	return nil
}

func (a *NATSAdapter) Unsubscribe(_ context.Context, subID string) error {
	a.mu.Lock()
	subs := a.subs[subID]
	delete(a.subs, subID)
	a.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			slog.Warn("nats unsubscribe failed", "sub_id", subID, "error", err)
		}
	}
	return nil
}
