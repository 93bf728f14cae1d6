package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

type subscription struct {
	subID      string
	patterns   []string
	queueGroup string
	handler    Handler
}

// MemoryAdapter is the in-process bus backend. Subscriptions are kept in a
// map keyed by subscription id; matching is O(#subscriptions) per publish,
// which is acceptable given the small fan-out the platform expects. The
// subscription table is mutated only on Subscribe/Unsubscribe; per-message
// delivery reads a snapshot taken under a read lock, so handlers never run
// while the lock is held. Publish returns once every invoked handler has
// returned.
type MemoryAdapter struct {
	mu        sync.RWMutex
	connected bool
	subs      map[string]*subscription

	// groupMu guards groupCursors, the per-group round-robin position.
	// Kept separate from mu so cursor advancement never contends with
	// subscription-table reads.
	groupMu      sync.Mutex
	groupCursors map[string]int
}

// NewMemoryAdapter constructs a ready-to-Connect in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		subs:         make(map[string]*subscription),
		groupCursors: make(map[string]int),
	}
}

func (a *MemoryAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *MemoryAdapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.subs = make(map[string]*subscription)
	return nil
}

func (a *MemoryAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *MemoryAdapter) Subscribe(_ context.Context, subID string, patterns []string, queueGroup string, handler Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return soormaerrors.ErrAdapterUnavailable
	}
	a.subs[subID] = &subscription{
		subID:      subID,
		patterns:   append([]string(nil), patterns...),
		queueGroup: queueGroup,
		handler:    handler,
	}
	return nil
}

func (a *MemoryAdapter) Unsubscribe(_ context.Context, subID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs, subID)
	return nil
}

// Publish fans a message out to every matching broadcast subscriber and, for
// each queue group that has at least one matching member, to exactly one
// member chosen by a deterministic per-group round-robin cursor over the
// group's matching members ordered by subscription id. Handlers
// run concurrently; a handler panic or error is caught and logged, never
// propagated to the caller.
func (a *MemoryAdapter) Publish(ctx context.Context, topic string, payload []byte) error {
	a.mu.RLock()
	if !a.connected {
		a.mu.RUnlock()
		return soormaerrors.ErrAdapterUnavailable
	}

	var broadcast []*subscription
	groups := make(map[string][]*subscription)
	for _, s := range a.subs {
		if !anyMatch(s.patterns, topic) {
			continue
		}
		if s.queueGroup == "" {
			broadcast = append(broadcast, s)
			continue
		}
		groups[s.queueGroup] = append(groups[s.queueGroup], s)
	}
	a.mu.RUnlock()

	var wg sync.WaitGroup
	deliver := func(s *subscription) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("bus handler panicked", "sub_id", s.subID, "topic", topic, "recover", r)
				}
			}()
			if err := s.handler(ctx, topic, payload); err != nil {
				slog.Error("bus handler returned error", "sub_id", s.subID, "topic", topic, "error", err)
			}
		}()
	}

	for _, s := range broadcast {
		deliver(s)
	}
	for group, members := range groups {
		// Map iteration order is random; sort so the cursor indexes a stable
		// member order.
		sort.Slice(members, func(i, j int) bool { return members[i].subID < members[j].subID })
		picked := a.pickRoundRobin(group, len(members))
		deliver(members[picked])
	}

	wg.Wait()
	return nil
}

// pickRoundRobin returns the next index in [0, n) for group, advancing its
// cursor. The cursor is keyed by group name alone (not by topic), matching
// the deterministic, topic-independent round robin the spec requires.
func (a *MemoryAdapter) pickRoundRobin(group string, n int) int {
	a.groupMu.Lock()
	defer a.groupMu.Unlock()
	cursor := a.groupCursors[group]
	idx := cursor % n
	a.groupCursors[group] = cursor + 1
	return idx
}
