package eventsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soorma-platform/soorma/pkg/bus"
)

func newConnectedAdapter(t *testing.T) *bus.MemoryAdapter {
	a := bus.NewMemoryAdapter()
	require.NoError(t, a.Connect(context.Background()))
	return a
}

func TestConnectionManager_PublishDeliversToMatchingConnection(t *testing.T) {
	adapter := newConnectedAdapter(t)
	mgr := NewConnectionManager(adapter, 16, time.Minute)

	conn, teardown, err := mgr.Connect(context.Background(), []string{"action-requests"}, "worker-1", "")
	require.NoError(t, err)
	defer teardown()

	require.NoError(t, mgr.Publish(context.Background(), "action-requests", []byte(`{"id":"E1"}`)))

	item, ok := conn.queue.pop()
	require.True(t, ok)
	require.JSONEq(t, `{"id":"E1"}`, string(item))
}

func TestConnectionManager_QueueGroupLoadBalances(t *testing.T) {
	adapter := newConnectedAdapter(t)
	mgr := NewConnectionManager(adapter, 16, time.Minute)

	c1, teardown1, err := mgr.Connect(context.Background(), []string{"action-requests"}, "w-A", "workers")
	require.NoError(t, err)
	defer teardown1()
	c2, teardown2, err := mgr.Connect(context.Background(), []string{"action-requests"}, "w-B", "workers")
	require.NoError(t, err)
	defer teardown2()

	for i := 0; i < 10; i++ {
		require.NoError(t, mgr.Publish(context.Background(), "action-requests", []byte(`{}`)))
	}

	count := func(c *connection) int {
		n := 0
		for {
			if _, ok := c.queue.pop(); !ok {
				break
			}
			n++
		}
		return n
	}

	require.Equal(t, 5, count(c1))
	require.Equal(t, 5, count(c2))
}

func TestConnectionManager_TeardownUnsubscribes(t *testing.T) {
	adapter := newConnectedAdapter(t)
	mgr := NewConnectionManager(adapter, 16, time.Minute)

	conn, teardown, err := mgr.Connect(context.Background(), []string{"action-requests"}, "worker-1", "")
	require.NoError(t, err)
	teardown()

	require.NoError(t, mgr.Publish(context.Background(), "action-requests", []byte(`{}`)))
	_, ok := conn.queue.pop()
	require.False(t, ok)

	require.Empty(t, mgr.ActiveConnections())
}
