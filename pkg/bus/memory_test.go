package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryAdapter_BroadcastDeliversToAll(t *testing.T) {
	a := NewMemoryAdapter()
	require.NoError(t, a.Connect(context.Background()))

	var got1, got2 atomic.Int32
	require.NoError(t, a.Subscribe(context.Background(), "s1", []string{"action-requests"}, "", func(_ context.Context, _ string, _ []byte) error {
		got1.Add(1)
		return nil
	}))
	require.NoError(t, a.Subscribe(context.Background(), "s2", []string{"action-requests"}, "", func(_ context.Context, _ string, _ []byte) error {
		got2.Add(1)
		return nil
	}))

	require.NoError(t, a.Publish(context.Background(), "action-requests", []byte("{}")))

	require.EqualValues(t, 1, got1.Load())
	require.EqualValues(t, 1, got2.Load())
}

func TestMemoryAdapter_QueueGroupRoundRobin(t *testing.T) {
	a := NewMemoryAdapter()
	require.NoError(t, a.Connect(context.Background()))

	var mu sync.Mutex
	counts := map[string]int{"w1": 0, "w2": 0}
	record := func(name string) Handler {
		return func(_ context.Context, _ string, _ []byte) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		}
	}
	require.NoError(t, a.Subscribe(context.Background(), "w1", []string{"action-requests"}, "workers", record("w1")))
	require.NoError(t, a.Subscribe(context.Background(), "w2", []string{"action-requests"}, "workers", record("w2")))

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Publish(context.Background(), "action-requests", []byte("{}")))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 5, counts["w1"])
	require.Equal(t, 5, counts["w2"])
}

func TestMemoryAdapter_UnsubscribeStopsDelivery(t *testing.T) {
	a := NewMemoryAdapter()
	require.NoError(t, a.Connect(context.Background()))

	var count atomic.Int32
	require.NoError(t, a.Subscribe(context.Background(), "s1", []string{"action-requests"}, "", func(_ context.Context, _ string, _ []byte) error {
		count.Add(1)
		return nil
	}))
	require.NoError(t, a.Unsubscribe(context.Background(), "s1"))
	require.NoError(t, a.Publish(context.Background(), "action-requests", []byte("{}")))

	require.EqualValues(t, 0, count.Load())
}

func TestMemoryAdapter_PublishBeforeConnectFails(t *testing.T) {
	a := NewMemoryAdapter()
	err := a.Publish(context.Background(), "action-requests", []byte("{}"))
	require.Error(t, err)
}
