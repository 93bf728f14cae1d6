package eventsvc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soorma-platform/soorma/pkg/bus"
)

// connection tracks one live SSE subscriber. It owns a bounded queue that
// the bus adapter's callback pushes into (never blocking) and that the
// SSE write loop drains.
type connection struct {
	id        string
	agentID   string
	agentName string
	topics    []string
	queue     *boundedQueue
	connectedAt time.Time
}

// ConnectionManager owns the set of live SSE connections and the bus
// adapter they are subscribed through. Grounded on the teacher's
// events.ConnectionManager: a map guarded by its own sync.RWMutex, snapshot
// reads for anything that fans out to many connections.
type ConnectionManager struct {
	adapter        bus.Adapter
	maxQueueSize   int
	heartbeatEvery time.Duration

	mu          sync.RWMutex
	connections map[string]*connection
}

// NewConnectionManager constructs a manager bound to adapter.
func NewConnectionManager(adapter bus.Adapter, maxQueueSize int, heartbeatEvery time.Duration) *ConnectionManager {
	return &ConnectionManager{
		adapter:        adapter,
		maxQueueSize:   maxQueueSize,
		heartbeatEvery: heartbeatEvery,
		connections:    make(map[string]*connection),
	}
}

// Connect registers a new SSE connection: allocates a bounded queue,
// subscribes it on the bus using queueGroup = agentName if given, else
// agentID (so N instances of the same logical agent load-balance while
// differently-named agents still broadcast independently), and returns the
// connection plus a teardown function.
func (m *ConnectionManager) Connect(ctx context.Context, topics []string, agentID, agentName string) (*connection, func(), error) {
	connID := uuid.NewString()
	queueGroup := agentName
	if queueGroup == "" {
		queueGroup = agentID
	}

	conn := &connection{
		id:          connID,
		agentID:     agentID,
		agentName:   agentName,
		topics:      topics,
		queue:       newBoundedQueue(m.maxQueueSize),
		connectedAt: time.Now().UTC(),
	}

	handler := func(_ context.Context, _ string, payload []byte) error {
		conn.queue.push(payload)
		return nil
	}

	if err := m.adapter.Subscribe(ctx, connID, topics, queueGroup, handler); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.connections[connID] = conn
	m.mu.Unlock()

	teardown := func() {
		if err := m.adapter.Unsubscribe(context.Background(), connID); err != nil {
			slog.Warn("event service: unsubscribe failed", "connection_id", connID, "error", err)
		}
		m.mu.Lock()
		delete(m.connections, connID)
		m.mu.Unlock()
	}

	return conn, teardown, nil
}

// Publish validates nothing itself — the caller validates the envelope —
// and forwards the raw bytes to the adapter.
func (m *ConnectionManager) Publish(ctx context.Context, topic string, payload []byte) error {
	return m.adapter.Publish(ctx, topic, payload)
}

// ActiveConnections returns a snapshot of debug metadata for /connections.
func (m *ConnectionManager) ActiveConnections() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, ConnectionInfo{
			ConnectionID: c.id,
			AgentID:      c.agentID,
			AgentName:    c.agentName,
			Topics:       c.topics,
			ConnectedAt:  c.connectedAt,
			Dropped:      c.queue.droppedCount(),
		})
	}
	return out
}

// ConnectionInfo is the /connections debug DTO.
type ConnectionInfo struct {
	ConnectionID string    `json:"connectionId"`
	AgentID      string    `json:"agentId"`
	AgentName    string    `json:"agentName,omitempty"`
	Topics       []string  `json:"topics"`
	ConnectedAt  time.Time `json:"connectedAt"`
	Dropped      uint64    `json:"dropped"`
}
