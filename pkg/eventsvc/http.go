package eventsvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soorma-platform/soorma/pkg/envelope"
	"github.com/soorma-platform/soorma/pkg/soormaerrors"
)

// Handlers binds the Event Service's gin routes: the publish endpoint, the
// hand-rolled SSE stream, and the health/debug endpoints.
type Handlers struct {
	manager *ConnectionManager
}

// NewHandlers constructs the Event Service HTTP handlers.
func NewHandlers(manager *ConnectionManager) *Handlers {
	return &Handlers{manager: manager}
}

// Register wires every Event Service route onto router.
func (h *Handlers) Register(router gin.IRouter) {
	router.POST("/v1/events/publish", h.publish)
	router.GET("/v1/events/stream", h.stream)
	router.GET("/health", h.health)
	router.GET("/connections", h.connections)
}

type publishRequest struct {
	Event envelope.Envelope `json:"event"`
}

func (h *Handlers) publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	env := req.Event
	env.Normalize()
	if err := env.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode envelope"})
		return
	}

	if err := h.manager.Publish(c.Request.Context(), string(env.Topic), payload); err != nil {
		if err == soormaerrors.ErrAdapterUnavailable {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "adapter not connected"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "event_id": env.ID, "message": "published"})
}

// stream opens an SSE stream. agent_name, if present, is used as the queue
// group; otherwise agent_id is — this enables N instances of the same
// logical agent to load-balance while preserving broadcast semantics when
// names differ (§4.2).
func (h *Handlers) stream(c *gin.Context) {
	topicsParam := c.Query("topics")
	agentID := c.Query("agent_id")
	agentName := c.Query("agent_name")

	if topicsParam == "" || agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topics and agent_id are required"})
		return
	}
	topics := strings.Split(topicsParam, ",")

	ctx := c.Request.Context()
	conn, teardown, err := h.manager.Connect(ctx, topics, agentID, agentName)
	if err != nil {
		if err == soormaerrors.ErrAdapterUnavailable {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "adapter not connected"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer teardown()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "connected", gin.H{
		"connection_id": conn.id,
		"topics":        topics,
		"agent_id":      agentID,
	})
	w.Flush()

	heartbeat := time.NewTicker(h.manager.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			writeSSE(w, "disconnected", gin.H{"connection_id": conn.id})
			w.Flush()
			return
		case <-conn.queue.notify:
			for {
				item, ok := conn.queue.pop()
				if !ok {
					break
				}
				writeRawSSE(w, "message", item)
			}
			w.Flush()
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", gin.H{"connection_id": conn.id})
			w.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	writeRawSSE(w, event, b)
}

func writeRawSSE(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"connected":      h.manager.adapter.IsConnected(),
		"active_streams": len(h.manager.ActiveConnections()),
	})
}

func (h *Handlers) connections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connections": h.manager.ActiveConnections()})
}
