package registry

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handlers binds the Registry Service's gin routes.
type Handlers struct {
	svc *Service
}

// NewHandlers constructs the Registry HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// Register wires every Registry route onto router.
func (h *Handlers) Register(router gin.IRouter) {
	router.POST("/v1/events", h.upsertEvent)
	router.GET("/v1/events", h.listEvents)

	router.POST("/v1/agents", h.upsertAgent)
	router.GET("/v1/agents", h.listAgents)
	router.PUT("/v1/agents/:agentId/heartbeat", h.heartbeat)
	router.POST("/v1/agents/:agentId/heartbeat", h.heartbeat)
	router.DELETE("/v1/agents/:agentId", h.deleteAgent)

	router.GET("/health", h.health)
}

func (h *Handlers) upsertEvent(c *gin.Context) {
	var req EventUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.svc.UpsertEvent(c.Request.Context(), &req.Event)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": out})
}

func (h *Handlers) listEvents(c *gin.Context) {
	f := EventFilter{
		EventName: c.Query("event_name"),
		Topic:     c.Query("topic"),
	}
	out, err := h.svc.ListEvents(c.Request.Context(), f)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h *Handlers) upsertAgent(c *gin.Context) {
	var req AgentUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.svc.UpsertAgent(c.Request.Context(), &req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": out})
}

func (h *Handlers) listAgents(c *gin.Context) {
	includeExpired, _ := strconv.ParseBool(c.Query("include_expired"))
	f := AgentFilter{
		AgentID:        c.Query("agent_id"),
		Name:           c.Query("name"),
		ConsumedEvent:  c.Query("consumed_event"),
		ProducedEvent:  c.Query("produced_event"),
		IncludeExpired: includeExpired,
	}
	out, err := h.svc.ListAgents(c.Request.Context(), f)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": out, "count": len(out)})
}

func (h *Handlers) heartbeat(c *gin.Context) {
	agentID := c.Param("agentId")
	if err := h.svc.Heartbeat(c.Request.Context(), agentID); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) deleteAgent(c *gin.Context) {
	agentID := c.Param("agentId")
	if err := h.svc.DeleteAgent(c.Request.Context(), agentID); err != nil {
		mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
