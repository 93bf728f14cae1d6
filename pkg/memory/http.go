package memory

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handlers binds the Memory Service's gin routes for working, episodic,
// semantic, and procedural memory (§4.4-§4.6).
type Handlers struct {
	svc *Service
}

// NewHandlers constructs the Memory HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// Register wires every memory route onto router.
func (h *Handlers) Register(router gin.IRouter) {
	router.PUT("/v1/memory/working/:planId/:key", h.upsertWorking)
	router.GET("/v1/memory/working/:planId/:key", h.getWorking)
	router.DELETE("/v1/memory/working/:planId/:key", h.deleteWorkingKey)
	router.DELETE("/v1/memory/working/:planId", h.deleteWorkingPlan)

	router.POST("/v1/memory/episodic", h.appendEpisodic)
	router.GET("/v1/memory/episodic/recent", h.recentEpisodic)
	router.GET("/v1/memory/episodic/search", h.searchEpisodic)

	router.POST("/v1/memory/semantic", h.upsertSemantic)
	router.POST("/v1/memory/semantic/search", h.searchSemantic)

	router.POST("/v1/memory/procedural", h.upsertProcedural)
	router.GET("/v1/memory/procedural/search", h.searchProcedural)

	router.GET("/health", h.health)
}

func (h *Handlers) upsertWorking(c *gin.Context) {
	var body struct {
		Value any `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.UpsertWorking(c.Request.Context(), scopeFromHeaders(c), c.Param("planId"), c.Param("key"), body.Value)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) getWorking(c *gin.Context) {
	rec, err := h.svc.GetWorking(c.Request.Context(), scopeFromHeaders(c), c.Param("planId"), c.Param("key"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) deleteWorkingKey(c *gin.Context) {
	deleted, err := h.svc.DeleteWorkingKey(c.Request.Context(), scopeFromHeaders(c), c.Param("planId"), c.Param("key"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted})
}

func (h *Handlers) deleteWorkingPlan(c *gin.Context) {
	count, err := h.svc.DeleteWorkingPlan(c.Request.Context(), scopeFromHeaders(c), c.Param("planId"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count_deleted": count})
}

func (h *Handlers) appendEpisodic(c *gin.Context) {
	var req EpisodicAppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := scopeFromHeaders(c)
	if v := c.Query("user_id"); v != "" {
		scope.UserID = v
	}
	rec, err := h.svc.AppendEpisodic(c.Request.Context(), scope, req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) recentEpisodic(c *gin.Context) {
	scope := scopeFromHeaders(c)
	if v := c.Query("user_id"); v != "" {
		scope.UserID = v
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.svc.RecentEpisodic(c.Request.Context(), scope, c.Query("agent_id"), limit)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *Handlers) searchEpisodic(c *gin.Context) {
	scope := scopeFromHeaders(c)
	if v := c.Query("user_id"); v != "" {
		scope.UserID = v
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.svc.SearchEpisodic(c.Request.Context(), scope, c.Query("agent_id"), c.Query("q"), limit)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *Handlers) upsertSemantic(c *gin.Context) {
	var req SemanticUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := scopeFromHeaders(c)
	if v := c.Query("user_id"); v != "" {
		scope.UserID = v
	}
	rec, err := h.svc.UpsertSemantic(c.Request.Context(), scope, req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) searchSemantic(c *gin.Context) {
	var req SemanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := scopeFromHeaders(c)
	if v := c.Query("user_id"); v != "" {
		scope.UserID = v
	}
	out, err := h.svc.SearchSemantic(c.Request.Context(), scope, req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *Handlers) upsertProcedural(c *gin.Context) {
	var req ProceduralUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.UpsertProcedural(c.Request.Context(), scopeFromHeaders(c), req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) searchProcedural(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.svc.SearchProcedural(c.Request.Context(), scopeFromHeaders(c), c.Query("agent_id"), c.Query("q"), limit)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
