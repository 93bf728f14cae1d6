package plan

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers binds the Plan/Task routes (§6.3's /v1/plans, /v1/tasks surface).
type Handlers struct {
	svc *Service
}

// NewHandlers constructs the Plan/Task HTTP handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// Register wires every plan/task route onto router.
func (h *Handlers) Register(router gin.IRouter) {
	router.POST("/v1/plans", h.createPlan)
	router.GET("/v1/plans", h.listPlans)
	router.GET("/v1/plans/:planId", h.getPlan)
	router.GET("/v1/plans/by-correlation/:correlationId", h.getPlanByCorrelation)
	router.PATCH("/v1/plans/:planId", h.updatePlan)
	router.DELETE("/v1/plans/:planId", h.deletePlan)

	router.POST("/v1/tasks", h.upsertTask)
	router.GET("/v1/tasks/:taskId", h.getTask)
	router.PATCH("/v1/tasks/:taskId", h.updateTask)
	router.DELETE("/v1/tasks/:taskId", h.deleteTask)
	router.GET("/v1/tasks/by-subtask/:subTaskId", h.getTaskBySubtask)
}

func (h *Handlers) createPlan(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.CreatePlan(c.Request.Context(), tenantID(c), userID(c), req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) listPlans(c *gin.Context) {
	f := ListFilter{
		Status: Status(c.Query("status")),
		UserID: c.Query("user_id"),
	}
	out, err := h.svc.ListPlans(c.Request.Context(), tenantID(c), f)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func (h *Handlers) getPlan(c *gin.Context) {
	p, err := h.svc.GetPlanContext(c.Request.Context(), tenantID(c), c.Param("planId"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) getPlanByCorrelation(c *gin.Context) {
	p, err := h.svc.GetPlanByCorrelation(c.Request.Context(), tenantID(c), c.Param("correlationId"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) updatePlan(c *gin.Context) {
	var body struct {
		Status           *Status        `json:"status"`
		State            map[string]any `json:"state"`
		CurrentState     *string        `json:"current_state"`
		AddCorrelationID *string        `json:"add_correlation_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.svc.UpdatePlanState(c.Request.Context(), tenantID(c), c.Param("planId"), func(ctx *Context) error {
		if body.Status != nil {
			ctx.Status = *body.Status
		}
		if body.State != nil {
			ctx.State = body.State
		}
		if body.CurrentState != nil {
			ctx.CurrentState = *body.CurrentState
		}
		if body.AddCorrelationID != nil {
			ctx.CorrelationIDs = append(ctx.CorrelationIDs, *body.AddCorrelationID)
		}
		return nil
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) deletePlan(c *gin.Context) {
	if err := h.svc.DeletePlan(c.Request.Context(), tenantID(c), c.Param("planId")); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) upsertTask(c *gin.Context) {
	var req TaskUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.svc.UpsertTaskContext(c.Request.Context(), tenantID(c), userID(c), req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handlers) getTask(c *gin.Context) {
	t, err := h.svc.GetTaskContext(c.Request.Context(), tenantID(c), c.Param("taskId"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handlers) updateTask(c *gin.Context) {
	var body struct {
		Data       map[string]any `json:"data"`
		State      map[string]any `json:"state"`
		AddSubTask *string        `json:"add_sub_task"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.svc.UpdateTaskContext(c.Request.Context(), tenantID(c), c.Param("taskId"), func(tc *TaskContext) error {
		if body.Data != nil {
			tc.Data = body.Data
		}
		if body.State != nil {
			tc.State = body.State
		}
		if body.AddSubTask != nil {
			tc.SubTasks = append(tc.SubTasks, *body.AddSubTask)
		}
		return nil
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handlers) deleteTask(c *gin.Context) {
	if err := h.svc.DeleteTaskContext(c.Request.Context(), tenantID(c), c.Param("taskId")); err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) getTaskBySubtask(c *gin.Context) {
	t, err := h.svc.GetTaskBySubtask(c.Request.Context(), tenantID(c), c.Param("subTaskId"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
