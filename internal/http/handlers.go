package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/shmbridge/internal/api/middleware"
	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shmbridge/internal/service"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/GriffinCanCode/shmbridge/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// Version is reported by the root endpoint
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *service.Registry
	channel  *channel.Channel
	metrics  *monitoring.Metrics
}

// NewHandlers creates a new handlers instance. metrics may be nil.
func NewHandlers(registry *service.Registry, ch *channel.Channel, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		registry: registry,
		channel:  ch,
		metrics:  metrics,
	}
}

// DiscoverRequest is the body of POST /services/discover
type DiscoverRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// Root handles the root endpoint
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "shmbridge",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":           "healthy",
		"service_registry": h.registry.Stats(),
		"segment":          h.channel.Info(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// ListServices lists all services
func (h *Handlers) ListServices(c *gin.Context) {
	categoryStr := c.Query("category")
	if err := utils.ValidateCategory(categoryStr, false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var category *types.Category
	if categoryStr != "" {
		cat := types.Category(categoryStr)
		category = &cat
	}

	c.JSON(http.StatusOK, gin.H{
		"services": h.registry.List(category),
		"stats":    h.registry.Stats(),
	})
}

// DiscoverServices finds services relevant to a free-text query
func (h *Handlers) DiscoverServices(c *gin.Context) {
	var req DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateQuery(req.Query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	c.JSON(http.StatusOK, gin.H{
		"query":    req.Query,
		"services": h.registry.Discover(req.Query, req.Limit),
	})
}

// ExecuteService executes a service tool. Domain failures come back as a
// 200 with success=false; an unknown tool is a 404 and exhausted retries a 500.
func (h *Handlers) ExecuteService(c *gin.Context) {
	var req types.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := utils.ValidateToolID(req.ToolID, "tool_id", true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appCtx := &types.Context{}
	if rid := middleware.GetRequestID(c); rid != "" {
		appCtx.RequestID = &rid
	}
	ip := c.ClientIP()
	appCtx.ClientIP = &ip

	result, err := h.registry.Execute(c.Request.Context(), req.ToolID, req.Params, appCtx)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrToolNotFound) {
			status = http.StatusNotFound
		}
		if result == nil {
			msg := err.Error()
			result = &types.Result{Success: false, Error: &msg, Code: "internal"}
		}
		c.JSON(status, result)
		return
	}

	c.JSON(http.StatusOK, result)
}
