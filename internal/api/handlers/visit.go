package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/service"
)

// StartVisitRequest 启动访问跟踪请求
type StartVisitRequest struct {
	DestinationAddress string `json:"destination_address" binding:"required"`
	RecipientID        string `json:"recipient_id" binding:"required"`
}

// StartVisit 启动访问跟踪
// POST /api/visits/:id/start
// 目的地解析失败时不创建会话；已有活跃会话时拒绝
func (h *Handler) StartVisit(c *gin.Context) {
	visitID := c.Param("id")

	var req StartVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.tracking.StartVisit(c.Request.Context(), visitID, req.DestinationAddress, req.RecipientID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionActive):
			c.JSON(http.StatusConflict, gin.H{"error": "A tracking session is already active"})
		case errors.Is(err, service.ErrDestinationNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Destination address could not be resolved"})
		default:
			h.logger.Error("Failed to start visit", zap.String("visit_id", visitID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start visit"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Visit tracking started",
		"visit_id": visitID,
	})
}

// StopVisit 结束访问跟踪（幂等）
// POST /api/visits/:id/stop
func (h *Handler) StopVisit(c *gin.Context) {
	visitID := c.Param("id")

	if err := h.tracking.StopVisit(c.Request.Context()); err != nil {
		h.logger.Error("Failed to stop visit", zap.String("visit_id", visitID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop visit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Visit tracking stopped",
		"visit_id": visitID,
	})
}

// GetVisit 获取访问记录详情
func (h *Handler) GetVisit(c *gin.Context) {
	visit, err := h.visitRepo.GetByVisitID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Visit not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": visit})
}

// GetRouteStatistics 获取访问轨迹统计
func (h *Handler) GetRouteStatistics(c *gin.Context) {
	stats, err := h.tracking.RouteStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Visit not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetRouteHistory 获取访问轨迹点
func (h *Handler) GetRouteHistory(c *gin.Context) {
	points, err := h.tracking.RouteHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to list route points", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list route points"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": points})
}

// ListVisits 获取最近的访问列表
func (h *Handler) ListVisits(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	visits, err := h.visitRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list visits", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list visits"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": visits})
}

// GetSessionState 获取当前会话的实时状态
func (h *Handler) GetSessionState(c *gin.Context) {
	state, ok := h.tracking.GetState()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No tracking session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": state})
}
