package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langchou/trailgazer/internal/models"
)

// LocationReport 定位提供方上报的位置样本
type LocationReport struct {
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	AltitudeM           float64   `json:"altitude_m"`
	HorizontalAccuracyM float64   `json:"horizontal_accuracy_m"`
	VerticalAccuracyM   float64   `json:"vertical_accuracy_m"`
	SpeedMps            float64   `json:"speed_mps"`
	Course              float64   `json:"course"`
	Timestamp           time.Time `json:"timestamp"`
}

// RegionEventReport 定位提供方上报的围栏事件
type RegionEventReport struct {
	RegionID  string    `json:"region_id" binding:"required"`
	Type      string    `json:"type" binding:"required,oneof=enter exit"`
	Timestamp time.Time `json:"timestamp"`
}

// ProviderErrorReport 定位提供方上报的错误
type ProviderErrorReport struct {
	Kind    string `json:"kind" binding:"required"`
	Message string `json:"message"`
}

// ReportLocation 接收位置样本
// POST /api/provider/location
// 永远返回 202：样本是否被采纳由会话内部判定，提供方不需要关心
func (h *Handler) ReportLocation(c *gin.Context) {
	var req LocationReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location report"})
		return
	}

	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	h.tracking.HandleLocation(models.LocationSample{
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		AltitudeM:           req.AltitudeM,
		HorizontalAccuracyM: req.HorizontalAccuracyM,
		VerticalAccuracyM:   req.VerticalAccuracyM,
		SpeedMps:            req.SpeedMps,
		Course:              req.Course,
		Timestamp:           req.Timestamp,
	})

	c.JSON(http.StatusAccepted, gin.H{"message": "Location accepted"})
}

// ReportRegionEvent 接收围栏进出事件
// POST /api/provider/region-event
func (h *Handler) ReportRegionEvent(c *gin.Context) {
	var req RegionEventReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid region event"})
		return
	}

	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	h.tracking.HandleRegionEvent(models.RegionEvent{
		RegionID:  req.RegionID,
		Type:      models.RegionEventType(req.Type),
		Timestamp: req.Timestamp,
	})

	c.JSON(http.StatusAccepted, gin.H{"message": "Region event accepted"})
}

// ReportProviderError 接收提供方错误
// POST /api/provider/error
// 权限类错误会强制结束当前会话
func (h *Handler) ReportProviderError(c *gin.Context) {
	var req ProviderErrorReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid error report"})
		return
	}

	h.tracking.HandleProviderError(c.Request.Context(), req.Kind, req.Message)

	c.JSON(http.StatusAccepted, gin.H{"message": "Error report accepted"})
}
