package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/trailgazer/internal/repository"
	"github.com/langchou/trailgazer/internal/service"
	"github.com/langchou/trailgazer/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger    *zap.Logger
	visitRepo *repository.VisitRepository
	tracking  *service.TrackingService
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	visitRepo *repository.VisitRepository,
	tracking *service.TrackingService,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:    logger,
		visitRepo: visitRepo,
		tracking:  tracking,
		wsHub:     wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 访问跟踪
		api.POST("/visits/:id/start", h.StartVisit)
		api.POST("/visits/:id/stop", h.StopVisit)
		api.GET("/visits/:id", h.GetVisit)
		api.GET("/visits/:id/stats", h.GetRouteStatistics)
		api.GET("/visits/:id/route", h.GetRouteHistory)
		api.GET("/visits", h.ListVisits)

		// 实时会话状态
		api.GET("/session/state", h.GetSessionState)

		// 定位提供方上报（App 端）
		api.POST("/provider/location", h.ReportLocation)
		api.POST("/provider/region-event", h.ReportRegionEvent)
		api.POST("/provider/error", h.ReportProviderError)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
