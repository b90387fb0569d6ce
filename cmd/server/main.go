package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/trailgazer/internal/api/amap"
	"github.com/langchou/trailgazer/internal/api/handlers"
	"github.com/langchou/trailgazer/internal/config"
	"github.com/langchou/trailgazer/internal/notify"
	"github.com/langchou/trailgazer/internal/provider"
	"github.com/langchou/trailgazer/internal/repository"
	"github.com/langchou/trailgazer/internal/service"
	"github.com/langchou/trailgazer/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting Trailgazer", zap.String("port", cfg.ServerPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	visitRepo := repository.NewVisitRepository(db)
	routeRepo := repository.NewRoutePointRepository(db)

	// 创建高德地理编码客户端
	geocoder := amap.NewGeocoderClient(cfg.AmapAPIKey, logger)
	if !geocoder.IsConfigured() {
		logger.Warn("AMAP_API_KEY not set, visit start will fail to resolve destinations")
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建邮件通知器和 App 端指令提供方
	notifier := notify.NewMailNotifier(cfg, logger)
	wsProvider := provider.NewWSProvider(wsHub, logger)

	// 创建跟踪服务
	trackingService := service.NewTrackingService(
		cfg,
		logger,
		geocoder,
		visitRepo,
		routeRepo,
		notifier,
		wsProvider,
	)
	defer trackingService.Close()

	// 新连接的客户端先收到当前会话快照
	wsHub.SetInitDataProvider(func() *ws.InitData {
		state, ok := trackingService.GetState()
		if !ok {
			return nil
		}
		return &ws.InitData{Session: state}
	})

	// 订阅状态更新并广播到 WebSocket
	go func() {
		stateCh := trackingService.Subscribe()
		for state := range stateCh {
			wsHub.BroadcastStateUpdate(state)
		}
	}()

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		visitRepo,
		trackingService,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 结束活跃会话并排空副作用队列
	if err := trackingService.StopVisit(ctx); err != nil {
		logger.Error("Failed to stop active visit", zap.Error(err))
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
