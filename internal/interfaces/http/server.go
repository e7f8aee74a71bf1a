package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/infrastructure/identity"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	"github.com/localspot/localspot/chatcore/internal/interfaces/http/handlers"
	ws "github.com/localspot/localspot/chatcore/internal/interfaces/websocket"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// Deps 服务器依赖的处理器集合
type Deps struct {
	Rooms     *handlers.RoomHandler
	Knowledge *handlers.KnowledgeHandler
	WS        *ws.Handler
	Verifier  identity.TokenVerifier
	Monitor   *monitoring.Monitor
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	// 设置Gin模式
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger, deps.Monitor))

	setupRoutes(router, deps, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, deps Deps, logger *zap.Logger) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(deps.Monitor.PrometheusHandler()))

	// WebSocket 接入（自行处理令牌, 不过认证中间件）
	router.GET("/ws", deps.WS.ServeWS)

	// API版本1
	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(deps.Verifier, logger))
	{
		v1.POST("/rooms", deps.Rooms.OpenRoom)
		v1.GET("/rooms", deps.Rooms.ListRooms)
		v1.GET("/rooms/:id/messages", deps.Rooms.ListMessages)
		v1.POST("/rooms/:id/messages", deps.Rooms.PostMessage)
		v1.POST("/rooms/:id/read", deps.Rooms.MarkRead)
		v1.PATCH("/rooms/:id/status", deps.Rooms.SetStatus)

		v1.POST("/businesses/:id/knowledge/sync", deps.Knowledge.Sync)
		v1.GET("/businesses/:id/knowledge/query", deps.Knowledge.Query)
		v1.GET("/businesses/:id/autoresponse", deps.Knowledge.GetConfig)
		v1.PUT("/businesses/:id/autoresponse", deps.Knowledge.PutConfig)
	}
}
