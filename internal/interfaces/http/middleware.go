package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/infrastructure/identity"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	"github.com/localspot/localspot/chatcore/internal/interfaces/http/handlers"
)

// authMiddleware 令牌认证中间件
// 校验 Bearer 令牌并把参与者身份写入请求上下文
func authMiddleware(verifier identity.TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHENTICATED", "message": "missing bearer token"},
			})
			return
		}

		actor, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			logger.Warn("Token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHENTICATED", "message": "invalid token"},
			})
			return
		}

		c.Set(handlers.ContextActorKey, actor)
		c.Next()
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger, monitor *monitoring.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		monitor.IncRequests(statusCode >= http.StatusInternalServerError)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
