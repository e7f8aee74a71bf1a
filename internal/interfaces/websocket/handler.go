package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/infrastructure/identity"
	"github.com/localspot/localspot/chatcore/pkg/safego"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 网关前置层负责同源校验
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler WebSocket 接入处理器
type Handler struct {
	hub      *Hub
	verifier identity.TokenVerifier
	logger   *zap.Logger
}

// NewHandler 创建 WebSocket 处理器
func NewHandler(hub *Hub, verifier identity.TokenVerifier, logger *zap.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
	}
}

// ServeWS 处理 WebSocket 连接升级
// 令牌取自 Authorization 头或 token 查询参数（浏览器 WebSocket 无法设置请求头）
func (h *Handler) ServeWS(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	actor, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn("WebSocket auth failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Actor:  actor,
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[string]bool),
		logger: h.logger,
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		// 停机期间不再接收新连接
		conn.Close()
		return
	}

	safego.Go(h.logger, "ws-write-"+client.ID, client.writePump)
	safego.Go(h.logger, "ws-read-"+client.ID, client.readPump)
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}
