package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// Client 单条 WebSocket 连接
type Client struct {
	ID    string
	Actor valueobject.Actor

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]bool // 已订阅房间; 仅 hub 持锁访问
	logger *zap.Logger
}

// inboundFrame 客户端上行帧
type inboundFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
}

// errorFrame 下行错误帧
type errorFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	Code   string `json:"code"`
}

// readPump 读取客户端上行帧
// 连接只接受控制帧（订阅/退订/心跳）; 消息写入走 HTTP 接口
func (c *Client) readPump() {
	defer func() {
		c.hub.release(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Unexpected close", zap.String("conn_id", c.ID), zap.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("Malformed inbound frame", zap.String("conn_id", c.ID), zap.Error(err))
			continue
		}

		switch frame.Type {
		case "subscribe":
			if err := c.hub.Subscribe(context.Background(), c, frame.RoomID); err != nil {
				c.logger.Warn("Subscribe rejected",
					zap.String("conn_id", c.ID),
					zap.String("actor_id", c.Actor.ID()),
					zap.String("room_id", frame.RoomID),
					zap.Error(err),
				)
				c.rejectSubscribe(frame.RoomID, err)
			}
		case "unsubscribe":
			c.hub.Unsubscribe(c, frame.RoomID)
		case "ping":
			c.enqueue([]byte(`{"type":"pong"}`))
		default:
			c.logger.Debug("Ignoring unknown frame type",
				zap.String("conn_id", c.ID),
				zap.String("type", frame.Type),
			)
		}
	}
}

// writePump 投递下行帧并维持心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// rejectSubscribe 把订阅失败回告给客户端
func (c *Client) rejectSubscribe(roomID string, err error) {
	data, marshalErr := json.Marshal(errorFrame{
		Type:   "error",
		RoomID: roomID,
		Code:   string(apperrors.CodeOf(err)),
	})
	if marshalErr != nil {
		return
	}
	c.enqueue(data)
}

// enqueue 非阻塞入队一帧
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}
