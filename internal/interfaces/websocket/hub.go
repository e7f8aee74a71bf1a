package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// RoomAccess 房间订阅资格校验
type RoomAccess interface {
	// IsParticipant 判断参与者是否属于该房间
	IsParticipant(ctx context.Context, roomID, actorID string) (bool, error)
}

// Hub WebSocket 连接中心
// 维护 房间 → 连接集合 与 参与者 → 连接集合 两个索引;
// 仅作投递目标登记, 从不作为消息状态的权威来源
type Hub struct {
	clients map[string]*Client            // conn id → client
	byActor map[string]map[string]*Client // actor id → conn id → client
	byRoom  map[string]map[string]*Client // room id → conn id → client

	access     RoomAccess
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Run 退出时关闭
	logger     *zap.Logger
	mu         sync.RWMutex

	// 连接数变化回调（监控挂接）
	onConnect    func()
	onDisconnect func()
}

// NewHub 创建连接中心
func NewHub(access RoomAccess, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		byActor:    make(map[string]map[string]*Client),
		byRoom:     make(map[string]map[string]*Client),
		access:     access,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// SetConnectionHooks 设置连接/断开回调
func (h *Hub) SetConnectionHooks(onConnect, onDisconnect func()) {
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
}

// Run 运行连接中心
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.byActor[client.Actor.ID()] == nil {
				h.byActor[client.Actor.ID()] = make(map[string]*Client)
			}
			h.byActor[client.Actor.ID()][client.ID] = client
			h.mu.Unlock()

			if h.onConnect != nil {
				h.onConnect()
			}
			h.logger.Info("Client connected",
				zap.String("conn_id", client.ID),
				zap.String("actor_id", client.Actor.ID()),
				zap.String("actor_type", string(client.Actor.Type())),
			)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.dropLocked(client)
			}
			h.mu.Unlock()

			if h.onDisconnect != nil {
				h.onDisconnect()
			}
			h.logger.Info("Client disconnected",
				zap.String("conn_id", client.ID),
				zap.String("actor_id", client.Actor.ID()),
			)
		}
	}
}

// release 注销连接; hub 已停止时直接放行, 读协程收尾不会卡死
func (h *Hub) release(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// dropLocked 撤销连接的全部登记; 调用方持有写锁
func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client.ID)

	if conns := h.byActor[client.Actor.ID()]; conns != nil {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.byActor, client.Actor.ID())
		}
	}
	for roomID := range client.rooms {
		if conns := h.byRoom[roomID]; conns != nil {
			delete(conns, client.ID)
			if len(conns) == 0 {
				delete(h.byRoom, roomID)
			}
		}
	}
	close(client.send)
}

// Subscribe 把连接登记到房间的投递集合; 重复调用安全
// 仅房间参与者可订阅, 与历史读取共用同一访问模型
func (h *Hub) Subscribe(ctx context.Context, client *Client, roomID string) error {
	if roomID == "" {
		return apperrors.NewInvalidInputError("room id is required")
	}

	// 资格校验走仓储, 不持 hub 锁
	ok, err := h.access.IsParticipant(ctx, roomID, client.Actor.ID())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.CodeInvalidSender, "connection actor is not a room participant")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.clients[client.ID]; !registered {
		return nil
	}
	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[string]*Client)
	}
	h.byRoom[roomID][client.ID] = client
	client.rooms[roomID] = true
	return nil
}

// Unsubscribe 把连接移出房间的投递集合; 重复调用安全
func (h *Hub) Unsubscribe(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.rooms, roomID)
	if conns := h.byRoom[roomID]; conns != nil {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.byRoom, roomID)
		}
	}
}

// IsActorOnline 判断参与者是否有活跃连接
func (h *Hub) IsActorOnline(actorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byActor[actorID]) > 0
}

// BroadcastToRoom 向房间的订阅连接推送一帧, 跳过发起方连接
// 逐连接非阻塞: 发送队列满的慢连接直接跳过, 不拖累其他连接;
// 返回实际入队的连接数
func (h *Hub) BroadcastToRoom(roomID, originConnID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, client := range h.byRoom[roomID] {
		if client.ID == originConnID {
			continue
		}
		select {
		case client.send <- data:
			delivered++
		default:
			h.logger.Warn("Client send queue full, skipping push",
				zap.String("conn_id", client.ID),
				zap.String("room_id", roomID),
			)
		}
	}
	return delivered
}

// ConnectionCount 返回当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
