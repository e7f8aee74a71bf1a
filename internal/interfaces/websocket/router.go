package websocket

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
)

// DeliveryTracker 投递状态回写接口, 由会话服务实现
type DeliveryTracker interface {
	MarkDelivered(ctx context.Context, messageID string) error
}

// Router 事件路由器
// 订阅事件总线, 把领域事件转成下行帧推给房间订阅连接;
// 推送是尽力而为的, 漏推由客户端通过拉取接口补齐
type Router struct {
	hub        *Hub
	deliveries DeliveryTracker
	monitor    *monitoring.Monitor
	logger     *zap.Logger
}

// NewRouter 创建事件路由器
func NewRouter(hub *Hub, deliveries DeliveryTracker, monitor *monitoring.Monitor, logger *zap.Logger) *Router {
	return &Router{
		hub:        hub,
		deliveries: deliveries,
		monitor:    monitor,
		logger:     logger,
	}
}

// Register 挂接事件总线
func (r *Router) Register(bus eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeMessageCreated, r.onMessageCreated)
	bus.Subscribe(eventbus.EventTypeMessageRead, r.onMessageRead)
	bus.Subscribe(eventbus.EventTypeRoomStatus, r.onRoomStatus)
}

// messageFrame 新消息下行帧
type messageFrame struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"room_id"`
	Message *messageDTO `json:"message"`
}

// messageDTO 消息传输对象
type messageDTO struct {
	ID         string         `json:"id"`
	RoomID     string         `json:"room_id"`
	Seq        int64          `json:"seq"`
	Content    string         `json:"content"`
	Attachment *attachmentDTO `json:"attachment,omitempty"`
	SenderID   string         `json:"sender_id"`
	SenderType string         `json:"sender_type"`
	CreatedAt  time.Time      `json:"created_at"`
}

type attachmentDTO struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// readFrame 已读回执下行帧
type readFrame struct {
	Type       string   `json:"type"`
	RoomID     string   `json:"room_id"`
	ReaderID   string   `json:"reader_id"`
	MessageIDs []string `json:"message_ids"`
	UpToSeq    int64    `json:"up_to_seq"`
}

// statusFrame 房间状态变更下行帧
type statusFrame struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	Status    string `json:"status"`
	ChangedBy string `json:"changed_by"`
}

func (r *Router) onMessageCreated(ctx context.Context, event eventbus.Event) {
	payload, ok := event.Payload().(*eventbus.MessageCreatedPayload)
	if !ok {
		return
	}

	frame := &messageFrame{
		Type:    "message",
		RoomID:  payload.Message.RoomID(),
		Message: toMessageDTO(payload.Message),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("Failed to marshal message frame", zap.Error(err))
		return
	}

	delivered := r.hub.BroadcastToRoom(payload.Message.RoomID(), payload.OriginConnID, data)
	r.monitor.IncEventsFannedOut(delivered)

	if delivered > 0 {
		// 客户端断开不应中止投递簿记
		if err := r.deliveries.MarkDelivered(context.WithoutCancel(ctx), payload.Message.ID()); err != nil {
			r.logger.Warn("Failed to mark message delivered",
				zap.String("message_id", payload.Message.ID()),
				zap.Error(err),
			)
		}
	}
}

func (r *Router) onMessageRead(ctx context.Context, event eventbus.Event) {
	payload, ok := event.Payload().(*eventbus.MessageReadPayload)
	if !ok {
		return
	}

	data, err := json.Marshal(&readFrame{
		Type:       "read",
		RoomID:     payload.RoomID,
		ReaderID:   payload.ReaderID,
		MessageIDs: payload.MessageIDs,
		UpToSeq:    payload.UpToSeq,
	})
	if err != nil {
		r.logger.Error("Failed to marshal read frame", zap.Error(err))
		return
	}

	delivered := r.hub.BroadcastToRoom(payload.RoomID, payload.OriginConnID, data)
	r.monitor.IncEventsFannedOut(delivered)
}

func (r *Router) onRoomStatus(ctx context.Context, event eventbus.Event) {
	payload, ok := event.Payload().(*eventbus.RoomStatusPayload)
	if !ok {
		return
	}

	data, err := json.Marshal(&statusFrame{
		Type:      "room_status",
		RoomID:    payload.RoomID,
		Status:    string(payload.Status),
		ChangedBy: payload.ChangedBy,
	})
	if err != nil {
		r.logger.Error("Failed to marshal status frame", zap.Error(err))
		return
	}

	delivered := r.hub.BroadcastToRoom(payload.RoomID, payload.OriginConnID, data)
	r.monitor.IncEventsFannedOut(delivered)
}

func toMessageDTO(msg *entity.Message) *messageDTO {
	dto := &messageDTO{
		ID:         msg.ID(),
		RoomID:     msg.RoomID(),
		Seq:        msg.Seq(),
		Content:    msg.Content(),
		SenderID:   msg.Sender().ID(),
		SenderType: string(msg.Sender().Type()),
		CreatedAt:  msg.CreatedAt(),
	}
	if att := msg.Attachment(); !att.IsZero() {
		dto.Attachment = &attachmentDTO{
			URL:      att.URL(),
			MimeType: att.MimeType(),
			Size:     att.Size(),
		}
	}
	return dto
}
