package entity

import (
	"time"

	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
)

// DeliveryStatus 消息投递状态
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// Message 消息实体
// 内容一经落库不可变; 只有投递状态与已读集合允许单调推进
type Message struct {
	id         string
	roomID     string
	seq        int64
	content    string
	attachment valueobject.Attachment
	sender     valueobject.Actor
	delivery   DeliveryStatus
	readBy     map[string]time.Time
	createdAt  time.Time
}

// NewMessage 创建新消息（工厂方法）
// seq 为房间内单调递增序号, 由会话服务在房间锁内分配
func NewMessage(id, roomID string, seq int64, content string, attachment valueobject.Attachment, sender valueobject.Actor) (*Message, error) {
	if id == "" {
		return nil, ErrInvalidMessageID
	}
	if roomID == "" {
		return nil, ErrInvalidRoomID
	}
	if content == "" && attachment.IsZero() {
		return nil, ErrEmptyContent
	}
	if !sender.Type().IsValid() {
		return nil, ErrInvalidSender
	}

	return &Message{
		id:         id,
		roomID:     roomID,
		seq:        seq,
		content:    content,
		attachment: attachment,
		sender:     sender,
		delivery:   DeliverySent,
		readBy:     make(map[string]time.Time),
		createdAt:  time.Now().UTC(),
	}, nil
}

// ReconstructMessage 重建消息（用于从持久化层恢复）
func ReconstructMessage(
	id, roomID string,
	seq int64,
	content string,
	attachment valueobject.Attachment,
	sender valueobject.Actor,
	delivery DeliveryStatus,
	readBy map[string]time.Time,
	createdAt time.Time,
) *Message {
	if readBy == nil {
		readBy = make(map[string]time.Time)
	}
	return &Message{
		id:         id,
		roomID:     roomID,
		seq:        seq,
		content:    content,
		attachment: attachment,
		sender:     sender,
		delivery:   delivery,
		readBy:     readBy,
		createdAt:  createdAt,
	}
}

// ID 返回消息ID
func (m *Message) ID() string {
	return m.id
}

// RoomID 返回房间ID
func (m *Message) RoomID() string {
	return m.roomID
}

// Seq 返回房间内序号
func (m *Message) Seq() int64 {
	return m.seq
}

// Content 返回文本内容
func (m *Message) Content() string {
	return m.content
}

// Attachment 返回附件描述（可能为零值）
func (m *Message) Attachment() valueobject.Attachment {
	return m.attachment
}

// Sender 返回发送者
func (m *Message) Sender() valueobject.Actor {
	return m.sender
}

// Delivery 返回投递状态
func (m *Message) Delivery() DeliveryStatus {
	return m.delivery
}

// CreatedAt 返回创建时间
func (m *Message) CreatedAt() time.Time {
	return m.createdAt
}

// MarkDelivered 标记已投递到至少一个在线连接; 重复标记为幂等
func (m *Message) MarkDelivered() bool {
	if m.delivery == DeliveryDelivered {
		return false
	}
	m.delivery = DeliveryDelivered
	return true
}

// MarkReadBy 记录读者的首次已读时间
// 已读集合单调不减: 已存在的记录不会被覆盖, 返回 false 表示无变化
func (m *Message) MarkReadBy(readerID string, at time.Time) bool {
	if readerID == "" {
		return false
	}
	if _, ok := m.readBy[readerID]; ok {
		return false
	}
	m.readBy[readerID] = at.UTC()
	return true
}

// IsReadBy 判断指定读者是否已读
func (m *Message) IsReadBy(readerID string) bool {
	_, ok := m.readBy[readerID]
	return ok
}

// FirstReadAt 返回指定读者的首次已读时间
func (m *Message) FirstReadAt(readerID string) (time.Time, bool) {
	t, ok := m.readBy[readerID]
	return t, ok
}

// Read 判断消息是否被任何对端阅读过
func (m *Message) Read() bool {
	return len(m.readBy) > 0
}

// Readers 返回已读集合（副本）
func (m *Message) Readers() map[string]time.Time {
	readers := make(map[string]time.Time, len(m.readBy))
	for k, v := range m.readBy {
		readers[k] = v
	}
	return readers
}

// IsFromUser 判断是否消费者发送
func (m *Message) IsFromUser() bool {
	return m.sender.Type() == valueobject.ActorTypeUser
}

// IsFromAI 判断是否自动应答消息
func (m *Message) IsFromAI() bool {
	return m.sender.Type() == valueobject.ActorTypeAI
}
