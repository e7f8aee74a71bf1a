package models

import (
	"time"
)

// MessageModel 数据库消息模型
// (room_id, seq) 唯一索引保证房间内序号不重复, 也是分页的排序键
type MessageModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	RoomID         string `gorm:"size:64;not null;uniqueIndex:idx_messages_room_seq"`
	Seq            int64  `gorm:"not null;uniqueIndex:idx_messages_room_seq"`
	Content        string `gorm:"type:text;not null"`
	AttachmentURL  string `gorm:"size:512"`
	AttachmentMime string `gorm:"size:64"`
	AttachmentSize int64
	SenderID       string `gorm:"size:64;not null"`
	SenderType     string `gorm:"size:16;not null"` // USER, BUSINESS, AI
	Delivery       string `gorm:"size:16;not null"` // sent, delivered
	ReadBy         string `gorm:"type:text"`        // JSON: reader id → first-read timestamp
	CreatedAt      time.Time
}

// TableName 指定表名
func (MessageModel) TableName() string {
	return "messages"
}
