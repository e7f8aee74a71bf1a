package models

import (
	"time"
)

// RoomModel 数据库房间模型
// (business_id, user_id) 唯一索引兜底应用层的防重复建房串行化
type RoomModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	BusinessID string `gorm:"size:64;not null;uniqueIndex:idx_rooms_pair"`
	UserID     string `gorm:"size:64;not null;uniqueIndex:idx_rooms_pair"`
	Status     string `gorm:"size:16;not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName 指定表名
func (RoomModel) TableName() string {
	return "rooms"
}
