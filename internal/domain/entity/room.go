package entity

import (
	"time"
)

// RoomStatus 会话房间生命周期状态
type RoomStatus string

const (
	RoomStatusActive   RoomStatus = "ACTIVE"
	RoomStatusArchived RoomStatus = "ARCHIVED"
	RoomStatusClosed   RoomStatus = "CLOSED"
)

// IsValid 判断状态是否合法
func (s RoomStatus) IsValid() bool {
	switch s {
	case RoomStatusActive, RoomStatusArchived, RoomStatusClosed:
		return true
	}
	return false
}

// Room 会话房间实体
// 每个 (商家, 消费者) 组合至多存在一个房间
type Room struct {
	id         string
	businessID string
	userID     string
	status     RoomStatus
	createdAt  time.Time
	updatedAt  time.Time
}

// NewRoom 创建新房间（工厂方法）, 初始状态 ACTIVE
func NewRoom(id, businessID, userID string) (*Room, error) {
	if id == "" {
		return nil, ErrInvalidRoomID
	}
	if businessID == "" {
		return nil, ErrInvalidBusinessID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	now := time.Now().UTC()
	return &Room{
		id:         id,
		businessID: businessID,
		userID:     userID,
		status:     RoomStatusActive,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructRoom 重建房间（用于从持久化层恢复）
func ReconstructRoom(id, businessID, userID string, status RoomStatus, createdAt, updatedAt time.Time) *Room {
	return &Room{
		id:         id,
		businessID: businessID,
		userID:     userID,
		status:     status,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// ID 返回房间ID
func (r *Room) ID() string {
	return r.id
}

// BusinessID 返回商家ID
func (r *Room) BusinessID() string {
	return r.businessID
}

// UserID 返回消费者ID
func (r *Room) UserID() string {
	return r.userID
}

// Status 返回房间状态
func (r *Room) Status() RoomStatus {
	return r.status
}

// CreatedAt 返回创建时间
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// UpdatedAt 返回更新时间
func (r *Room) UpdatedAt() time.Time {
	return r.updatedAt
}

// IsClosed 判断房间是否已终止
func (r *Room) IsClosed() bool {
	return r.status == RoomStatusClosed
}

// IsParticipant 判断参与者是否属于本房间（AI 以商家身份参与）
func (r *Room) IsParticipant(actorID string) bool {
	return actorID == r.businessID || actorID == r.userID
}

// CounterpartOf 返回对方参与者ID
func (r *Room) CounterpartOf(actorID string) string {
	if actorID == r.businessID {
		return r.userID
	}
	return r.businessID
}

// Archive 归档房间（可逆, 双方均可操作）
func (r *Room) Archive() error {
	if r.status == RoomStatusClosed {
		return ErrRoomClosed
	}
	r.status = RoomStatusArchived
	r.touch()
	return nil
}

// Reopen 重新激活归档房间; CLOSED 为终态不可恢复
func (r *Room) Reopen() error {
	if r.status == RoomStatusClosed {
		return ErrRoomClosed
	}
	r.status = RoomStatusActive
	r.touch()
	return nil
}

// Close 永久关闭房间（仅商家可操作, 由上层校验角色）
func (r *Room) Close() error {
	if r.status == RoomStatusClosed {
		return ErrRoomClosed
	}
	r.status = RoomStatusClosed
	r.touch()
	return nil
}

// Touch 推进更新时间（有新消息写入时调用）
func (r *Room) Touch() {
	r.touch()
}

func (r *Room) touch() {
	r.updatedAt = time.Now().UTC()
}
