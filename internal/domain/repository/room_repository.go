package repository

import (
	"context"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
)

// RoomRepository 房间仓储接口
type RoomRepository interface {
	// Save 保存房间（创建或更新）
	Save(ctx context.Context, room *entity.Room) error

	// FindByID 根据ID查找房间
	FindByID(ctx context.Context, id string) (*entity.Room, error)

	// FindByPair 根据 (商家, 消费者) 组合查找房间
	FindByPair(ctx context.Context, businessID, userID string) (*entity.Room, error)

	// ListByActor 列出参与者的全部房间, 按更新时间倒序
	ListByActor(ctx context.Context, actorID string, limit int) ([]*entity.Room, error)
}
