package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/persistence/models"
	domainErrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// GormRoomRepository GORM 实现的房间仓储
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GORM 房间仓储
func NewGormRoomRepository(db *gorm.DB) repository.RoomRepository {
	return &GormRoomRepository{db: db}
}

// Save 保存房间
func (r *GormRoomRepository) Save(ctx context.Context, room *entity.Room) error {
	model := roomToModel(room)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save room", err)
	}
	return nil
}

// FindByID 根据ID查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*entity.Room, error) {
	var model models.RoomModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("room not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find room", err)
	}
	return roomToEntity(&model), nil
}

// FindByPair 根据 (商家, 消费者) 组合查找房间
func (r *GormRoomRepository) FindByPair(ctx context.Context, businessID, userID string) (*entity.Room, error) {
	var model models.RoomModel
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND user_id = ?", businessID, userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("room not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find room by pair", err)
	}
	return roomToEntity(&model), nil
}

// ListByActor 列出参与者的房间, 按更新时间倒序
func (r *GormRoomRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]*entity.Room, error) {
	var ms []models.RoomModel
	err := r.db.WithContext(ctx).
		Where("business_id = ? OR user_id = ?", actorID, actorID).
		Order("updated_at desc").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to list rooms", err)
	}

	rooms := make([]*entity.Room, 0, len(ms))
	for i := range ms {
		rooms = append(rooms, roomToEntity(&ms[i]))
	}
	return rooms, nil
}

// roomToModel 实体转数据库模型
func roomToModel(room *entity.Room) *models.RoomModel {
	return &models.RoomModel{
		ID:         room.ID(),
		BusinessID: room.BusinessID(),
		UserID:     room.UserID(),
		Status:     string(room.Status()),
		CreatedAt:  room.CreatedAt(),
		UpdatedAt:  room.UpdatedAt(),
	}
}

// roomToEntity 数据库模型转实体
func roomToEntity(model *models.RoomModel) *entity.Room {
	return entity.ReconstructRoom(
		model.ID,
		model.BusinessID,
		model.UserID,
		entity.RoomStatus(model.Status),
		model.CreatedAt,
		model.UpdatedAt,
	)
}
