package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/persistence/models"
	domainErrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// GormMessageRepository GORM 实现的消息仓储
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GORM 消息仓储
func NewGormMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &GormMessageRepository{db: db}
}

// Save 保存消息
func (r *GormMessageRepository) Save(ctx context.Context, message *entity.Message) error {
	model, err := messageToModel(message)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save message", err)
	}
	return nil
}

// FindByID 根据ID查找消息
func (r *GormMessageRepository) FindByID(ctx context.Context, id string) (*entity.Message, error) {
	var model models.MessageModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("message not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find message", err)
	}
	return messageToEntity(&model)
}

// LastSeq 返回房间内最大序号
func (r *GormMessageRepository) LastSeq(ctx context.Context, roomID string) (int64, error) {
	var seq int64
	err := r.db.WithContext(ctx).
		Model(&models.MessageModel{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	if err != nil {
		return 0, domainErrors.NewInternalErrorWithCause("failed to read last seq", err)
	}
	return seq, nil
}

// FindPageBefore 按序号倒序取一页消息
func (r *GormMessageRepository) FindPageBefore(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]*entity.Message, error) {
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}

	var ms []models.MessageModel
	err := query.Order("seq desc").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to page messages", err)
	}
	return messagesToEntities(ms)
}

// FindUnreadForReader 返回对方发送且 readerID 未读的消息, 按序号升序
// 已读集合存的是 JSON, 成员判断在应用层完成
func (r *GormMessageRepository) FindUnreadForReader(ctx context.Context, roomID, readerID string, upToSeq int64) ([]*entity.Message, error) {
	var ms []models.MessageModel
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND seq <= ? AND sender_id <> ?", roomID, upToSeq, readerID).
		Order("seq asc").
		Find(&ms).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to find unread messages", err)
	}

	all, err := messagesToEntities(ms)
	if err != nil {
		return nil, err
	}

	unread := make([]*entity.Message, 0, len(all))
	for _, msg := range all {
		if !msg.IsReadBy(readerID) {
			unread = append(unread, msg)
		}
	}
	return unread, nil
}

// Count 统计房间内消息数量
func (r *GormMessageRepository) Count(ctx context.Context, roomID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MessageModel{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	if err != nil {
		return 0, domainErrors.NewInternalErrorWithCause("failed to count messages", err)
	}
	return count, nil
}

func messagesToEntities(ms []models.MessageModel) ([]*entity.Message, error) {
	messages := make([]*entity.Message, 0, len(ms))
	for i := range ms {
		msg, err := messageToEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// messageToModel 实体转数据库模型
func messageToModel(message *entity.Message) (*models.MessageModel, error) {
	readBy, err := json.Marshal(message.Readers())
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to encode read set", err)
	}

	att := message.Attachment()
	return &models.MessageModel{
		ID:             message.ID(),
		RoomID:         message.RoomID(),
		Seq:            message.Seq(),
		Content:        message.Content(),
		AttachmentURL:  att.URL(),
		AttachmentMime: att.MimeType(),
		AttachmentSize: att.Size(),
		SenderID:       message.Sender().ID(),
		SenderType:     string(message.Sender().Type()),
		Delivery:       string(message.Delivery()),
		ReadBy:         string(readBy),
		CreatedAt:      message.CreatedAt(),
	}, nil
}

// messageToEntity 数据库模型转实体
func messageToEntity(model *models.MessageModel) (*entity.Message, error) {
	readBy := make(map[string]time.Time)
	if model.ReadBy != "" {
		if err := json.Unmarshal([]byte(model.ReadBy), &readBy); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("failed to decode read set", err)
		}
	}

	var attachment valueobject.Attachment
	if model.AttachmentURL != "" {
		attachment = valueobject.NewAttachment(model.AttachmentURL, model.AttachmentMime, model.AttachmentSize)
	}

	sender := valueobject.NewActor(model.SenderID, valueobject.ActorType(model.SenderType))

	return entity.ReconstructMessage(
		model.ID,
		model.RoomID,
		model.Seq,
		model.Content,
		attachment,
		sender,
		entity.DeliveryStatus(model.Delivery),
		readBy,
		model.CreatedAt,
	), nil
}
