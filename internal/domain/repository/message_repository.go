package repository

import (
	"context"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
)

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Save 保存消息（创建或更新已读/投递簿记）
	Save(ctx context.Context, message *entity.Message) error

	// FindByID 根据ID查找消息
	FindByID(ctx context.Context, id string) (*entity.Message, error)

	// LastSeq 返回房间内最大序号, 房间为空时返回 0
	LastSeq(ctx context.Context, roomID string) (int64, error)

	// FindPageBefore 返回房间内 seq < beforeSeq 的消息, 按 seq 倒序, 至多 limit 条
	// beforeSeq 传入 0 表示从最新一条开始
	FindPageBefore(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]*entity.Message, error)

	// FindUnreadForReader 返回房间内 seq <= upToSeq、非 readerID 发送且 readerID 未读的消息, 按 seq 升序
	FindUnreadForReader(ctx context.Context, roomID, readerID string, upToSeq int64) ([]*entity.Message, error)

	// Count 统计房间内消息数量
	Count(ctx context.Context, roomID string) (int64, error)
}
