package repository

import (
	"context"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
)

// AutoResponseConfigRepository 自动应答配置仓储接口
type AutoResponseConfigRepository interface {
	// Save 保存配置（创建或更新）
	Save(ctx context.Context, config *entity.AutoResponseConfig) error

	// FindByBusiness 查找商家的配置, 不存在时返回 NotFound
	FindByBusiness(ctx context.Context, businessID string) (*entity.AutoResponseConfig, error)

	// ListAutoSyncEnabled 列出开启了自动同步的配置
	ListAutoSyncEnabled(ctx context.Context) ([]*entity.AutoResponseConfig, error)
}
