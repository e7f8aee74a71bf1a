package repository

import (
	"context"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
)

// KnowledgeRepository 知识文档仓储接口
type KnowledgeRepository interface {
	// ReplaceForBusiness 原子替换商家的整组知识文档
	// 读者看到的永远是替换前或替换后的完整文档集
	ReplaceForBusiness(ctx context.Context, businessID string, docs []*entity.KnowledgeDocument) error

	// FindByBusiness 返回商家的全部知识文档
	FindByBusiness(ctx context.Context, businessID string) ([]*entity.KnowledgeDocument, error)

	// ListBusinessIDs 返回存在知识文档的商家ID列表
	ListBusinessIDs(ctx context.Context) ([]string, error)
}
