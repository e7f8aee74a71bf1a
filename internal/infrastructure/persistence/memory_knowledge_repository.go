package persistence

import (
	"context"
	"sync"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	domainErrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// MemoryKnowledgeRepository 内存知识文档仓储 (用于测试和 database.type=memory)
type MemoryKnowledgeRepository struct {
	mu   sync.RWMutex
	docs map[string][]*entity.KnowledgeDocument // business id → documents
}

// NewMemoryKnowledgeRepository 创建内存知识文档仓储
func NewMemoryKnowledgeRepository() repository.KnowledgeRepository {
	return &MemoryKnowledgeRepository{
		docs: make(map[string][]*entity.KnowledgeDocument),
	}
}

// ReplaceForBusiness 整组替换商家文档
func (r *MemoryKnowledgeRepository) ReplaceForBusiness(ctx context.Context, businessID string, docs []*entity.KnowledgeDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(docs) == 0 {
		delete(r.docs, businessID)
		return nil
	}
	r.docs[businessID] = append([]*entity.KnowledgeDocument(nil), docs...)
	return nil
}

// FindByBusiness 返回商家的全部文档
func (r *MemoryKnowledgeRepository) FindByBusiness(ctx context.Context, businessID string) ([]*entity.KnowledgeDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*entity.KnowledgeDocument(nil), r.docs[businessID]...), nil
}

// ListBusinessIDs 返回存在文档的商家ID列表
func (r *MemoryKnowledgeRepository) ListBusinessIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

// MemoryAutoResponseConfigRepository 内存自动应答配置仓储
type MemoryAutoResponseConfigRepository struct {
	mu      sync.RWMutex
	configs map[string]*entity.AutoResponseConfig
}

// NewMemoryAutoResponseConfigRepository 创建内存自动应答配置仓储
func NewMemoryAutoResponseConfigRepository() repository.AutoResponseConfigRepository {
	return &MemoryAutoResponseConfigRepository{
		configs: make(map[string]*entity.AutoResponseConfig),
	}
}

// Save 保存配置
func (r *MemoryAutoResponseConfigRepository) Save(ctx context.Context, config *entity.AutoResponseConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[config.BusinessID()] = config
	return nil
}

// FindByBusiness 查找商家配置
func (r *MemoryAutoResponseConfigRepository) FindByBusiness(ctx context.Context, businessID string) (*entity.AutoResponseConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[businessID]
	if !ok {
		return nil, domainErrors.NewNotFoundError("auto-response config not found")
	}
	return cfg, nil
}

// ListAutoSyncEnabled 列出开启自动同步的配置
func (r *MemoryAutoResponseConfigRepository) ListAutoSyncEnabled(ctx context.Context) ([]*entity.AutoResponseConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var configs []*entity.AutoResponseConfig
	for _, cfg := range r.configs {
		if cfg.AutoSync() {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}
