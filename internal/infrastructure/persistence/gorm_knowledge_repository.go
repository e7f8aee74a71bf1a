package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/persistence/models"
	domainErrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// GormKnowledgeRepository GORM 实现的知识文档仓储
type GormKnowledgeRepository struct {
	db *gorm.DB
}

// NewGormKnowledgeRepository 创建 GORM 知识文档仓储
func NewGormKnowledgeRepository(db *gorm.DB) repository.KnowledgeRepository {
	return &GormKnowledgeRepository{db: db}
}

// ReplaceForBusiness 在单事务内整组替换商家文档
func (r *GormKnowledgeRepository) ReplaceForBusiness(ctx context.Context, businessID string, docs []*entity.KnowledgeDocument) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ?", businessID).Delete(&models.KnowledgeDocumentModel{}).Error; err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		ms := make([]models.KnowledgeDocumentModel, 0, len(docs))
		for _, doc := range docs {
			m, err := knowledgeToModel(doc)
			if err != nil {
				return err
			}
			ms = append(ms, *m)
		}
		return tx.Create(&ms).Error
	})
	if err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to replace knowledge documents", err)
	}
	return nil
}

// FindByBusiness 返回商家的全部文档
func (r *GormKnowledgeRepository) FindByBusiness(ctx context.Context, businessID string) ([]*entity.KnowledgeDocument, error) {
	var ms []models.KnowledgeDocumentModel
	err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Find(&ms).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to find knowledge documents", err)
	}

	docs := make([]*entity.KnowledgeDocument, 0, len(ms))
	for i := range ms {
		doc, err := knowledgeToEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ListBusinessIDs 返回存在文档的商家ID列表
func (r *GormKnowledgeRepository) ListBusinessIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.KnowledgeDocumentModel{}).
		Distinct("business_id").
		Pluck("business_id", &ids).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to list business ids", err)
	}
	return ids, nil
}

func knowledgeToModel(doc *entity.KnowledgeDocument) (*models.KnowledgeDocumentModel, error) {
	embedding, err := json.Marshal(doc.Embedding())
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to encode embedding", err)
	}
	return &models.KnowledgeDocumentModel{
		ID:         doc.ID(),
		BusinessID: doc.BusinessID(),
		Text:       doc.Text(),
		Embedding:  string(embedding),
		SourceTag:  doc.SourceTag(),
		SyncedAt:   doc.SyncedAt(),
	}, nil
}

func knowledgeToEntity(model *models.KnowledgeDocumentModel) (*entity.KnowledgeDocument, error) {
	var embedding []float32
	if model.Embedding != "" {
		if err := json.Unmarshal([]byte(model.Embedding), &embedding); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("failed to decode embedding", err)
		}
	}
	doc, err := entity.NewKnowledgeDocument(model.ID, model.BusinessID, model.Text, model.SourceTag, embedding, model.SyncedAt)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("invalid knowledge document row", err)
	}
	return doc, nil
}

// GormAutoResponseConfigRepository GORM 实现的自动应答配置仓储
type GormAutoResponseConfigRepository struct {
	db *gorm.DB
}

// NewGormAutoResponseConfigRepository 创建 GORM 自动应答配置仓储
func NewGormAutoResponseConfigRepository(db *gorm.DB) repository.AutoResponseConfigRepository {
	return &GormAutoResponseConfigRepository{db: db}
}

// Save 保存配置
func (r *GormAutoResponseConfigRepository) Save(ctx context.Context, config *entity.AutoResponseConfig) error {
	model, err := autoResponseToModel(config)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalErrorWithCause("failed to save auto-response config", err)
	}
	return nil
}

// FindByBusiness 查找商家配置
func (r *GormAutoResponseConfigRepository) FindByBusiness(ctx context.Context, businessID string) (*entity.AutoResponseConfig, error) {
	var model models.AutoResponseConfigModel
	if err := r.db.WithContext(ctx).First(&model, "business_id = ?", businessID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("auto-response config not found")
		}
		return nil, domainErrors.NewInternalErrorWithCause("failed to find auto-response config", err)
	}
	return autoResponseToEntity(&model)
}

// ListAutoSyncEnabled 列出开启自动同步的配置
func (r *GormAutoResponseConfigRepository) ListAutoSyncEnabled(ctx context.Context) ([]*entity.AutoResponseConfig, error) {
	var ms []models.AutoResponseConfigModel
	err := r.db.WithContext(ctx).
		Where("auto_sync = ?", true).
		Find(&ms).Error
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to list auto-sync configs", err)
	}

	configs := make([]*entity.AutoResponseConfig, 0, len(ms))
	for i := range ms {
		cfg, err := autoResponseToEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func autoResponseToModel(config *entity.AutoResponseConfig) (*models.AutoResponseConfigModel, error) {
	templates, err := json.Marshal(config.Templates())
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to encode templates", err)
	}
	keywords, err := json.Marshal(config.Keywords())
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to encode keywords", err)
	}
	return &models.AutoResponseConfigModel{
		BusinessID:   config.BusinessID(),
		Enabled:      config.Enabled(),
		Templates:    string(templates),
		TrainingText: config.TrainingText(),
		Keywords:     string(keywords),
		AutoSync:     config.AutoSync(),
		SyncCadence:  int64(config.SyncCadence()),
		UpdatedAt:    config.UpdatedAt(),
	}, nil
}

func autoResponseToEntity(model *models.AutoResponseConfigModel) (*entity.AutoResponseConfig, error) {
	var templates, keywords []string
	if model.Templates != "" {
		if err := json.Unmarshal([]byte(model.Templates), &templates); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("failed to decode templates", err)
		}
	}
	if model.Keywords != "" {
		if err := json.Unmarshal([]byte(model.Keywords), &keywords); err != nil {
			return nil, domainErrors.NewInternalErrorWithCause("failed to decode keywords", err)
		}
	}
	return entity.ReconstructAutoResponseConfig(
		model.BusinessID,
		model.Enabled,
		templates,
		model.TrainingText,
		keywords,
		model.AutoSync,
		time.Duration(model.SyncCadence),
		model.UpdatedAt,
	), nil
}
