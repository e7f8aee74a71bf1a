package entity

import (
	"time"
)

// KnowledgeDocument 商家知识文档
// 由商家资料同步重建, 不支持单条编辑; 整组随一次 sync 原子替换
type KnowledgeDocument struct {
	id         string
	businessID string
	text       string
	embedding  []float32
	sourceTag  string
	syncedAt   time.Time
}

// NewKnowledgeDocument 创建知识文档
func NewKnowledgeDocument(id, businessID, text, sourceTag string, embedding []float32, syncedAt time.Time) (*KnowledgeDocument, error) {
	if id == "" {
		return nil, ErrInvalidDocumentID
	}
	if businessID == "" {
		return nil, ErrInvalidBusinessID
	}
	return &KnowledgeDocument{
		id:         id,
		businessID: businessID,
		text:       text,
		embedding:  embedding,
		sourceTag:  sourceTag,
		syncedAt:   syncedAt.UTC(),
	}, nil
}

// ID 返回文档ID
func (d *KnowledgeDocument) ID() string {
	return d.id
}

// BusinessID 返回所属商家ID
func (d *KnowledgeDocument) BusinessID() string {
	return d.businessID
}

// Text 返回文档文本
func (d *KnowledgeDocument) Text() string {
	return d.text
}

// Embedding 返回嵌入向量
func (d *KnowledgeDocument) Embedding() []float32 {
	return d.embedding
}

// SourceTag 返回来源标记 (service / hours / faq / training ...)
func (d *KnowledgeDocument) SourceTag() string {
	return d.sourceTag
}

// SyncedAt 返回最近同步时间
func (d *KnowledgeDocument) SyncedAt() time.Time {
	return d.syncedAt
}

// Dimension 返回向量维度
func (d *KnowledgeDocument) Dimension() int {
	return len(d.embedding)
}
