package models

import (
	"time"
)

// KnowledgeDocumentModel 数据库知识文档模型
// 整组随 sync 替换, 不支持单条更新
type KnowledgeDocumentModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	BusinessID string `gorm:"size:64;not null;index"`
	Text       string `gorm:"type:text;not null"`
	Embedding  string `gorm:"type:text;not null"` // JSON encoded []float32
	SourceTag  string `gorm:"size:32"`
	SyncedAt   time.Time
}

// TableName 指定表名
func (KnowledgeDocumentModel) TableName() string {
	return "knowledge_documents"
}

// AutoResponseConfigModel 数据库自动应答配置模型
type AutoResponseConfigModel struct {
	BusinessID   string `gorm:"primaryKey;size:64"`
	Enabled      bool   `gorm:"not null"`
	Templates    string `gorm:"type:text"` // JSON encoded []string
	TrainingText string `gorm:"type:text"`
	Keywords     string `gorm:"type:text"` // JSON encoded []string
	AutoSync     bool   `gorm:"not null"`
	SyncCadence  int64  // nanoseconds
	UpdatedAt    time.Time
}

// TableName 指定表名
func (AutoResponseConfigModel) TableName() string {
	return "auto_response_configs"
}
