package entity

import (
	"time"
)

// AutoResponseConfig 商家自动应答配置
// 商家侧可写, 应答合成器只读消费
type AutoResponseConfig struct {
	businessID   string
	enabled      bool
	templates    []string
	trainingText string
	keywords     []string
	autoSync     bool
	syncCadence  time.Duration
	updatedAt    time.Time
}

// NewAutoResponseConfig 创建自动应答配置
func NewAutoResponseConfig(businessID string, enabled bool, templates []string, trainingText string, keywords []string, autoSync bool, syncCadence time.Duration) (*AutoResponseConfig, error) {
	if businessID == "" {
		return nil, ErrInvalidBusinessID
	}
	return ReconstructAutoResponseConfig(businessID, enabled, templates, trainingText, keywords, autoSync, syncCadence, time.Now().UTC()), nil
}

// ReconstructAutoResponseConfig 重建配置（用于从持久化层恢复）
func ReconstructAutoResponseConfig(businessID string, enabled bool, templates []string, trainingText string, keywords []string, autoSync bool, syncCadence time.Duration, updatedAt time.Time) *AutoResponseConfig {
	return &AutoResponseConfig{
		businessID:   businessID,
		enabled:      enabled,
		templates:    append([]string(nil), templates...),
		trainingText: trainingText,
		keywords:     append([]string(nil), keywords...),
		autoSync:     autoSync,
		syncCadence:  syncCadence,
		updatedAt:    updatedAt,
	}
}

// BusinessID 返回商家ID
func (c *AutoResponseConfig) BusinessID() string {
	return c.businessID
}

// Enabled 返回自动应答开关
func (c *AutoResponseConfig) Enabled() bool {
	return c.enabled
}

// Templates 返回应答模板（副本）
func (c *AutoResponseConfig) Templates() []string {
	return append([]string(nil), c.templates...)
}

// TrainingText 返回商家自定义训练文本
func (c *AutoResponseConfig) TrainingText() string {
	return c.trainingText
}

// Keywords 返回专长/关键词（副本）
func (c *AutoResponseConfig) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// AutoSync 返回是否按节奏自动重建知识索引
func (c *AutoResponseConfig) AutoSync() bool {
	return c.autoSync
}

// SyncCadence 返回自动同步间隔
func (c *AutoResponseConfig) SyncCadence() time.Duration {
	return c.syncCadence
}

// UpdatedAt 返回最近更新时间
func (c *AutoResponseConfig) UpdatedAt() time.Time {
	return c.updatedAt
}
