package application

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	"github.com/localspot/localspot/chatcore/pkg/errors"
	"github.com/localspot/localspot/chatcore/pkg/safego"
)

const syncTimeout = 2 * time.Minute

// Syncer 知识索引定时同步器
// 按全局兜底节奏扫描开启自动同步的商家; 商家资料变更时立即补一次
type Syncer struct {
	retriever *knowledge.Retriever
	configs   repository.AutoResponseConfigRepository
	monitor   *monitoring.Monitor
	interval  time.Duration
	logger    *zap.Logger
	cron      *cron.Cron
}

// NewSyncer 创建同步器
func NewSyncer(
	retriever *knowledge.Retriever,
	configs repository.AutoResponseConfigRepository,
	monitor *monitoring.Monitor,
	interval time.Duration,
	logger *zap.Logger,
) *Syncer {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Syncer{
		retriever: retriever,
		configs:   configs,
		monitor:   monitor,
		interval:  interval,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start 启动定时同步
func (s *Syncer) Start() {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.syncAll); err != nil {
		s.logger.Error("Failed to schedule knowledge sync", zap.Error(err))
		return
	}
	s.cron.Start()
	s.logger.Info("Knowledge syncer started", zap.Duration("interval", s.interval))
}

// Stop 停止定时同步, 等待进行中的任务结束
func (s *Syncer) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Knowledge syncer stopped")
}

// OnProfileChanged 商家资料变更回调, 立即重建该商家的索引
func (s *Syncer) OnProfileChanged(businessID string) {
	safego.Go(s.logger, "profile-sync-"+businessID, func() {
		s.syncOne(businessID)
	})
}

// syncAll 扫描开启自动同步的商家并逐个重建
func (s *Syncer) syncAll() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	cfgs, err := s.configs.ListAutoSyncEnabled(ctx)
	if err != nil {
		s.logger.Error("Failed to list auto-sync businesses", zap.Error(err))
		return
	}

	for _, cfg := range cfgs {
		// 商家自定义节奏短于全局节奏时仍按全局节奏兜底
		s.syncOne(cfg.BusinessID())
	}
}

func (s *Syncer) syncOne(businessID string) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	count, err := s.retriever.Sync(ctx, businessID)
	if err != nil {
		if errors.Is(err, errors.CodeSyncInProgress) {
			s.logger.Debug("Sync already in progress", zap.String("business_id", businessID))
			return
		}
		s.logger.Error("Scheduled knowledge sync failed",
			zap.String("business_id", businessID),
			zap.Error(err),
		)
		return
	}

	s.monitor.IncSyncs()
	s.logger.Info("Scheduled knowledge sync completed",
		zap.String("business_id", businessID),
		zap.Int("documents", count),
	)
}
