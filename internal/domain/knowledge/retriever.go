package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// EmbeddingProvider 嵌入向量提供者接口
type EmbeddingProvider interface {
	// Embed 生成文本的嵌入向量
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 批量生成嵌入向量
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension 返回向量维度
	Dimension() int
}

// BusinessProfile 商家资料快照（来自外部资料源, 只读）
type BusinessProfile struct {
	BusinessID  string
	Name        string
	Description string
	Services    []string
	Hours       string
	Specialties []string
	Keywords    []string
	UpdatedAt   time.Time
}

// ProfileSource 商家资料源接口（外部协作方）
type ProfileSource interface {
	// Snapshot 拉取商家当前资料
	Snapshot(ctx context.Context, businessID string) (*BusinessProfile, error)
}

// ScoredDocument 检索结果: 文档 + 余弦相似度
type ScoredDocument struct {
	Document *entity.KnowledgeDocument
	Score    float32
}

// Retriever 知识检索器
// 每个商家一份内存快照, sync 整组重建后原子替换;
// 同一商家的 sync 互斥, 不同商家互不影响
type Retriever struct {
	embedder EmbeddingProvider
	repo     repository.KnowledgeRepository
	profiles ProfileSource
	configs  repository.AutoResponseConfigRepository
	bus      eventbus.Bus
	logger   *zap.Logger

	mu      sync.RWMutex
	indexes map[string][]*entity.KnowledgeDocument

	syncMu  sync.Mutex
	syncing map[string]bool
}

// NewRetriever 创建知识检索器
func NewRetriever(
	embedder EmbeddingProvider,
	repo repository.KnowledgeRepository,
	profiles ProfileSource,
	configs repository.AutoResponseConfigRepository,
	bus eventbus.Bus,
	logger *zap.Logger,
) *Retriever {
	return &Retriever{
		embedder: embedder,
		repo:     repo,
		profiles: profiles,
		configs:  configs,
		bus:      bus,
		logger:   logger,
		indexes:  make(map[string][]*entity.KnowledgeDocument),
		syncing:  make(map[string]bool),
	}
}

// Sync 从商家资料源整组重建知识文档
// 并发的同商家 sync 返回 SyncInProgress; 读者始终看到完整的新旧文档集之一
func (r *Retriever) Sync(ctx context.Context, businessID string) (int, error) {
	if businessID == "" {
		return 0, apperrors.NewInvalidInputError("business id is required")
	}

	r.syncMu.Lock()
	if r.syncing[businessID] {
		r.syncMu.Unlock()
		return 0, apperrors.New(apperrors.CodeSyncInProgress, "sync already running for business")
	}
	r.syncing[businessID] = true
	r.syncMu.Unlock()

	defer func() {
		r.syncMu.Lock()
		delete(r.syncing, businessID)
		r.syncMu.Unlock()
	}()

	profile, err := r.profiles.Snapshot(ctx, businessID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "failed to load business profile", err)
	}

	sections := buildSections(profile, r.trainingText(ctx, businessID))
	if len(sections) == 0 {
		// 资料为空则清空索引, 检索返回空列表而非错误
		if err := r.repo.ReplaceForBusiness(ctx, businessID, nil); err != nil {
			return 0, err
		}
		r.swap(businessID, nil)
		return 0, nil
	}

	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "failed to embed knowledge documents", err)
	}
	if len(vectors) != len(sections) {
		return 0, apperrors.NewInternalError(fmt.Sprintf("embedder returned %d vectors for %d documents", len(vectors), len(sections)))
	}

	now := time.Now().UTC()
	docs := make([]*entity.KnowledgeDocument, 0, len(sections))
	for i, s := range sections {
		if len(vectors[i]) != r.embedder.Dimension() {
			return 0, apperrors.Wrap(apperrors.CodeInternal, "embedding dimension mismatch", entity.ErrDimensionMismatch)
		}
		doc, err := entity.NewKnowledgeDocument(uuid.NewString(), businessID, s.text, s.tag, vectors[i], now)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeInternal, "invalid knowledge document", err)
		}
		docs = append(docs, doc)
	}

	if err := r.repo.ReplaceForBusiness(ctx, businessID, docs); err != nil {
		return 0, err
	}
	r.swap(businessID, docs)

	r.logger.Info("Knowledge index rebuilt",
		zap.String("business_id", businessID),
		zap.Int("documents", len(docs)),
	)
	if r.bus != nil {
		r.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeKnowledgeSync, &eventbus.KnowledgeSyncPayload{
			BusinessID: businessID,
			Documents:  len(docs),
		}))
	}
	return len(docs), nil
}

// Retrieve 返回与查询最相近的 k 个文档, 相似度降序, 平分按最近同步优先
// 商家尚无索引时返回空列表
func (r *Retriever) Retrieve(ctx context.Context, businessID, queryText string, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		k = 4
	}
	if k > 10 {
		k = 10
	}

	docs, err := r.snapshot(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	query, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to embed query", err)
	}

	scored := make([]ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Dimension() != len(query) {
			// 维度不一致的陈旧文档不参与检索, 等待下一次 sync 重建
			continue
		}
		scored = append(scored, ScoredDocument{
			Document: doc,
			Score:    cosineSimilarity(query, doc.Embedding()),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Document.SyncedAt().After(scored[j].Document.SyncedAt())
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// WarmUp 启动时从仓储载入全部商家索引
func (r *Retriever) WarmUp(ctx context.Context) error {
	ids, err := r.repo.ListBusinessIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		docs, err := r.repo.FindByBusiness(ctx, id)
		if err != nil {
			return err
		}
		r.swap(id, docs)
	}
	r.logger.Info("Knowledge indexes warmed up", zap.Int("businesses", len(ids)))
	return nil
}

// snapshot 获取商家文档快照, 未加载时从仓储懒加载
func (r *Retriever) snapshot(ctx context.Context, businessID string) ([]*entity.KnowledgeDocument, error) {
	r.mu.RLock()
	docs, ok := r.indexes[businessID]
	r.mu.RUnlock()
	if ok {
		return docs, nil
	}

	loaded, err := r.repo.FindByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// 竞争中可能已有别人写入快照, 以内存中的为准
	if docs, ok = r.indexes[businessID]; !ok {
		r.indexes[businessID] = loaded
		docs = loaded
	}
	r.mu.Unlock()
	return docs, nil
}

func (r *Retriever) swap(businessID string, docs []*entity.KnowledgeDocument) {
	r.mu.Lock()
	r.indexes[businessID] = docs
	r.mu.Unlock()
}

// trainingText 读取商家自定义训练文本, 无配置时为空
func (r *Retriever) trainingText(ctx context.Context, businessID string) string {
	if r.configs == nil {
		return ""
	}
	cfg, err := r.configs.FindByBusiness(ctx, businessID)
	if err != nil {
		return ""
	}
	return cfg.TrainingText()
}

type section struct {
	text string
	tag  string
}

// buildSections 把商家资料切成可独立检索的文档单元
func buildSections(profile *BusinessProfile, trainingText string) []section {
	var sections []section

	add := func(text, tag string) {
		text = strings.TrimSpace(text)
		if text != "" {
			sections = append(sections, section{text: text, tag: tag})
		}
	}

	if profile.Description != "" {
		add(profile.Name+": "+profile.Description, "description")
	}
	add(profile.Hours, "hours")
	for _, svc := range profile.Services {
		add(svc, "service")
	}
	if len(profile.Specialties) > 0 {
		add(strings.Join(profile.Specialties, ", "), "specialties")
	}
	if len(profile.Keywords) > 0 {
		add(strings.Join(profile.Keywords, ", "), "keywords")
	}

	// 商家自定义训练文本按空行切段
	for _, para := range strings.Split(trainingText, "\n\n") {
		add(para, "training")
	}

	return sections
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
