package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

type KnowledgeHandler struct {
	retriever *knowledge.Retriever
	configs   repository.AutoResponseConfigRepository
	monitor   *monitoring.Monitor
	logger    *zap.Logger
}

func NewKnowledgeHandler(retriever *knowledge.Retriever, configs repository.AutoResponseConfigRepository, monitor *monitoring.Monitor, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		retriever: retriever,
		configs:   configs,
		monitor:   monitor,
		logger:    logger,
	}
}

type SyncResponse struct {
	BusinessID string `json:"business_id"`
	Documents  int    `json:"documents"`
}

type ScoredDocumentResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	SourceTag string    `json:"source_tag"`
	Score     float32   `json:"score"`
	SyncedAt  time.Time `json:"synced_at"`
}

type AutoResponseConfigRequest struct {
	Enabled      bool     `json:"enabled"`
	Templates    []string `json:"templates"`
	TrainingText string   `json:"training_text"`
	Keywords     []string `json:"keywords"`
	AutoSync     bool     `json:"auto_sync"`
	SyncCadence  string   `json:"sync_cadence"`
}

type AutoResponseConfigResponse struct {
	BusinessID   string    `json:"business_id"`
	Enabled      bool      `json:"enabled"`
	Templates    []string  `json:"templates"`
	TrainingText string    `json:"training_text"`
	Keywords     []string  `json:"keywords"`
	AutoSync     bool      `json:"auto_sync"`
	SyncCadence  string    `json:"sync_cadence,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// requireBusiness 仅允许商家本人操作自己的知识资源
func requireBusiness(c *gin.Context) (string, bool) {
	actor, ok := ActorFrom(c)
	if !ok {
		respondError(c, apperrors.NewUnauthenticatedError("authentication required"))
		return "", false
	}
	businessID := c.Param("id")
	if !actor.IsBusiness() || actor.ID() != businessID {
		respondError(c, apperrors.New(apperrors.CodeInvalidSender, "only the business may manage its knowledge"))
		return "", false
	}
	return businessID, true
}

// Sync 触发商家知识索引重建
func (h *KnowledgeHandler) Sync(c *gin.Context) {
	businessID, ok := requireBusiness(c)
	if !ok {
		return
	}

	count, err := h.retriever.Sync(c.Request.Context(), businessID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.monitor.IncSyncs()
	c.JSON(http.StatusOK, &SyncResponse{BusinessID: businessID, Documents: count})
}

// Query 按问题文本检索商家知识（运维与调试入口）
func (h *KnowledgeHandler) Query(c *gin.Context) {
	businessID, ok := requireBusiness(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		respondError(c, apperrors.NewInvalidInputError("query parameter q is required"))
		return
	}
	k, _ := strconv.Atoi(c.Query("k"))

	docs, err := h.retriever.Retrieve(c.Request.Context(), businessID, query, k)
	if err != nil {
		respondError(c, err)
		return
	}
	h.monitor.IncRetrievals()

	resp := make([]*ScoredDocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, &ScoredDocumentResponse{
			ID:        doc.Document.ID(),
			Text:      doc.Document.Text(),
			SourceTag: doc.Document.SourceTag(),
			Score:     doc.Score,
			SyncedAt:  doc.Document.SyncedAt(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"documents": resp})
}

// GetConfig 读取商家自动应答配置
func (h *KnowledgeHandler) GetConfig(c *gin.Context) {
	businessID, ok := requireBusiness(c)
	if !ok {
		return
	}

	cfg, err := h.configs.FindByBusiness(c.Request.Context(), businessID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConfigResponse(cfg))
}

// PutConfig 写入商家自动应答配置（整体替换）
func (h *KnowledgeHandler) PutConfig(c *gin.Context) {
	businessID, ok := requireBusiness(c)
	if !ok {
		return
	}

	var req AutoResponseConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var cadence time.Duration
	if req.SyncCadence != "" {
		parsed, err := time.ParseDuration(req.SyncCadence)
		if err != nil || parsed < 0 {
			respondError(c, apperrors.NewInvalidInputError("invalid sync_cadence duration"))
			return
		}
		cadence = parsed
	}

	cfg, err := entity.NewAutoResponseConfig(businessID, req.Enabled, req.Templates, req.TrainingText, req.Keywords, req.AutoSync, cadence)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid auto-response config", err))
		return
	}

	if err := h.configs.Save(c.Request.Context(), cfg); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("Auto-response config updated",
		zap.String("business_id", businessID),
		zap.Bool("enabled", cfg.Enabled()),
		zap.Bool("auto_sync", cfg.AutoSync()),
	)
	c.JSON(http.StatusOK, toConfigResponse(cfg))
}

func toConfigResponse(cfg *entity.AutoResponseConfig) *AutoResponseConfigResponse {
	resp := &AutoResponseConfigResponse{
		BusinessID:   cfg.BusinessID(),
		Enabled:      cfg.Enabled(),
		Templates:    cfg.Templates(),
		TrainingText: cfg.TrainingText(),
		Keywords:     cfg.Keywords(),
		AutoSync:     cfg.AutoSync(),
		UpdatedAt:    cfg.UpdatedAt(),
	}
	if cfg.SyncCadence() > 0 {
		resp.SyncCadence = cfg.SyncCadence().String()
	}
	return resp
}
