package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/entity"
	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
	"github.com/localspot/localspot/chatcore/pkg/safego"
)

// Presence 在线状态查询接口（由投递路由器实现）
type Presence interface {
	// IsActorOnline 判断参与者是否有活跃连接
	IsActorOnline(actorID string) bool
}

// BillingGate 订阅能力校验接口（外部协作方）
type BillingGate interface {
	// AllowsAutoResponse 判断商家套餐是否允许自动应答
	AllowsAutoResponse(ctx context.Context, businessID string) (bool, error)
}

// KnowledgeRetriever 知识检索接口（composer 只读消费）
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, businessID, queryText string, k int) ([]knowledge.ScoredDocument, error)
}

// ComposerMetrics 应答合成指标回调, 可为 nil
type ComposerMetrics interface {
	IncAutoReplies()
	IncFallbackReplies()
	IncRetrievalTimeouts()
}

// DefaultFallbackTemplate 兜底应答模板
const DefaultFallbackTemplate = "Thanks for reaching out! We're away from the chat right now, but we've received your message and will get back to you as soon as possible."

// ComposerOptions 应答合成参数
type ComposerOptions struct {
	TopK             int
	MinScore         float32
	RetrievalTimeout time.Duration
	FallbackTemplate string
}

func (o ComposerOptions) withDefaults() ComposerOptions {
	if o.TopK <= 0 {
		o.TopK = 4
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.35
	}
	if o.RetrievalTimeout <= 0 {
		o.RetrievalTimeout = 5 * time.Second
	}
	if o.FallbackTemplate == "" {
		o.FallbackTemplate = DefaultFallbackTemplate
	}
	return o
}

// Composer 自动应答合成器
// 消费新消息事件, 商家离线且开启自动应答时合成回复;
// 检索超时或失败一律降级到兜底模板, 不让消费者空等
type Composer struct {
	conversation *ConversationService
	configs      repository.AutoResponseConfigRepository
	retriever    KnowledgeRetriever
	presence     Presence
	gate         BillingGate
	metrics      ComposerMetrics
	logger       *zap.Logger
	opts         ComposerOptions
}

// NewComposer 创建应答合成器
func NewComposer(
	conversation *ConversationService,
	configs repository.AutoResponseConfigRepository,
	retriever KnowledgeRetriever,
	presence Presence,
	gate BillingGate,
	opts ComposerOptions,
	logger *zap.Logger,
) *Composer {
	return &Composer{
		conversation: conversation,
		configs:      configs,
		retriever:    retriever,
		presence:     presence,
		gate:         gate,
		logger:       logger,
		opts:         opts.withDefaults(),
	}
}

// SetMetrics 挂接指标回调
func (c *Composer) SetMetrics(m ComposerMetrics) {
	c.metrics = m
}

// Register 把合成器挂到事件总线上
func (c *Composer) Register(bus eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeMessageCreated, c.onMessageCreated)
}

func (c *Composer) onMessageCreated(ctx context.Context, event eventbus.Event) {
	payload, ok := event.Payload().(*eventbus.MessageCreatedPayload)
	if !ok {
		return
	}
	// 检索可能耗到超时上限, 放到独立协程, 不占住总线分发协程;
	// 请求方断开不取消自动应答: 写入用不受取消影响的上下文
	handleCtx := context.WithoutCancel(ctx)
	safego.Go(c.logger, "composer-"+payload.Message.ID(), func() {
		if err := c.HandleUserMessage(handleCtx, payload.Room, payload.Message); err != nil {
			c.logger.Error("Auto-response failed",
				zap.String("room_id", payload.Room.ID()),
				zap.String("message_id", payload.Message.ID()),
				zap.Error(err),
			)
		}
	})
}

// HandleUserMessage 对一条消费者消息执行自动应答状态机
// 不满足条件时静默跳过（期望有人工回复）; 只有落库失败才返回错误
func (c *Composer) HandleUserMessage(ctx context.Context, room *entity.Room, msg *entity.Message) error {
	if !msg.IsFromUser() || room.IsClosed() {
		return nil
	}
	businessID := room.BusinessID()

	// 1. 资格检查
	if c.gate != nil {
		allowed, err := c.gate.AllowsAutoResponse(ctx, businessID)
		if err != nil {
			c.logger.Warn("Billing gate check failed, skipping auto-response",
				zap.String("business_id", businessID),
				zap.Error(err),
			)
			return nil
		}
		if !allowed {
			return nil
		}
	}

	cfg, err := c.configs.FindByBusiness(ctx, businessID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !cfg.Enabled() {
		return nil
	}

	// 商家在线说明有人工接管, 不抢话
	if c.presence != nil && c.presence.IsActorOnline(businessID) {
		return nil
	}

	// 2. 检索（限时, 失败降级）
	matches := c.retrieve(ctx, businessID, msg.Content())

	// 3. 合成
	reply := c.compose(cfg, matches)

	// 4. 以 AI 身份落库, 走正常消息通道
	aiActor := valueobject.NewActor(businessID, valueobject.ActorTypeAI)
	if _, err := c.conversation.PostMessage(ctx, room.ID(), aiActor, reply, valueobject.Attachment{}, ""); err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.IncAutoReplies()
		if len(matches) == 0 {
			c.metrics.IncFallbackReplies()
		}
	}
	c.logger.Info("Auto-response posted",
		zap.String("room_id", room.ID()),
		zap.String("business_id", businessID),
		zap.Int("matched_documents", len(matches)),
	)
	return nil
}

// retrieve 限时检索相关知识, 超时/出错返回空结果
func (c *Composer) retrieve(ctx context.Context, businessID, query string) []knowledge.ScoredDocument {
	retrieveCtx, cancel := context.WithTimeout(ctx, c.opts.RetrievalTimeout)
	defer cancel()

	docs, err := c.retriever.Retrieve(retrieveCtx, businessID, query, c.opts.TopK)
	if err != nil {
		if c.metrics != nil && errors.Is(err, context.DeadlineExceeded) {
			c.metrics.IncRetrievalTimeouts()
		}
		// 检索失败只降级, 不向消费者暴露
		c.logger.Warn("Knowledge retrieval failed, falling back to template",
			zap.String("business_id", businessID),
			zap.Error(err),
		)
		return nil
	}

	relevant := docs[:0]
	for _, d := range docs {
		if d.Score >= c.opts.MinScore {
			relevant = append(relevant, d)
		}
	}
	return relevant
}

// compose 把匹配片段与商家模板拼成回复; 无匹配时使用兜底模板
func (c *Composer) compose(cfg *entity.AutoResponseConfig, matches []knowledge.ScoredDocument) string {
	if len(matches) == 0 {
		if templates := cfg.Templates(); len(templates) > 0 {
			return templates[0]
		}
		return c.opts.FallbackTemplate
	}

	var b strings.Builder
	if templates := cfg.Templates(); len(templates) > 0 {
		b.WriteString(templates[0])
		b.WriteString("\n\n")
	}
	b.WriteString("Here's what might help:\n")
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Document.Text())
		b.WriteString("\n")
	}
	b.WriteString("\nA team member will follow up if you need anything else.")
	return b.String()
}
