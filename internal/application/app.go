package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	"github.com/localspot/localspot/chatcore/internal/domain/repository"
	"github.com/localspot/localspot/chatcore/internal/domain/service"
	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/billing"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/config"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/embedding"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/eventbus"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/identity"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/monitoring"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/persistence"
	"github.com/localspot/localspot/chatcore/internal/infrastructure/profile"
	httpServer "github.com/localspot/localspot/chatcore/internal/interfaces/http"
	"github.com/localspot/localspot/chatcore/internal/interfaces/http/handlers"
	ws "github.com/localspot/localspot/chatcore/internal/interfaces/websocket"
	"github.com/localspot/localspot/chatcore/pkg/safego"
)

const eventBufferSize = 1024

// App 应用程序
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 仓储层
	roomRepo      repository.RoomRepository
	messageRepo   repository.MessageRepository
	knowledgeRepo repository.KnowledgeRepository
	configRepo    repository.AutoResponseConfigRepository

	// 领域服务
	conversations *service.ConversationService
	retriever     *knowledge.Retriever
	composer      *service.Composer

	// 基础设施
	bus      eventbus.Bus
	monitor  *monitoring.Monitor
	embedder knowledge.EmbeddingProvider
	verifier identity.TokenVerifier
	gate     service.BillingGate
	profiles knowledge.ProfileSource

	// 接口层
	hub        *ws.Hub
	router     *ws.Router
	wsHandler  *ws.Handler
	httpServer *httpServer.Server
	syncer     *Syncer

	hubCancel context.CancelFunc
}

// NewApp 创建应用程序（依赖注入容器）
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config:  cfg,
		logger:  logger,
		monitor: monitoring.NewMonitor(),
	}

	// 初始化各层组件
	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	return app, nil
}

// initRepositories 初始化仓储层
// database.type=memory 时不落盘, 用于本地开发与测试
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	if app.config.Database.Type == "memory" {
		app.roomRepo = persistence.NewMemoryRoomRepository()
		app.messageRepo = persistence.NewMemoryMessageRepository()
		app.knowledgeRepo = persistence.NewMemoryKnowledgeRepository()
		app.configRepo = persistence.NewMemoryAutoResponseConfigRepository()
		return nil
	}

	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	app.roomRepo = persistence.NewGormRoomRepository(db)
	app.messageRepo = persistence.NewGormMessageRepository(db)
	app.knowledgeRepo = persistence.NewGormKnowledgeRepository(db)
	app.configRepo = persistence.NewGormAutoResponseConfigRepository(db)
	return nil
}

// initInfrastructure 初始化基础设施
func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	app.bus = eventbus.NewInMemoryBus(app.logger, eventBufferSize)

	// 嵌入向量提供者
	switch app.config.Knowledge.Embedder.Provider {
	case "ollama":
		embedder, err := embedding.NewOllamaEmbedder(
			app.config.Knowledge.Embedder.OllamaURL,
			app.config.Knowledge.Embedder.Model,
			app.logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create ollama embedder: %w", err)
		}
		app.embedder = embedder
	default:
		app.embedder = embedding.NewLocalEmbedder(app.config.Knowledge.Embedder.Dimension)
	}

	// 身份适配
	switch app.config.Auth.Mode {
	case "remote":
		app.verifier = identity.NewRemoteVerifier(app.config.Auth.Endpoint)
	default:
		tokens := make(map[string]valueobject.Actor, len(app.config.Auth.StaticTokens))
		for token, sa := range app.config.Auth.StaticTokens {
			tokens[token] = valueobject.NewActor(sa.ActorID, valueobject.ActorType(sa.ActorType))
		}
		app.verifier = identity.NewStaticVerifier(tokens)
	}

	// 订阅校验
	switch app.config.Billing.Mode {
	case "remote":
		app.gate = billing.NewRemoteGate(app.config.Billing.Endpoint)
	default:
		app.gate = billing.NewAllowAllGate()
	}

	// 商家资料源
	switch app.config.Profile.Mode {
	case "remote":
		app.profiles = profile.NewRemoteSource(app.config.Profile.Endpoint)
	default:
		app.profiles = profile.NewStaticSource(app.logger)
	}

	return nil
}

// initDomainServices 初始化领域服务
func (app *App) initDomainServices() error {
	app.logger.Info("Initializing domain services")

	app.conversations = service.NewConversationService(
		app.roomRepo,
		app.messageRepo,
		app.configRepo,
		app.bus,
		app.logger,
	)

	app.retriever = knowledge.NewRetriever(
		app.embedder,
		app.knowledgeRepo,
		app.profiles,
		app.configRepo,
		app.bus,
		app.logger,
	)

	return nil
}

// initInterfaces 初始化接口层
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	// WebSocket 连接中心 + 事件路由器
	app.hub = ws.NewHub(app.conversations, app.logger)
	app.hub.SetConnectionHooks(app.monitor.ClientConnected, app.monitor.ClientDisconnected)
	app.router = ws.NewRouter(app.hub, app.conversations, app.monitor, app.logger)
	app.router.Register(app.bus)
	app.wsHandler = ws.NewHandler(app.hub, app.verifier, app.logger)

	// 应答合成器依赖 hub 的在线状态, 所以在接口层组装
	app.composer = service.NewComposer(
		app.conversations,
		app.configRepo,
		app.retriever,
		app.hub,
		app.gate,
		service.ComposerOptions{
			TopK:             app.config.Knowledge.TopK,
			MinScore:         app.config.Knowledge.MinScore,
			RetrievalTimeout: app.config.AutoResponse.RetrievalTimeout,
			FallbackTemplate: app.config.AutoResponse.FallbackTemplate,
		},
		app.logger,
	)
	app.composer.SetMetrics(app.monitor)
	app.composer.Register(app.bus)

	// 定时知识同步
	app.syncer = NewSyncer(app.retriever, app.configRepo, app.monitor, app.config.Knowledge.SyncInterval, app.logger)
	if src, ok := app.profiles.(*profile.StaticSource); ok {
		src.OnChange(app.syncer.OnProfileChanged)
	}

	// HTTP服务器
	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Server.Host,
			Port: app.config.Server.Port,
			Mode: app.config.Server.Mode,
		},
		httpServer.Deps{
			Rooms:     handlers.NewRoomHandler(app.conversations, app.monitor, app.logger),
			Knowledge: handlers.NewKnowledgeHandler(app.retriever, app.configRepo, app.monitor, app.logger),
			WS:        app.wsHandler,
			Verifier:  app.verifier,
			Monitor:   app.monitor,
		},
		app.logger,
	)

	return nil
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	hubCtx, cancel := context.WithCancel(context.Background())
	app.hubCancel = cancel
	safego.Go(app.logger, "ws-hub", func() {
		app.hub.Run(hubCtx)
	})

	// 预热知识索引, 失败不阻塞启动
	if err := app.retriever.WarmUp(ctx); err != nil {
		app.logger.Warn("Knowledge index warm-up failed", zap.Error(err))
	}

	app.syncer.Start()

	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	// 先停入口, 再停事件链路, 最后关数据库
	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	app.syncer.Stop()
	app.bus.Close()

	if app.hubCancel != nil {
		app.hubCancel()
	}

	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// Conversations 返回会话服务（测试与运维工具使用）
func (app *App) Conversations() *service.ConversationService {
	return app.conversations
}

// Retriever 返回知识检索器
func (app *App) Retriever() *knowledge.Retriever {
	return app.retriever
}

// Logger 返回应用日志器
func (app *App) Logger() *zap.Logger {
	return app.logger
}
