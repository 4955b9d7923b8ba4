// Package bootstrap 加载配置并装配应用的所有组件。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-board/internal/handler/http"
	wsHandler "collaborative-board/internal/handler/websocket"
	"collaborative-board/internal/hub"
	s3archive "collaborative-board/internal/infra/archive/s3"
	gormpersistence "collaborative-board/internal/infra/persistence/gorm"
	"collaborative-board/internal/infra/setup"
	redisstate "collaborative-board/internal/infra/state/redis"
	"collaborative-board/internal/metrics"
	"collaborative-board/internal/middleware"
	"collaborative-board/internal/repository"
	"collaborative-board/internal/service"
	"collaborative-board/internal/tasks"
	"collaborative-board/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Scheduler   *asynq.Scheduler
	Broker      *redisstate.RedisBroker
	Hub         *hub.Hub
	Metrics     *metrics.Metrics
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	cancelHub      context.CancelFunc
}

// OpenDatabase 连接数据库并执行迁移
func OpenDatabase(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	db, err := setup.InitDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.WithField("driver", cfg.DB.Driver).Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")
	return db, nil
}

// NewApp 创建并初始化应用的所有组件
func NewApp(ctx context.Context, cfg *Config, log *logrus.Logger) (*App, error) {
	// 1. 基础设施
	log.Info("Initializing infrastructure...")
	db, err := OpenDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	var archive repository.ActionArchive
	if cfg.ArchiveBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		archive = s3archive.NewS3ActionArchive(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, cfg.ArchivePrefix)
		log.WithField("bucket", cfg.ArchiveBucket).Info("History archive enabled")
	}

	m := metrics.New()

	// 2. Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	boardRepo := gormpersistence.NewGormBoardRepository(db)
	actionRepo := gormpersistence.NewGormActionRepository(db)
	presenceRepo := redisstate.NewRedisPresenceRepository(redisClient, cfg.KeyPrefix, cfg.PresenceTTL)
	historyCache := redisstate.NewRedisHistoryCache(redisClient, cfg.KeyPrefix, cfg.HistoryCacheSize, 0)
	rateLimiter := redisstate.NewRedisRateLimiter(redisClient, cfg.KeyPrefix)
	broker := redisstate.NewRedisBroker(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 3. Services
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	guard := service.NewAccessGuard(boardRepo)
	historyService := service.NewHistoryService(historyCache, actionRepo, tasks.NewEnqueuer(asynqClient), archive, m,
		service.HistoryOptions{ReplayLimit: cfg.HistoryReplayLimit})
	boardService := service.NewBoardService(boardRepo, userRepo, guard, historyService)
	aiService := service.NewAIService()
	log.Info("Services initialized")

	// 4. Hub
	hubInstance := hub.NewHub(hub.Deps{
		Access:   guard,
		History:  historyService,
		Presence: presenceRepo,
		Broker:   broker,
		AI:       aiService,
		Metrics:  m,
	}, hub.Options{InstanceID: cfg.InstanceID, PongWait: cfg.WSPongWait})
	log.WithField("instance_id", hubInstance.InstanceID()).Info("Hub initialized")

	// 5. Worker 与周期任务
	workerServer := worker.NewWorkerServer(redisClientOpt,
		worker.NewHistoryPersistHandler(actionRepo, boardRepo),
		worker.NewHistoryPruneHandler(historyService, cfg.HistoryRetention),
		log)
	scheduler := asynq.NewScheduler(redisClientOpt, &asynq.SchedulerOpts{
		Logger:   log.WithField("component", "asynq_scheduler"),
		LogLevel: asynq.WarnLevel,
	})

	// 6. Handlers 与路由
	authHandler := httpHandler.NewAuthHandler(authService)
	boardHandler := httpHandler.NewBoardHandler(boardService, hubInstance)
	wsH := wsHandler.NewWebSocketHandler(hubInstance, authService, cfg.CORSAllowedOrigin)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	api := router.Group("/api")
	authRoutes := api.Group("/auth").Use(middleware.RateLimit(rateLimiter, cfg.RateLimitMax, cfg.RateLimitWindow))
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}
	boardRoutes := api.Group("/boards").Use(middleware.Auth(authService))
	{
		boardRoutes.GET("", boardHandler.ListBoards)
		boardRoutes.POST("", boardHandler.CreateBoard)
		boardRoutes.GET("/:id", boardHandler.GetBoard)
		boardRoutes.GET("/:id/history", boardHandler.GetHistory)
		boardRoutes.POST("/:id/collaborators", boardHandler.AddCollaborator)
		boardRoutes.DELETE("/:id/collaborators/:userId", boardHandler.RemoveCollaborator)
		boardRoutes.POST("/:id/kick/:userId", boardHandler.KickUser)
	}
	router.GET("/ws", wsH.HandleConnection)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Scheduler:      scheduler,
		Broker:         broker,
		Hub:            hubInstance,
		Metrics:        m,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() error {
	hubCtx, cancel := context.WithCancel(context.Background())
	a.cancelHub = cancel
	go a.Hub.Run(hubCtx)

	if err := a.AsynqServer.Start(); err != nil {
		return err
	}
	if err := a.registerPeriodicTasks(); err != nil {
		return err
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

func (a *App) registerPeriodicTasks() error {
	if a.Config.HistoryRetention <= 0 {
		a.Log.Info("History retention disabled, prune task not scheduled")
		return nil
	}
	task, err := tasks.NewHistoryPruneTask("", a.Config.HistoryRetention)
	if err != nil {
		return fmt.Errorf("failed to create history prune task: %w", err)
	}
	entryID, err := a.Scheduler.Register(a.Config.HistoryPruneSchedule, task)
	if err != nil {
		return fmt.Errorf("could not register history prune task: %w", err)
	}
	a.Log.Infof("History prune task registered with schedule '%s' (EntryID: %s)", a.Config.HistoryPruneSchedule, entryID)
	return a.Scheduler.Start()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 1. 停止接受新连接
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// 2. 关闭所有会话，会话的 presence 在此期间被移除
	if err := a.Hub.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down hub: %v", err)
	}
	if a.cancelHub != nil {
		a.cancelHub()
	}
	if err := a.Broker.Close(); err != nil {
		a.Log.Errorf("Error closing broker: %v", err)
	}

	// 3. 后台任务
	a.Scheduler.Shutdown()
	a.AsynqServer.Shutdown()
	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}

	// 4. 存储连接
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}
