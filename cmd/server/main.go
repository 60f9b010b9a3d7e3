package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shortlink-platform/internal/bloom"
	"shortlink-platform/internal/cache"
	"shortlink-platform/internal/config"
	"shortlink-platform/internal/handler"
	"shortlink-platform/internal/middleware"
	"shortlink-platform/internal/repository"
	"shortlink-platform/internal/service"
	"shortlink-platform/internal/shortcode"
	"shortlink-platform/internal/stats"
	"shortlink-platform/pkg/database"
	auth "shortlink-platform/pkg/jwt"
	"shortlink-platform/pkg/lock"
	"shortlink-platform/pkg/logger"
	"shortlink-platform/pkg/redis"
)

// bloomFilterKey 短链接防穿透布隆过滤器的位图键
const bloomFilterKey = "short-link:create:bloom"

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Println("配置加载失败:", err)
		return
	}

	logger.InitLogger(cfg.App.LogFile, cfg.App.Mode)
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger := zap.S()

	db, err := database.InitMySQL(cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name)
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Info("数据库连接成功")

	// 缓存、锁、布隆过滤器都依赖 Redis，连不上直接失败
	rdb, err := redis.NewClient(&redis.Options{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	})
	if err != nil || rdb == nil {
		sugaredLogger.Fatalf("缓存连接失败: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
		}
	}()
	sugaredLogger.Info("缓存连接成功")

	repo := repository.New(db)

	// 布隆过滤器初始化：位图缺失时从数据库全量重放，
	// 重放完成前不接创建流量，避免已有后缀被误判可用
	filter := bloom.New(rdb, bloomFilterKey,
		cfg.ShortLink.BloomExpectedInsertions, cfg.ShortLink.BloomFpp, sugaredLogger)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := filter.Init(initCtx, repo.AllLiveURLs); err != nil {
		cancelInit()
		sugaredLogger.Fatalf("布隆过滤器初始化失败: %v", err)
	}
	cancelInit()
	sugaredLogger.Info("布隆过滤器初始化完成")

	locks := lock.NewClient(rdb)
	linkCache := cache.New(rdb, sugaredLogger)
	allocator := shortcode.NewAllocator(filter, sugaredLogger)

	// 访问统计走异步管道，消费端聚合进监控表
	producer := stats.NewProducer(cfg.ShortLink.StatsQueueSize, sugaredLogger)
	consumer := stats.NewConsumer(repo, stats.NewRedisReadLocker(locks), sugaredLogger)
	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumer.Start(consumeCtx, producer.Out())
	sugaredLogger.Info("访问统计管道已启动")

	linkService := service.NewLinkService(
		repo, filter, linkCache, service.NewRedisLocker(locks), allocator, producer, cfg, sugaredLogger)

	tokenManager := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.ExpirationHours)

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))
	router.Use(middleware.RateLimit(&cfg.RateLimit))

	notFoundPath := cfg.ShortLink.NotFoundPath
	if notFoundPath == "" {
		notFoundPath = "/page/notfound"
	}
	linkHandler := handler.NewShortLinkHandler(linkService, notFoundPath)
	registerRoutes(router, linkHandler, middleware.AuthMiddleware(tokenManager), notFoundPath)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	sugaredLogger.Infof("服务启动成功, 监听端口 %d", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugaredLogger.Fatalf("服务启动失败: %v", err)
	}
}

func registerRoutes(router *gin.Engine, linkHandler *handler.ShortLinkHandler, authMiddleware gin.HandlerFunc, notFoundPath string) {
	router.GET("/health", linkHandler.HealthCheck)
	router.GET(notFoundPath, func(c *gin.Context) {
		c.String(http.StatusOK, "短链接不存在或已过期")
	})
	router.GET("/:suffix", linkHandler.RedirectToOrigin)

	api := router.Group("/api/short-link")
	api.Use(authMiddleware)
	{
		api.POST("", linkHandler.CreateShortLink)
		api.POST("/batch", linkHandler.BatchCreateShortLink)
		api.PUT("", linkHandler.UpdateShortLink)
		api.GET("/page", linkHandler.PageShortLink)
		api.GET("/count", linkHandler.GroupShortLinkCount)
	}
}
