package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mogeeb/config"
	"mogeeb/infra/cache"
	"mogeeb/infra/registry"
	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/application"
	"mogeeb/services/relay/internal/domain"
	"mogeeb/services/relay/internal/handler"
	relaycache "mogeeb/services/relay/internal/infrastructure/cache"
	"mogeeb/services/relay/internal/infrastructure/mq"
	"mogeeb/services/relay/internal/infrastructure/webhook"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

const (
	pendingRedis  = "redis"
	pendingMemory = "memory"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("未找到 .env 文件, 使用环境变量: %v", err)
	}

	cfg, err := config.LoadConfig("config")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if _, err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 待取回回复的存储
	var (
		redisClient *redis.Client
		store       domain.PendingStore
		pendingMode string
	)
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, falling back to memory store", "error", err)
			redisClient = nil
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
		store = relaycache.NewRedisPendingStore(redisClient, cfg.Redis.Prefix, cfg.Relay.PendingTTL)
		pendingMode = pendingRedis
	} else {
		mem := relaycache.NewMemoryPendingStore(cfg.Relay.PendingTTL)
		go mem.RunSweeper(ctx, time.Minute)
		store = mem
		pendingMode = pendingMemory
	}

	client := webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.UserAgent)
	relay := application.NewRelayService(client, application.RelayOptions{
		Timeout:     cfg.Relay.Timeout,
		MaxRetries:  cfg.Relay.MaxRetries,
		Backoff:     cfg.Relay.Backoff,
		TwoPhase:    cfg.Relay.TwoPhase,
		WaitCeiling: cfg.Relay.WaitCeiling,
		Fallback:    application.FallbackMode(cfg.Relay.Fallback),
		PollTimeout: cfg.Relay.PollTimeout,
	})

	// the consumer only runs jobs after the router accepts them, so async is set by then
	var async *application.AsyncService
	pipeline, err := mq.InitPipeline(ctx, cfg.RocketMQ, cfg.Relay, func(ctx context.Context, job domain.Job) error {
		return async.Process(ctx, job)
	})
	if err != nil {
		slog.Error("failed to init job pipeline", "error", err)
		os.Exit(1)
	}
	async = application.NewAsyncService(relay, pipeline.Queue, store)

	router := handler.NewRouter(handler.RouterDeps{
		Config:      cfg,
		Relay:       relay,
		Async:       async,
		Redis:       redisClient,
		QueueMode:   pipeline.Mode,
		PendingMode: pendingMode,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	svcMgr := registerService(cfg)

	appLog := logger.WithFields("service", cfg.Server.Name, "version", cfg.Server.Version)
	go func() {
		appLog.Info("relay listening",
			"port", cfg.Server.Port,
			"webhook", cfg.Webhook.URL,
			"queue", pipeline.Mode,
			"pending_store", pendingMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	if svcMgr != nil {
		svcMgr.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	// queued jobs get the shutdown window plus one full job budget
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+mq.JobTimeout(cfg.Relay))
	defer cancelDrain()
	if err := pipeline.Close(drainCtx); err != nil {
		slog.Error("pipeline close failed", "error", err)
	}
	appLog.Info("relay stopped")
}

// registerService announces the relay to consul. Registration failures are
// logged and the relay keeps serving.
func registerService(cfg *config.AppConfig) *registry.ServiceManager {
	if !cfg.Consul.Enabled {
		return nil
	}
	localIP, err := registry.GetLocalIP()
	if err != nil {
		slog.Warn("获取本机IP失败", "error", err)
		return nil
	}

	serviceName := cfg.Server.Name
	serviceCfg := &registry.ServiceConfig{
		ID:      registry.GenerateServiceID(serviceName, localIP, cfg.Server.Port),
		Name:    serviceName,
		Tags:    append([]string{serviceName}, cfg.Consul.Tags...),
		Address: localIP,
		Port:    cfg.Server.Port,
		HealthCheck: &registry.HealthCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", localIP, cfg.Server.Port),
			Interval:                       10 * time.Second,
			Timeout:                        3 * time.Second,
			DeregisterCriticalServiceAfter: 30 * time.Second,
		},
	}
	svcMgr, err := registry.NewServiceManager(&registry.ConsulConfig{
		Address:    cfg.Consul.Address,
		Scheme:     cfg.Consul.Scheme,
		Datacenter: cfg.Consul.Datacenter,
	}, serviceCfg)
	if err != nil {
		slog.Warn("初始化Consul客户端失败", "error", err)
		return nil
	}
	if err := svcMgr.Start(); err != nil {
		slog.Warn("consul registration failed", "error", err)
		return nil
	}
	return svcMgr
}
