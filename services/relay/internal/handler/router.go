package handler

import (
	"net/http"
	"os"

	"mogeeb/config"
	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/application"
	"mogeeb/services/relay/internal/domain"
	"mogeeb/services/relay/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type RouterDeps struct {
	Config *config.AppConfig
	Relay  *application.RelayService
	Async  *application.AsyncService
	// Redis enables rate limiting when set.
	Redis       *redis.Client
	LookupEnv   func(string) (string, bool)
	QueueMode   string
	PendingMode string
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.LookupEnv == nil {
		d.LookupEnv = os.LookupEnv
	}
	cfg := d.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Logger().Warn("invalid trusted proxies", "error", err)
	}
	r.Use(middleware.RequestLogger())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context()).Error("panic recovered", "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.ChatResult{
			Response: domain.MsgInternal,
			Status:   domain.StatusError,
		})
	}))

	diag := NewDiagnosticsHandler(d.Relay, cfg, d.LookupEnv, d.QueueMode, d.PendingMode)
	r.GET("/health", diag.Health)
	r.GET("/", diag.Root)

	chatHandler := NewChatHandler(d.Relay)
	asyncHandler := NewAsyncHandler(d.Async)

	// 聊天相关路由
	chat := r.Group("", middleware.CORS(cfg.CORS.AllowOrigin, cfg.CORS.AllowHeaders, "POST", "OPTIONS"))
	if d.Redis != nil {
		chat.Use(middleware.RateLimit(d.Redis, cfg.Redis.Prefix, cfg.Redis.RateLimitQPS))
	}
	{
		chat.Any("/api/chat", chatHandler.Chat(ParseStatusPolicy(cfg.Relay.StatusPolicy)))
		chat.Any("/.netlify/functions/chat", chatHandler.Chat(PolicyPinned))
		chat.Any("/api/v1/chat", chatHandler.Chat(PolicyPropagate))

		chat.Any("/api/chat/async", asyncHandler.Submit)
		chat.Any("/.netlify/functions/chat-async", asyncHandler.Submit)
	}

	// listen is polled by the widget, so it stays outside the rate limit
	listen := r.Group("", middleware.CORS(cfg.CORS.AllowOrigin, cfg.CORS.AllowHeaders, "POST", "OPTIONS"))
	{
		listen.Any("/api/chat/listen", asyncHandler.Listen)
		listen.Any("/.netlify/functions/chat-listen", asyncHandler.Listen)
	}

	tools := r.Group("", middleware.CORS(cfg.CORS.AllowOrigin, cfg.CORS.AllowHeaders, "GET", "OPTIONS"))
	{
		tools.Any("/api/webhook-test", diag.WebhookTest)
		tools.Any("/.netlify/functions/webhook-test", diag.WebhookTest)
		tools.Any("/api/debug", diag.Debug)
		tools.Any("/.netlify/functions/debug", diag.Debug)
	}

	return r
}
