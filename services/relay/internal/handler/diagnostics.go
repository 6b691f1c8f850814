package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mogeeb/config"
	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/application"
	"mogeeb/services/relay/internal/domain"

	"github.com/gin-gonic/gin"
)

const probeTimeout = 10 * time.Second

type DiagnosticsHandler struct {
	relay       *application.RelayService
	cfg         *config.AppConfig
	lookupEnv   func(string) (string, bool)
	now         func() time.Time
	queueMode   string
	pendingMode string
}

func NewDiagnosticsHandler(relay *application.RelayService, cfg *config.AppConfig, lookupEnv func(string) (string, bool), queueMode, pendingMode string) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		relay:       relay,
		cfg:         cfg,
		lookupEnv:   lookupEnv,
		now:         time.Now,
		queueMode:   queueMode,
		pendingMode: pendingMode,
	}
}

// WebhookTest sends a HEAD request to the webhook and reports what came back.
func (h *DiagnosticsHandler) WebhookTest(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		methodNotAllowed(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	url := h.relay.WebhookURL()
	res, err := h.relay.Probe(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("webhook probe failed", "error", err)
		c.JSON(http.StatusOK, gin.H{
			"webhookUrl": url,
			"error":      err.Error(),
			"available":  false,
			"message":    "Failed to connect to webhook",
		})
		return
	}

	available := res.StatusCode >= 200 && res.StatusCode < 300
	message := "Webhook is available"
	if !available {
		message = fmt.Sprintf("Webhook returned error: %d", res.StatusCode)
	}
	c.JSON(http.StatusOK, gin.H{
		"webhookUrl":        url,
		"webhookStatus":     res.StatusCode,
		"webhookStatusText": res.StatusText,
		"available":         available,
		"message":           message,
	})
}

// Debug reports which webhook variables are set. Values are never echoed,
// only their length.
func (h *DiagnosticsHandler) Debug(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		methodNotAllowed(c)
		return
	}

	vars := make(map[string]string, len(config.WebhookEnvCandidates))
	for _, name := range config.WebhookEnvCandidates {
		if val, ok := h.lookupEnv(name); ok && val != "" {
			vars[name] = fmt.Sprintf("SET (length: %d)", len(val))
		} else {
			vars[name] = "NOT SET"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"environment": gin.H{
			"name":         h.cfg.Server.Environment,
			"variables":    vars,
			"webhookUrl":   h.relay.WebhookURL(),
			"statusPolicy": ParseStatusPolicy(h.cfg.Relay.StatusPolicy),
			"twoPhase":     h.cfg.Relay.TwoPhase,
			"queue":        h.queueMode,
			"pendingStore": h.pendingMode,
			"timestamp":    domain.FormatTimestamp(h.now()),
		},
	})
}

func (h *DiagnosticsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.cfg.Server.Name,
		"timestamp": domain.FormatTimestamp(h.now()),
	})
}

func (h *DiagnosticsHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.cfg.Server.Name,
		"version": h.cfg.Server.Version,
		"endpoints": []string{
			"POST /api/chat",
			"POST /api/v1/chat",
			"POST /.netlify/functions/chat",
			"POST /api/chat/async",
			"POST /api/chat/listen",
			"GET /api/webhook-test",
			"GET /api/debug",
			"GET /health",
		},
	})
}
