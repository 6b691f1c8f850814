package handler

import (
	"net/http"

	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/application"
	"mogeeb/services/relay/internal/domain"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	relay *application.RelayService
}

func NewChatHandler(relay *application.RelayService) *ChatHandler {
	return &ChatHandler{relay: relay}
}

// Chat returns the adapter for one deployment route. All routes share the
// relay; they differ only in how outcomes map to HTTP status codes.
func (h *ChatHandler) Chat(policy StatusPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			methodNotAllowed(c)
			return
		}

		var req domain.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.FromContext(c.Request.Context()).Warn("chat request binding error", "error", err)
			c.JSON(http.StatusBadRequest, domain.ChatResult{
				Response: domain.MsgInvalidRequest,
				Status:   domain.StatusError,
			})
			return
		}
		if req.TrimmedMessage() == "" {
			c.JSON(http.StatusBadRequest, domain.ChatResult{
				Response: domain.MsgInvalidMessage,
				Status:   domain.StatusError,
			})
			return
		}

		res := h.relay.Relay(c.Request.Context(), req)
		c.JSON(policy.StatusFor(res), res)
	}
}

func methodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"error":    "Method Not Allowed",
		"response": domain.MsgMethodNotAllowed,
		"status":   domain.StatusError,
	})
}
