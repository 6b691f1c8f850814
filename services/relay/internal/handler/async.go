package handler

import (
	"errors"
	"net/http"

	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/application"
	"mogeeb/services/relay/internal/domain"

	"github.com/gin-gonic/gin"
)

type AsyncHandler struct {
	async *application.AsyncService
}

func NewAsyncHandler(async *application.AsyncService) *AsyncHandler {
	return &AsyncHandler{async: async}
}

type acceptedResponse struct {
	Response  string        `json:"response"`
	Status    domain.Status `json:"status"`
	RequestID string        `json:"requestId"`
}

type listenRequest struct {
	SessionID domain.FlexString `json:"sessionId"`
	UserID    domain.FlexString `json:"userId"`
}

// Submit accepts a message for background relay and answers 202 at once.
func (h *AsyncHandler) Submit(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		methodNotAllowed(c)
		return
	}

	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromContext(c.Request.Context()).Warn("async request binding error", "error", err)
		c.JSON(http.StatusBadRequest, domain.ChatResult{
			Response: domain.MsgInvalidRequest,
			Status:   domain.StatusError,
		})
		return
	}

	requestID, res := h.async.Submit(c.Request.Context(), req)
	if res.Failed() {
		c.JSON(PolicyPinned.StatusFor(res), res)
		return
	}

	c.JSON(http.StatusAccepted, acceptedResponse{
		Response:  res.Response,
		Status:    res.Status,
		RequestID: requestID,
	})
}

// Listen returns a reply waiting for the session, if any.
func (h *AsyncHandler) Listen(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		methodNotAllowed(c)
		return
	}

	var req listenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromContext(c.Request.Context()).Warn("listen request binding error", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"hasMessage": false,
			"error":      domain.MsgInvalidRequest,
			"status":     domain.StatusError,
		})
		return
	}

	res, err := h.async.Listen(c.Request.Context(), req.SessionID.String(), req.UserID.String())
	if errors.Is(err, domain.ErrMissingSession) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  domain.MsgSessionRequired,
			"status": domain.StatusError,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}
