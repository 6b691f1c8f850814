package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/domain"

	"github.com/google/uuid"
)

// AsyncService accepts chat messages without waiting for the webhook. A worker
// relays each job and parks the reply in the pending store until the client
// listens for it.
type AsyncService struct {
	relay *RelayService
	queue domain.JobQueue
	store domain.PendingStore
	newID func() string
}

func NewAsyncService(relay *RelayService, queue domain.JobQueue, store domain.PendingStore) *AsyncService {
	return &AsyncService{
		relay: relay,
		queue: queue,
		store: store,
		newID: uuid.NewString,
	}
}

// Submit enqueues req and returns its request id with a "processing" result.
// Validation and enqueue failures come back as error results and an empty id.
func (s *AsyncService) Submit(ctx context.Context, req domain.ChatRequest) (string, domain.ChatResult) {
	if req.TrimmedMessage() == "" {
		return "", failure(domain.KindValidation)
	}

	payload := req.Payload(s.relay.now())
	requestID := payload.RequestID
	if requestID == "" {
		requestID = s.newID()
		payload.RequestID = requestID
	}

	job := domain.Job{
		RequestID:  requestID,
		Payload:    payload,
		EnqueuedAt: s.relay.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		logger.FromContext(ctx).Error("enqueue relay job failed", "job_id", requestID, "error", err)
		return "", failure(domain.KindInternal)
	}

	logger.FromContext(ctx).Info("relay job accepted",
		"job_id", requestID,
		"session_id", payload.SessionID)

	return requestID, domain.ChatResult{Response: domain.MsgProcessing, Status: domain.StatusProcessing}
}

// Process runs one job and stores its reply. An error asks the queue to
// redeliver. A job whose context ends before or during the relay is not
// answered: the failure belongs to this worker, not to the webhook.
func (s *AsyncService) Process(ctx context.Context, job domain.Job) error {
	ctx = logger.WithRequestID(ctx, job.RequestID)
	log := logger.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("relay job %s not started: %w", job.RequestID, err)
	}

	start := time.Now()
	result := s.relay.relayPayload(ctx, job.Payload)
	if err := ctx.Err(); err != nil {
		log.Warn("relay job interrupted", "session_id", job.Payload.SessionID, "error", err)
		return fmt.Errorf("relay job %s interrupted: %w", job.RequestID, err)
	}
	log.Info("relay job finished",
		"session_id", job.Payload.SessionID,
		"status", string(result.Status),
		"kind", result.Kind.String(),
		"queued_for", start.Sub(job.EnqueuedAt).String(),
		"took", time.Since(start).String())

	if err := s.store.Push(ctx, job.Payload.SessionID, result.Response); err != nil {
		return fmt.Errorf("store reply for session %s: %w", job.Payload.SessionID, err)
	}
	return nil
}

// Listen returns the next parked reply for sessionID, falling back to asking
// the webhook directly.
func (s *AsyncService) Listen(ctx context.Context, sessionID, userID string) (domain.PollResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.PollResult{Status: domain.StatusError}, domain.ErrMissingSession
	}

	msg, ok, err := s.store.Pop(ctx, sessionID)
	if err != nil {
		logger.FromContext(ctx).Warn("pending store read failed", "session_id", sessionID, "error", err)
	} else if ok {
		return domain.PollResult{HasMessage: true, Message: msg, Status: domain.StatusSuccess}, nil
	}

	return s.relay.Poll(ctx, sessionID, userID), nil
}
