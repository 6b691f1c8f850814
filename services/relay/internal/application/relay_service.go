package application

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"mogeeb/pkg/extract"
	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/domain"
)

type FallbackMode string

const (
	// FallbackStrict answers an empty reply with one fixed apology.
	FallbackStrict FallbackMode = "strict"
	// FallbackRandom picks one of the friendly greetings.
	FallbackRandom FallbackMode = "random"
)

type RelayOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	TwoPhase    bool
	WaitCeiling time.Duration
	Fallback    FallbackMode
	PollTimeout time.Duration
}

// RelayService forwards chat messages to the webhook and turns every outcome
// into a renderable ChatResult. It never returns an error.
type RelayService struct {
	webhook domain.Webhook
	opts    RelayOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	pick  func(n int) int
}

func NewRelayService(webhook domain.Webhook, opts RelayOptions) *RelayService {
	if opts.Fallback == "" {
		opts.Fallback = FallbackStrict
	}
	return &RelayService{
		webhook: webhook,
		opts:    opts,
		now:     time.Now,
		sleep:   sleepCtx,
		pick:    rand.Intn,
	}
}

func (s *RelayService) WebhookURL() string {
	return s.webhook.URL()
}

// Relay sends req to the webhook. Transport failures are retried up to
// MaxRetries times with a linear backoff; HTTP error statuses are not.
func (s *RelayService) Relay(ctx context.Context, req domain.ChatRequest) domain.ChatResult {
	if req.TrimmedMessage() == "" {
		return failure(domain.KindValidation)
	}
	return s.relayPayload(ctx, req.Payload(s.now()))
}

func (s *RelayService) relayPayload(ctx context.Context, payload domain.WebhookPayload) domain.ChatResult {
	log := logger.FromContext(ctx).With("session_id", payload.SessionID)

	attempts := 1 + max(s.opts.MaxRetries, 0)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := s.send(ctx, payload, s.opts.Timeout)
		if err == nil {
			if attempt > 1 {
				log.Info("webhook succeeded after retry", "attempt", attempt)
			}
			return s.handleResponse(ctx, payload, resp)
		}

		lastErr = err
		log.Warn("webhook call failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"kind", domain.KindOf(err).String(),
			"error", err)

		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if err := s.sleep(ctx, time.Duration(attempt)*s.opts.Backoff); err != nil {
			break
		}
	}

	return failure(domain.KindOf(lastErr))
}

// handleResponse applies the two-phase policy: a probe answered with 202, or
// with a 2xx that carries no reply, is followed by one long wait bounded by
// WaitCeiling whose outcome is final.
func (s *RelayService) handleResponse(ctx context.Context, payload domain.WebhookPayload, resp *domain.WebhookResponse) domain.ChatResult {
	if !s.opts.TwoPhase || !resp.OK() {
		return s.outcome(ctx, resp)
	}

	text, _ := extract.FromBody(resp.Body)
	if resp.StatusCode != http.StatusAccepted && strings.TrimSpace(text) != "" {
		return s.outcome(ctx, resp)
	}

	log := logger.FromContext(ctx)
	log.Info("webhook accepted without reply, waiting for final answer",
		"status_code", resp.StatusCode,
		"wait_ceiling", s.opts.WaitCeiling.String())

	final, err := s.send(ctx, payload, s.opts.WaitCeiling)
	if err != nil {
		log.Warn("final wait failed", "kind", domain.KindOf(err).String(), "error", err)
		return failure(domain.KindOf(err))
	}
	return s.outcome(ctx, final)
}

func (s *RelayService) outcome(ctx context.Context, resp *domain.WebhookResponse) domain.ChatResult {
	log := logger.FromContext(ctx)

	if !resp.OK() {
		log.Error("webhook returned error status", "status_code", resp.StatusCode, "status", resp.Status)
		return domain.ChatResult{
			Response:       domain.MessageForStatus(resp.StatusCode),
			Status:         domain.StatusError,
			Kind:           domain.KindUpstreamHTTP,
			UpstreamStatus: resp.StatusCode,
		}
	}

	text, err := extract.FromBody(resp.Body)
	if err != nil {
		log.Warn("webhook body is not json", "response_size", len(resp.Body), "error", err)
	}
	if strings.TrimSpace(text) != "" {
		return domain.ChatResult{Response: text, Status: domain.StatusSuccess, UpstreamStatus: resp.StatusCode}
	}

	log.Warn("no reply found in webhook body, using fallback", "fallback", string(s.opts.Fallback))
	return domain.ChatResult{
		Response:       s.fallback(),
		Status:         domain.StatusSuccess,
		Kind:           domain.KindParse,
		UpstreamStatus: resp.StatusCode,
	}
}

// Poll asks the webhook whether a reply is waiting for sessionID.
// Any failure reads as "no message".
func (s *RelayService) Poll(ctx context.Context, sessionID, userID string) domain.PollResult {
	empty := domain.PollResult{HasMessage: false, Status: domain.StatusSuccess}
	if strings.TrimSpace(sessionID) == "" {
		return empty
	}
	if userID == "" {
		userID = domain.DefaultUserID
	}

	payload := domain.WebhookPayload{
		Action:    "poll",
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: domain.FormatTimestamp(s.now()),
	}

	resp, err := s.send(ctx, payload, s.opts.PollTimeout)
	if err != nil {
		logger.FromContext(ctx).Warn("poll failed", "session_id", sessionID, "error", err)
		return empty
	}
	if !resp.OK() {
		return empty
	}

	text, _ := extract.FromBody(resp.Body)
	if strings.TrimSpace(text) == "" {
		return empty
	}
	return domain.PollResult{HasMessage: true, Message: text, Status: domain.StatusSuccess}
}

// Probe checks that the webhook host answers a HEAD request.
func (s *RelayService) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	return s.webhook.Probe(ctx)
}

func (s *RelayService) send(ctx context.Context, payload domain.WebhookPayload, timeout time.Duration) (*domain.WebhookResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.webhook.Post(ctx, payload)
}

func (s *RelayService) fallback() string {
	if s.opts.Fallback == FallbackRandom {
		return domain.FriendlyFallbacks[s.pick(len(domain.FriendlyFallbacks))]
	}
	return domain.MsgStrictFallback
}

func failure(kind domain.ErrorKind) domain.ChatResult {
	if kind == domain.KindNone {
		kind = domain.KindInternal
	}
	return domain.ChatResult{
		Response: domain.MessageForKind(kind),
		Status:   domain.StatusError,
		Kind:     kind,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
