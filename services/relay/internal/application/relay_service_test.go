package application

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mogeeb/services/relay/internal/domain"
	"mogeeb/services/relay/internal/infrastructure/webhook"
)

// scriptedWebhook replays one step per call; the last step repeats.
type scriptedWebhook struct {
	mu        sync.Mutex
	steps     []step
	calls     []domain.WebhookPayload
	deadlines []time.Duration
}

type step struct {
	status int
	body   string
	err    error
}

func (w *scriptedWebhook) Post(ctx context.Context, p domain.WebhookPayload) (*domain.WebhookResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := min(len(w.calls), len(w.steps)-1)
	w.calls = append(w.calls, p)
	if dl, ok := ctx.Deadline(); ok {
		w.deadlines = append(w.deadlines, time.Until(dl))
	} else {
		w.deadlines = append(w.deadlines, 0)
	}

	st := w.steps[idx]
	if st.err != nil {
		return nil, st.err
	}
	return &domain.WebhookResponse{StatusCode: st.status, Status: http.StatusText(st.status), Body: []byte(st.body)}, nil
}

func (w *scriptedWebhook) Probe(ctx context.Context) (*domain.ProbeResult, error) {
	return &domain.ProbeResult{StatusCode: http.StatusOK, StatusText: "OK"}, nil
}

func (w *scriptedWebhook) URL() string { return "http://webhook.test" }

func (w *scriptedWebhook) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

var errConn = domain.NewRelayError(domain.KindConnection, 0, domain.ErrUnreachable)

func newTestRelay(wh domain.Webhook, opts RelayOptions) (*RelayService, *[]time.Duration) {
	s := NewRelayService(wh, opts)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, &slept
}

func TestRelayEmptyMessageMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s := NewRelayService(webhook.NewClient(srv.URL, "ua"), RelayOptions{Timeout: time.Second})
	for _, msg := range []domain.FlexString{"", "   ", "\n\t"} {
		res := s.Relay(context.Background(), domain.ChatRequest{Message: msg})
		if res.Status != domain.StatusError || res.Response != domain.MsgInvalidMessage {
			t.Fatalf("unexpected result for %q: %+v", msg, res)
		}
		if res.Kind != domain.KindValidation {
			t.Fatalf("expected validation kind, got %v", res.Kind)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", hits.Load())
	}
}

func TestRelayTimeoutHasDistinctMessage(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := NewRelayService(webhook.NewClient(srv.URL, "ua"), RelayOptions{Timeout: 50 * time.Millisecond})
	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})

	if res.Response != domain.MsgTimeout {
		t.Fatalf("expected timeout message, got %q", res.Response)
	}
	if res.Response == domain.MsgUnreachable {
		t.Fatal("timeout must not use the unreachable message")
	}
	if res.Kind != domain.KindTimeout || res.Status != domain.StatusError {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRelayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewRelayService(webhook.NewClient(url, "ua"), RelayOptions{Timeout: time.Second})
	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if res.Response != domain.MsgUnreachable || res.Kind != domain.KindConnection {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRelayMapsUpstreamStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusNotFound, domain.MsgNotFound},
		{http.StatusTooManyRequests, domain.MsgTooManyRequests},
		{http.StatusServiceUnavailable, domain.MsgServerError},
		{http.StatusInternalServerError, domain.MsgServerError},
		{http.StatusForbidden, domain.MsgConnectionError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"text":"ignored"}`))
			}))
			defer srv.Close()

			s := NewRelayService(webhook.NewClient(srv.URL, "ua"), RelayOptions{Timeout: time.Second})
			res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
			if res.Response != tt.want {
				t.Fatalf("status %d: got %q, want %q", tt.status, res.Response, tt.want)
			}
			if res.Status != domain.StatusError || res.UpstreamStatus != tt.status {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}

func TestRelayFallbackOnEmptyBody(t *testing.T) {
	bodies := []string{"", "{}", "not json at all", `[]`, `{"output":null}`}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		s := NewRelayService(webhook.NewClient(srv.URL, "ua"), RelayOptions{Timeout: time.Second})
		res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
		srv.Close()

		if res.Response == "" {
			t.Fatalf("body %q: expected non-empty fallback", body)
		}
		if res.Response != domain.MsgStrictFallback || res.Status != domain.StatusSuccess {
			t.Fatalf("body %q: unexpected result %+v", body, res)
		}
		if res.Kind != domain.KindParse {
			t.Fatalf("body %q: expected parse kind, got %v", body, res.Kind)
		}
	}
}

func TestRelayRandomFallback(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{{status: http.StatusOK, body: `{}`}}}
	s, _ := newTestRelay(wh, RelayOptions{Fallback: FallbackRandom})
	s.pick = func(n int) int { return n - 1 }

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	want := domain.FriendlyFallbacks[len(domain.FriendlyFallbacks)-1]
	if res.Response != want {
		t.Fatalf("expected %q, got %q", want, res.Response)
	}
}

func TestRelayEndToEndArabicOrder(t *testing.T) {
	var got domain.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"text":"تم تسجيل الأوردر"}]`))
	}))
	defer srv.Close()

	s := NewRelayService(webhook.NewClient(srv.URL, "Mogeeb-Website/1.0"), RelayOptions{Timeout: time.Second})
	res := s.Relay(context.Background(), domain.ChatRequest{Message: "  عايز كيلو كفتة  "})

	if got.Message != "عايز كيلو كفتة" {
		t.Fatalf("expected trimmed message upstream, got %q", got.Message)
	}
	if got.UserID != domain.DefaultUserID || got.SessionID == "" || got.Timestamp == "" {
		t.Fatalf("expected defaulted metadata, got %+v", got)
	}
	if res.Response != "تم تسجيل الأوردر" || res.Status != domain.StatusSuccess {
		t.Fatalf("unexpected result %+v", res)
	}

	out, _ := json.Marshal(res)
	if string(out) != `{"response":"تم تسجيل الأوردر","status":"success"}` {
		t.Fatalf("unexpected wire shape %s", out)
	}
}

func TestRelayRetriesTransportErrorsWithLinearBackoff(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{{err: errConn}}}
	s, slept := newTestRelay(wh, RelayOptions{MaxRetries: 2, Backoff: time.Second})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})

	if wh.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", wh.callCount())
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Fatalf("expected backoff [1s 2s], got %v", *slept)
	}
	if res.Response != domain.MsgUnreachable {
		t.Fatalf("expected last failure message, got %q", res.Response)
	}
}

func TestRelayRetryRecovers(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{
		{err: domain.NewRelayError(domain.KindTimeout, 0, domain.ErrTimeout)},
		{status: http.StatusOK, body: `{"message":"done"}`},
	}}
	s, _ := newTestRelay(wh, RelayOptions{MaxRetries: 3, Backoff: time.Second})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if res.Response != "done" || wh.callCount() != 2 {
		t.Fatalf("unexpected result %+v after %d calls", res, wh.callCount())
	}
}

func TestRelayDoesNotRetryHTTPErrors(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{{status: http.StatusServiceUnavailable}}}
	s, slept := newTestRelay(wh, RelayOptions{MaxRetries: 3, Backoff: time.Second})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if wh.callCount() != 1 || len(*slept) != 0 {
		t.Fatalf("expected a single attempt, got %d calls", wh.callCount())
	}
	if res.Response != domain.MsgServerError {
		t.Fatalf("unexpected response %q", res.Response)
	}
}

func TestRelayTwoPhaseWaitsForFinalAnswer(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{
		{status: http.StatusAccepted, body: `{"status":"queued"}`},
		{status: http.StatusOK, body: `{"output":{"text":"final"}}`},
	}}
	s, _ := newTestRelay(wh, RelayOptions{
		Timeout:     time.Second,
		TwoPhase:    true,
		WaitCeiling: time.Hour,
	})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if res.Response != "final" {
		t.Fatalf("expected final answer, got %+v", res)
	}
	if wh.callCount() != 2 {
		t.Fatalf("expected probe + wait, got %d calls", wh.callCount())
	}
	if wh.deadlines[0] > time.Second {
		t.Fatalf("probe should be bounded by timeout, got %v", wh.deadlines[0])
	}
	if wh.deadlines[1] < 30*time.Minute {
		t.Fatalf("wait should be bounded by the ceiling, got %v", wh.deadlines[1])
	}
}

func TestRelayTwoPhaseSkippedWhenProbeHasReply(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{{status: http.StatusOK, body: `{"text":"quick"}`}}}
	s, _ := newTestRelay(wh, RelayOptions{TwoPhase: true, WaitCeiling: time.Minute})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if res.Response != "quick" || wh.callCount() != 1 {
		t.Fatalf("unexpected result %+v after %d calls", res, wh.callCount())
	}
}

func TestRelayTwoPhaseFinalFailure(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{
		{status: http.StatusOK, body: ``},
		{err: domain.NewRelayError(domain.KindTimeout, 0, domain.ErrTimeout)},
	}}
	s, _ := newTestRelay(wh, RelayOptions{TwoPhase: true, WaitCeiling: time.Minute})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if res.Response != domain.MsgTimeout || wh.callCount() != 2 {
		t.Fatalf("unexpected result %+v after %d calls", res, wh.callCount())
	}
}

func TestRelayWithoutTwoPhaseUsesFallbackOnAccepted(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{{status: http.StatusAccepted}}}
	s, _ := newTestRelay(wh, RelayOptions{})

	res := s.Relay(context.Background(), domain.ChatRequest{Message: "hi"})
	if res.Response != domain.MsgStrictFallback || wh.callCount() != 1 {
		t.Fatalf("unexpected result %+v after %d calls", res, wh.callCount())
	}
}

func TestPoll(t *testing.T) {
	wh := &scriptedWebhook{steps: []step{{status: http.StatusOK, body: `[{"message":"ready"}]`}}}
	s, _ := newTestRelay(wh, RelayOptions{PollTimeout: 5 * time.Second})

	got := s.Poll(context.Background(), "s1", "")
	if !got.HasMessage || got.Message != "ready" || got.Status != domain.StatusSuccess {
		t.Fatalf("unexpected poll result %+v", got)
	}
	sent := wh.calls[0]
	if sent.Action != "poll" || sent.SessionID != "s1" || sent.UserID != domain.DefaultUserID || sent.Message != "" {
		t.Fatalf("unexpected poll payload %+v", sent)
	}
	if wh.deadlines[0] > 5*time.Second {
		t.Fatalf("poll must be bounded, got %v", wh.deadlines[0])
	}
}

func TestPollErrorsMeanNoMessage(t *testing.T) {
	for _, st := range []step{{err: errConn}, {status: http.StatusNotFound}, {status: http.StatusOK, body: `{}`}} {
		wh := &scriptedWebhook{steps: []step{st}}
		s, _ := newTestRelay(wh, RelayOptions{})
		got := s.Poll(context.Background(), "s1", "u1")
		if got.HasMessage || got.Status != domain.StatusSuccess {
			t.Fatalf("expected no message, got %+v", got)
		}
	}
}
