package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mogeeb/pkg/logger"
	"mogeeb/services/relay/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("*", "Content-Type, Authorization", "POST", "OPTIONS"))
	r.Any("/chat", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/chat", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Fatalf("unexpected allow headers %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Fatalf("unexpected allow methods %q", got)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("preflight must not reach the handler, body %q", w.Body.String())
	}
}

func TestCORSHeadersOnPost(t *testing.T) {
	r := gin.New()
	r.Use(CORS("*", "Content-Type", "POST", "OPTIONS"))
	r.POST("/chat", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected response %d %v", w.Code, w.Header())
	}
}

func TestRequestLoggerSetsID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || w.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("expected generated request id, got %q / %q", seen, w.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "caller-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if seen != "caller-id" {
		t.Fatalf("expected caller id to be reused, got %q", seen)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := gin.New()
	r.Use(RateLimit(client, "test:", 1))
	r.POST("/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 5 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected request through while redis is down, got %d", w.Code)
		}
	}
}

func TestParseBucket(t *testing.T) {
	st := parseBucket([]any{int64(0), int64(0), int64(3)}, 10)
	if st.allowed || st.retryAfter != 3 || st.remaining != 0 {
		t.Fatalf("unexpected deny state %+v", st)
	}

	st = parseBucket([]any{int64(1), int64(7), int64(0)}, 10)
	if !st.allowed || st.remaining != 7 {
		t.Fatalf("unexpected allow state %+v", st)
	}

	st = parseBucket("garbage", 10)
	if st.allowed || st.remaining != 10 {
		t.Fatalf("unexpected fallback state %+v", st)
	}
}

func newLimitedRouter(t *testing.T, qps int) (*gin.Engine, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	now := time.Unix(1_700_000_000, 0)
	clock = func() time.Time { return now }
	t.Cleanup(func() { clock = time.Now })

	r := gin.New()
	r.Use(RateLimit(client, "test:", qps))
	r.Any("/chat", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, mr, &now
}

func hit(r *gin.Engine, method, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/chat", nil)
	req.RemoteAddr = ip + ":4321"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBucket(t *testing.T) {
	r, mr, now := newLimitedRouter(t, 1)

	tests := []struct {
		name       string
		advance    time.Duration
		ip         string
		wantCode   int
		wantRemain string
		wantRetry  string
	}{
		{name: "first request", ip: "10.0.0.1", wantCode: http.StatusOK, wantRemain: "1"},
		{name: "burst uses capacity", ip: "10.0.0.1", wantCode: http.StatusOK, wantRemain: "0"},
		{name: "empty bucket denies", ip: "10.0.0.1", wantCode: http.StatusTooManyRequests, wantRetry: "1"},
		{name: "other client has its own bucket", ip: "10.0.0.2", wantCode: http.StatusOK, wantRemain: "1"},
		{name: "refill after one second", advance: time.Second, ip: "10.0.0.1", wantCode: http.StatusOK, wantRemain: "0"},
		{name: "denied again", ip: "10.0.0.1", wantCode: http.StatusTooManyRequests, wantRetry: "1"},
	}
	for _, tt := range tests {
		*now = now.Add(tt.advance)
		w := hit(r, http.MethodPost, tt.ip)
		if w.Code != tt.wantCode {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.wantCode, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Fatalf("%s: unexpected limit header %q", tt.name, got)
		}
		if tt.wantRemain != "" && w.Header().Get("X-RateLimit-Remaining") != tt.wantRemain {
			t.Fatalf("%s: remaining = %q, want %q", tt.name, w.Header().Get("X-RateLimit-Remaining"), tt.wantRemain)
		}
		if tt.wantRetry != "" && w.Header().Get("Retry-After") != tt.wantRetry {
			t.Fatalf("%s: Retry-After = %q, want %q", tt.name, w.Header().Get("Retry-After"), tt.wantRetry)
		}
	}

	if !mr.Exists("test:rate_limit:10.0.0.1") {
		t.Fatal("expected bucket stored under the prefixed key")
	}
}

func TestRateLimitRejectionUsesChatShape(t *testing.T) {
	r, _, _ := newLimitedRouter(t, 1)
	for range 2 {
		hit(r, http.MethodPost, "10.0.0.9")
	}

	w := hit(r, http.MethodPost, "10.0.0.9")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var res domain.ChatResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	if res.Response != domain.MsgTooManyRequests || res.Status != domain.StatusError {
		t.Fatalf("unexpected rejection %+v", res)
	}

	// preflight never spends tokens
	if w := hit(r, http.MethodOptions, "10.0.0.9"); w.Code != http.StatusOK {
		t.Fatalf("expected OPTIONS to pass, got %d", w.Code)
	}
}
